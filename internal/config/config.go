// Package config handles service configuration
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr        string
	SiteName        string
	Theme           string
	SitesDir        string
	TemplateDir     string
	BaselineDir     string
	ReportDir       string
	CaptureSource   string // "screen" or "files"
	FramesDir       string
	PollInterval    time.Duration
	CaptureTimeout  time.Duration
	OCRTimeout      time.Duration
	ConfidenceFloor float64
	Workers         int
	HistorySize     int
}

func Load() *Config {
	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		SiteName:        getEnv("SITE_NAME", "demo"),
		Theme:           getEnv("THEME", ""),
		SitesDir:        getEnv("SITES_DIR", "configs/sites"),
		TemplateDir:     getEnv("TEMPLATE_DIR", ""),
		BaselineDir:     getEnv("BASELINE_DIR", "data/baselines"),
		ReportDir:       getEnv("REPORT_DIR", "data/reports"),
		CaptureSource:   getEnv("CAPTURE_SOURCE", "screen"),
		FramesDir:       getEnv("FRAMES_DIR", ""),
		PollInterval:    getEnvMillis("POLL_INTERVAL_MS", 1000),
		CaptureTimeout:  getEnvMillis("CAPTURE_TIMEOUT_MS", 3000),
		OCRTimeout:      getEnvMillis("OCR_TIMEOUT_MS", 2000),
		ConfidenceFloor: getEnvFloat("CONFIDENCE_FLOOR", 0.60),
		Workers:         getEnvInt("RECOGNIZE_WORKERS", 4),
		HistorySize:     getEnvInt("HISTORY_SIZE", 32),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvMillis(key string, defMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defMillis)) * time.Millisecond
}
