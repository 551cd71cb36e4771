// Table watcher - polls the screen, recognizes the table and serves
// structured state over WebSocket and REST.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tablesight/tablesight/internal/bridge"
	"github.com/tablesight/tablesight/internal/capture"
	"github.com/tablesight/tablesight/internal/config"
	"github.com/tablesight/tablesight/internal/drift"
	"github.com/tablesight/tablesight/internal/engine"
	"github.com/tablesight/tablesight/internal/ocr"
	"github.com/tablesight/tablesight/internal/recognize"
	"github.com/tablesight/tablesight/internal/resilience"
	"github.com/tablesight/tablesight/internal/server"
	"github.com/tablesight/tablesight/internal/sites"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	catalog, err := sites.LoadDir(cfg.SitesDir)
	if err != nil {
		slog.Error("failed to load site catalogs", "dir", cfg.SitesDir, "error", err)
		os.Exit(1)
	}
	site, ok := catalog.Lookup(cfg.SiteName, cfg.Theme)
	if !ok {
		slog.Error("unknown site", "site", cfg.SiteName, "theme", cfg.Theme, "available", catalog.Sites())
		os.Exit(1)
	}

	ocrClient := newOCRClient(site, cfg.OCRTimeout)
	defer func() { _ = ocrClient.Close() }()

	var templates *recognize.TemplateCatalog
	if cfg.TemplateDir != "" {
		templates, err = recognize.LoadTemplates(cfg.TemplateDir)
		if err != nil {
			slog.Warn("template catalog unavailable", "dir", cfg.TemplateDir, "error", err)
		} else {
			defer templates.Close()
		}
	}

	source, err := newSource(cfg)
	if err != nil {
		slog.Error("failed to open capture source", "source", cfg.CaptureSource, "error", err)
		os.Exit(1)
	}

	store, err := drift.NewStore(cfg.BaselineDir)
	if err != nil {
		slog.Error("failed to open baseline store", "dir", cfg.BaselineDir, "error", err)
		os.Exit(1)
	}
	reporter, err := drift.NewReporter(cfg.ReportDir)
	if err != nil {
		slog.Error("failed to open report dir", "dir", cfg.ReportDir, "error", err)
		os.Exit(1)
	}

	bus := bridge.New()
	eng := engine.New(source, ocrClient, site, templates, bus, engine.Config{
		PollInterval:    cfg.PollInterval,
		CaptureTimeout:  cfg.CaptureTimeout,
		ConfidenceFloor: cfg.ConfidenceFloor,
		Workers:         cfg.Workers,
		HistorySize:     cfg.HistorySize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Calibrate(ctx); err != nil {
		slog.Warn("initial calibration failed; states publish uncalibrated", "error", err)
	}
	eng.Start(ctx)

	srv := server.New(eng, bus, site, store, reporter)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("table watcher starting",
			"http", cfg.HTTPAddr,
			"site", site.Key(),
			"source", cfg.CaptureSource,
			"interval", cfg.PollInterval)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	eng.Stop()
	slog.Info("shutdown complete")
}

// newOCRClient brings up Tesseract with retries, degrading to the
// disabled stub so the heuristic tiers still run without it.
func newOCRClient(site *sites.SiteConfig, timeout time.Duration) ocr.Client {
	var eng *ocr.Engine
	err := resilience.Retry(context.Background(), resilience.OCRRetryConfig(), func() error {
		var err error
		eng, err = ocr.NewEngine(site.OCR.UpscaleMinDim)
		return err
	})
	if err != nil {
		slog.Warn("ocr engine unavailable, running heuristics only", "error", err)
		return ocr.Disabled{}
	}
	return ocr.WithTimeout(eng, timeout)
}

func newSource(cfg *config.Config) (capture.Source, error) {
	if cfg.CaptureSource == "files" {
		return capture.NewFileSource(cfg.FramesDir)
	}
	return capture.NewScreenSource(), nil
}
