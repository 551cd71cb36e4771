package drift

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

// AlertLevel grades a comparison outcome.
type AlertLevel string

const (
	LevelOK       AlertLevel = "OK"
	LevelWarning  AlertLevel = "WARNING"
	LevelCritical AlertLevel = "CRITICAL"
)

// Report is the persisted outcome of one drift check.
type Report struct {
	Timestamp       time.Time          `json:"timestamp"`
	SiteName        string             `json:"site_name"`
	Theme           string             `json:"theme,omitempty"`
	BaselineID      string             `json:"baseline_id,omitempty"`
	AlertLevel      AlertLevel         `json:"alert_level"`
	IsMatch         bool               `json:"is_match"`
	MatchScore      float64            `json:"match_score"`
	HashDistance    int                `json:"hash_distance"`
	RegionScores    map[string]float64 `json:"region_scores"`
	FlaggedRegions  []string           `json:"flagged_regions,omitempty"`
	CriticalRegions []string           `json:"critical_regions,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// BuildReport grades a comparison result and attaches recommendations.
func BuildReport(site, theme, baselineID string, res Result) Report {
	r := Report{
		Timestamp:       time.Now().UTC(),
		SiteName:        site,
		Theme:           theme,
		BaselineID:      baselineID,
		IsMatch:         res.IsMatch,
		MatchScore:      res.MatchScore,
		HashDistance:    res.HashDistance,
		RegionScores:    res.RegionScores,
		FlaggedRegions:  res.FlaggedRegions,
		CriticalRegions: res.CriticalRegions,
	}

	switch {
	case len(res.CriticalRegions) > 0:
		r.AlertLevel = LevelCritical
	case !res.IsMatch || len(res.FlaggedRegions) > 0:
		r.AlertLevel = LevelWarning
	default:
		r.AlertLevel = LevelOK
	}

	if baselineID == "" {
		r.Recommendations = append(r.Recommendations,
			"no baseline stored for this layout; capture one before trusting drift checks")
	}
	for _, name := range res.CriticalRegions {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("recalibrate region %q before trusting card reads", name))
	}
	if len(res.FlaggedRegions) > 0 {
		r.Recommendations = append(r.Recommendations,
			"review flagged regions against a fresh capture; the site theme may have changed")
	}
	if res.HashDistance > hashBits/2 {
		r.Recommendations = append(r.Recommendations,
			"global layout shift detected; capture a new baseline")
	}
	return r
}

// Reporter persists reports as timestamped JSON files.
type Reporter struct {
	dir string
}

// NewReporter opens (creating if needed) a report directory.
func NewReporter(dir string) (*Reporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeBaselineStoreFailed, "create report dir %s", dir)
	}
	return &Reporter{dir: dir}, nil
}

// Write persists a report and returns its path.
func (r *Reporter) Write(rep Report) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "marshal report")
	}

	name := fmt.Sprintf("drift_%s_%s.json", rep.SiteName, rep.Timestamp.Format("20060102T150405"))
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "write report")
	}

	if rep.AlertLevel != LevelOK {
		slog.Warn("layout drift detected",
			"site", rep.SiteName,
			"level", rep.AlertLevel,
			"score", rep.MatchScore,
			"critical", rep.CriticalRegions)
	}
	return path, nil
}
