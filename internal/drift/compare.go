package drift

import (
	"image"
	"log/slog"
	"sort"

	"github.com/corona10/goimagehash"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"

	"github.com/tablesight/tablesight/internal/geometry"
	"github.com/tablesight/tablesight/internal/sites"
)

// Scoring weights and thresholds. The hash term reacts to global layout
// shifts, the structural term to per-region restyling.
const (
	hashWeight       = 0.4
	structuralWeight = 0.6

	// MatchThreshold is the aggregate score at or above which a capture
	// still matches its baseline.
	MatchThreshold = 0.80
	// CriticalRegionThreshold flags a critical region below it even when
	// the aggregate passes.
	CriticalRegionThreshold = 0.75
	// RegionThreshold flags any other region.
	RegionThreshold = 0.60

	hashBits = 64
)

// Result is the outcome of comparing one capture to a baseline. When
// produced by CompareAll it carries the id of the best-scoring baseline.
type Result struct {
	MatchScore      float64            `json:"match_score"`
	IsMatch         bool               `json:"is_match"`
	BestBaselineID  string             `json:"best_baseline_id,omitempty"`
	HashDistance    int                `json:"hash_distance"`
	RegionScores    map[string]float64 `json:"region_scores"`
	FlaggedRegions  []string           `json:"flagged_regions,omitempty"`
	CriticalRegions []string           `json:"critical_regions,omitempty"`
}

// CompareAll scores a capture against every stored baseline for the
// site's (name, theme, resolution) key and returns the best result.
// Each legitimate layout variant gets its own baseline, so one good
// match is enough. No baseline for the key yields a score-0 non-match,
// never an error.
func CompareAll(store *Store, current image.Image, cfg *sites.SiteConfig) Result {
	records, err := store.List()
	if err != nil {
		slog.Warn("baseline listing failed", "error", err)
		return Result{}
	}

	var best Result
	for _, rec := range records {
		if rec.SiteName != cfg.Name || rec.Theme != cfg.Theme || rec.Resolution != cfg.Resolution {
			continue
		}
		_, baseline, err := store.Get(rec.ID)
		if err != nil {
			slog.Warn("baseline unreadable", "id", rec.ID, "error", err)
			continue
		}
		res := Compare(baseline, current, cfg)
		res.BestBaselineID = rec.ID
		if best.BestBaselineID == "" || res.MatchScore > best.MatchScore {
			best = res
		}
	}
	return best
}

// Compare scores a capture against a baseline image using the site's
// region catalog. The capture is scaled to the baseline's dimensions
// first so resolution changes do not read as drift.
func Compare(baseline, current image.Image, cfg *sites.SiteConfig) Result {
	res := Result{RegionScores: make(map[string]float64)}

	current = scaleTo(current, baseline.Bounds())

	dist, err := hashDistance(baseline, current)
	if err != nil {
		slog.Warn("perception hash failed", "error", err)
		dist = hashBits
	}
	res.HashDistance = dist
	hashScore := 1 - float64(dist)/hashBits

	total := 0.0
	for name, box := range cfg.Regions {
		score := regionSimilarity(baseline, current, box)
		res.RegionScores[name] = score
		total += score

		if cfg.IsCritical(name) {
			if score < CriticalRegionThreshold {
				res.CriticalRegions = append(res.CriticalRegions, name)
			}
		} else if score < RegionThreshold {
			res.FlaggedRegions = append(res.FlaggedRegions, name)
		}
	}
	sort.Strings(res.FlaggedRegions)
	sort.Strings(res.CriticalRegions)

	structural := 1.0
	if len(cfg.Regions) > 0 {
		structural = total / float64(len(cfg.Regions))
	}

	res.MatchScore = hashWeight*hashScore + structuralWeight*structural
	res.IsMatch = res.MatchScore >= MatchThreshold && len(res.CriticalRegions) == 0
	return res
}

func hashDistance(a, b image.Image) (int, error) {
	ha, err := goimagehash.PerceptionHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := goimagehash.PerceptionHash(b)
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}

// regionSimilarity computes a global-statistics SSIM over the region's
// grayscale pixels.
func regionSimilarity(baseline, current image.Image, box geometry.BoundingBox) float64 {
	x := grayValues(geometry.Extract(baseline, box))
	y := grayValues(geometry.Extract(current, box))
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	const (
		c1 = (0.01 * 255) * (0.01 * 255)
		c2 = (0.03 * 255) * (0.03 * 255)
	)

	mx := stat.Mean(x, nil)
	my := stat.Mean(y, nil)
	vx := stat.Variance(x, nil)
	vy := stat.Variance(y, nil)
	cov := stat.Covariance(x, y, nil)

	num := (2*mx*my + c1) * (2*cov + c2)
	den := (mx*mx + my*my + c1) * (vx + vy + c2)
	if den == 0 {
		return 0
	}
	s := num / den
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func grayValues(img image.Image) []float64 {
	b := img.Bounds()
	vals := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			gray := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			vals = append(vals, gray)
		}
	}
	return vals
}

// scaleTo resizes img to the target bounds when they differ.
func scaleTo(img image.Image, target image.Rectangle) image.Image {
	if img.Bounds().Dx() == target.Dx() && img.Bounds().Dy() == target.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, target.Dx(), target.Dy()))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}
