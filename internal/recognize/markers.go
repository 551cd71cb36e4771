package recognize

import (
	"context"
	"image"

	"github.com/tablesight/tablesight/internal/geometry"
	"github.com/tablesight/tablesight/internal/sites"
)

// MaxSeatDistance is the cutoff for mapping a detected marker to a seat:
// a centroid farther than this from every configured seat center resolves
// to no seat rather than an arbitrary nearest match.
const MaxSeatDistance = 100.0

// DealerButtonMarker is the template name for the dealer disc.
const DealerButtonMarker = "dealer_button"

const markerTemplateFloor = 0.70

// MarkerDetector locates the dealer button and maps it to a seat.
// Detection cascades from template correlation to a hue-range mask
// centroid inside the configured button search area.
type MarkerDetector struct {
	cfg       *sites.SiteConfig
	templates *TemplateCatalog
}

// NewMarkerDetector builds a detector for one site. templates may be nil.
func NewMarkerDetector(cfg *sites.SiteConfig, templates *TemplateCatalog) *MarkerDetector {
	return &MarkerDetector{cfg: cfg, templates: templates}
}

// FindDealerButton scans the frame and returns the seat holding the
// dealer button. ok is false when no marker is found or the marker is too
// far from every seat.
func (d *MarkerDetector) FindDealerButton(ctx context.Context, frame image.Image) (int, float64, bool) {
	area, origin := d.searchArea(frame)

	if pt, score, err := d.templateLocate(area); err == nil && score >= markerTemplateFloor {
		if seat, ok := d.NearestSeat(pt.Add(origin)); ok {
			return seat, score, true
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, 0, false
	}

	c := d.cfg.Colors
	pt, count := hueMaskCentroid(area, c.ButtonHueMin, c.ButtonHueMax, c.ButtonSatMin, c.ButtonValMin)
	if count < c.ButtonMinArea {
		return 0, 0, false
	}
	seat, ok := d.NearestSeat(pt.Add(origin))
	if !ok {
		return 0, 0, false
	}
	return seat, 0.65, true
}

// NearestSeat maps a frame-coordinate point to the closest configured
// seat center within MaxSeatDistance.
func (d *MarkerDetector) NearestSeat(pt image.Point) (int, bool) {
	bestSeat, bestDist := 0, MaxSeatDistance
	for _, n := range d.cfg.SeatNumbers() {
		box, ok := d.cfg.SeatRegion(n)
		if !ok {
			continue
		}
		if dist := box.CenterDistance(pt); dist <= bestDist {
			bestSeat, bestDist = n, dist
		}
	}
	return bestSeat, bestSeat != 0
}

// searchArea extracts the configured button search region (or the whole
// frame) and returns it with its origin in frame coordinates.
func (d *MarkerDetector) searchArea(frame image.Image) (image.Image, image.Point) {
	box, ok := d.cfg.Region(sites.RegionDealerArea)
	if !ok {
		return frame, frame.Bounds().Min
	}
	clamped := box.Rect().Intersect(frame.Bounds())
	if clamped.Empty() {
		return frame, frame.Bounds().Min
	}
	return geometry.Extract(frame, box), clamped.Min
}

func (d *MarkerDetector) templateLocate(area image.Image) (image.Point, float64, error) {
	if !d.templates.HasMarker(DealerButtonMarker) {
		return image.Point{}, 0, errNoTemplate
	}
	return d.templates.LocateMarker(DealerButtonMarker, area)
}

var errNoTemplate = &noTemplateError{}

type noTemplateError struct{}

func (*noTemplateError) Error() string { return "no marker template" }
