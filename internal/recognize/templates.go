package recognize

import (
	"image"
	_ "image/jpeg" // template decoders
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/state"
)

// Canonical template dimensions. Card slots are normalized to this size
// before correlation so one catalog serves any site resolution.
const (
	templateCardW = 64
	templateCardH = 96
)

// TemplateCatalog holds the reference images for template matching:
// rank-and-suit card faces ("As.png") and named markers
// ("dealer_button.png"). Built at construction, read-only afterwards;
// a nil catalog disables the template tier entirely.
type TemplateCatalog struct {
	cards   map[state.Card]gocv.Mat
	markers map[string]gocv.Mat
}

// LoadTemplates reads every image in dir into the catalog. Filenames
// parseable as cards become card templates, anything else a marker.
func LoadTemplates(dir string) (*TemplateCatalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "read template dir %s", dir)
	}

	cat := &TemplateCatalog{
		cards:   make(map[state.Card]gocv.Mat),
		markers: make(map[string]gocv.Mat),
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".png" && ext != ".jpg" && ext != ".jpeg") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		img, err := decodeImage(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("skipping unreadable template", "file", e.Name(), "error", err)
			continue
		}

		if card, err := state.ParseCard(name); err == nil {
			normalized := resize.Resize(templateCardW, templateCardH, img, resize.Bilinear)
			mat, err := grayMat(normalized)
			if err != nil {
				slog.Warn("skipping unconvertible template", "file", e.Name(), "error", err)
				continue
			}
			cat.cards[card] = mat
			continue
		}

		mat, err := grayMat(img)
		if err != nil {
			slog.Warn("skipping unconvertible template", "file", e.Name(), "error", err)
			continue
		}
		cat.markers[name] = mat
	}

	slog.Info("template catalog loaded", "dir", dir, "cards", len(cat.cards), "markers", len(cat.markers))
	return cat, nil
}

// HasCards reports whether card templates are available.
func (t *TemplateCatalog) HasCards() bool {
	return t != nil && len(t.cards) > 0
}

// HasMarker reports whether a named marker template is available.
func (t *TemplateCatalog) HasMarker(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.markers[name]
	return ok
}

// Close releases all template mats.
func (t *TemplateCatalog) Close() {
	if t == nil {
		return
	}
	for _, m := range t.cards {
		m.Close()
	}
	for _, m := range t.markers {
		m.Close()
	}
}

// MatchCard correlates a card slot against every card template and
// returns the best match with its normalized correlation score.
func (t *TemplateCatalog) MatchCard(img image.Image) (state.Card, float64, error) {
	if !t.HasCards() {
		return state.Card{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "no card templates")
	}

	normalized := resize.Resize(templateCardW, templateCardH, img, resize.Bilinear)
	slot, err := grayMat(normalized)
	if err != nil {
		return state.Card{}, 0, err
	}
	defer slot.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	var best state.Card
	bestScore := float64(-1)
	for card, tmpl := range t.cards {
		gocv.MatchTemplate(slot, tmpl, &result, gocv.TmCcoeffNormed, mask)
		_, maxVal, _, _ := gocv.MinMaxLoc(result)
		if float64(maxVal) > bestScore {
			bestScore = float64(maxVal)
			best = card
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return best, bestScore, nil
}

// LocateMarker finds the best position of a named marker template inside
// the search image, returning the marker center and match score.
func (t *TemplateCatalog) LocateMarker(name string, img image.Image) (image.Point, float64, error) {
	if !t.HasMarker(name) {
		return image.Point{}, 0, apperrors.Newf(apperrors.CodeRecognitionFailed, "no template for marker %s", name)
	}
	tmpl := t.markers[name]

	search, err := grayMat(img)
	if err != nil {
		return image.Point{}, 0, err
	}
	defer search.Close()

	if search.Cols() < tmpl.Cols() || search.Rows() < tmpl.Rows() {
		return image.Point{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "search region smaller than template")
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(search, tmpl, &result, gocv.TmCcoeffNormed, mask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	center := image.Pt(maxLoc.X+tmpl.Cols()/2, maxLoc.Y+tmpl.Rows()/2)
	return center, float64(maxVal), nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func grayMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, apperrors.Wrap(err, apperrors.CodeRecognitionFailed, "convert to mat")
	}
	defer mat.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)
	return gray, nil
}
