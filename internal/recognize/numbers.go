package recognize

import (
	"context"
	"image"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/ocr"
	"github.com/tablesight/tablesight/internal/sites"
)

// MaxPlausibleAmount bounds the largest-number selection so decorative
// numerals (table IDs, timestamps) cannot win over the pot display.
const MaxPlausibleAmount = 10_000_000

var amountPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParseAmounts extracts every numeric substring from OCR output,
// stripping currency formatting, in the order encountered.
func ParseAmounts(text string) []float64 {
	var amounts []float64
	for _, m := range amountPattern.FindAllString(text, -1) {
		cleaned := strings.ReplaceAll(m, ",", "")
		v, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		amounts = append(amounts, v)
	}
	return amounts
}

// LargestPlausible picks the biggest amount at or below the plausibility
// cap; pot and stack displays are typically the dominant number in their
// region.
func LargestPlausible(amounts []float64) (float64, bool) {
	best, found := 0.0, false
	for _, v := range amounts {
		if v > MaxPlausibleAmount {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

// NumberRecognizer extracts a monetary amount from a text region.
type NumberRecognizer struct {
	cascade *Cascade[float64]
}

// NewNumberRecognizer builds the numeric cascade: whitelisted OCR first,
// unrestricted OCR as the fallback (some themes render currency glyphs
// the whitelist pass rejects wholesale).
func NewNumberRecognizer(client ocr.Client, cfg *sites.SiteConfig, cache *Cache[float64]) *NumberRecognizer {
	extract := func(whitelist string, conf float64) func(context.Context, image.Image) (float64, float64, error) {
		return func(ctx context.Context, img image.Image) (float64, float64, error) {
			text, err := client.ExtractText(ctx, img, whitelist)
			if err != nil {
				return 0, 0, err
			}
			v, ok := LargestPlausible(ParseAmounts(text))
			if !ok {
				return 0, 0, apperrors.Newf(apperrors.CodeRecognitionFailed, "no amount in %q", text)
			}
			return v, conf, nil
		}
	}

	var strategies []Strategy[float64]
	if client != nil {
		strategies = append(strategies,
			StrategyFunc[float64]{StrategyName: "ocr-whitelist", Fn: extract(cfg.OCR.NumberWhitelist, 0.85)},
			StrategyFunc[float64]{StrategyName: "ocr-free", Fn: extract("", 0.65)},
		)
	}

	return &NumberRecognizer{
		cascade: NewCascade("number", DefaultConfidenceFloor, cache, strategies...),
	}
}

// Extract resolves the amount in a region. ok is false when nothing
// numeric could be read; the field is then absent.
func (r *NumberRecognizer) Extract(ctx context.Context, img image.Image) (float64, float64, bool) {
	return r.cascade.Run(ctx, img)
}
