package recognize

import (
	"context"
	"image"
	"strings"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/geometry"
	"github.com/tablesight/tablesight/internal/ocr"
	"github.com/tablesight/tablesight/internal/sites"
	"github.com/tablesight/tablesight/internal/state"
)

// Slot counts for the fixed multi-card regions.
const (
	HeroCardSlots  = 2
	BoardCardSlots = 5
)

// CardRecognizer resolves one card slot through a three-tier cascade:
// template correlation, OCR rank plus glyph color, and a pure pixel
// heuristic that works without OpenCV or Tesseract.
type CardRecognizer struct {
	cascade *Cascade[state.Card]
	faceMin float64
}

// NewCardRecognizer builds the cascade for the given site. templates may
// be nil; the tier is then skipped. cache may be nil.
func NewCardRecognizer(client ocr.Client, cfg *sites.SiteConfig, templates *TemplateCatalog, cache *Cache[state.Card]) *CardRecognizer {
	r := &CardRecognizer{faceMin: cfg.Colors.CardFaceMin}

	var strategies []Strategy[state.Card]
	if templates.HasCards() {
		strategies = append(strategies, StrategyFunc[state.Card]{
			StrategyName: "template",
			Fn: func(ctx context.Context, img image.Image) (state.Card, float64, error) {
				return templates.MatchCard(img)
			},
		})
	}
	if client != nil {
		strategies = append(strategies, StrategyFunc[state.Card]{
			StrategyName: "ocr",
			Fn: func(ctx context.Context, img image.Image) (state.Card, float64, error) {
				return r.ocrCard(ctx, client, cfg.OCR.RankWhitelist, img)
			},
		})
	}
	strategies = append(strategies, StrategyFunc[state.Card]{
		StrategyName: "color-heuristic",
		Fn: func(ctx context.Context, img image.Image) (state.Card, float64, error) {
			return r.heuristicCard(img)
		},
	})

	r.cascade = NewCascade("card", DefaultConfidenceFloor, cache, strategies...)
	return r
}

// Recognize resolves a single card slot. ok is false when the slot is
// empty or unreadable; the field is then absent.
func (r *CardRecognizer) Recognize(ctx context.Context, img image.Image) (state.Card, float64, bool) {
	return r.cascade.Run(ctx, img)
}

// RecognizeRow splits a multi-card region into equal slots and resolves
// each, returning only the cards that were confidently read.
func (r *CardRecognizer) RecognizeRow(ctx context.Context, img image.Image, slots int) ([]state.Card, float64) {
	if slots <= 0 {
		return nil, 0
	}
	b := img.Bounds()
	slotW := b.Dx() / slots
	if slotW == 0 {
		return nil, 0
	}

	var cards []state.Card
	total := 0.0
	for i := 0; i < slots; i++ {
		slot := geometry.Extract(img, geometry.BoundingBox{
			X:     b.Min.X + i*slotW,
			Y:     b.Min.Y,
			Width: slotW, Height: b.Dy(),
			Name: "card_slot",
		})
		card, conf, ok := r.Recognize(ctx, slot)
		if ok && !card.IsZero() {
			cards = append(cards, card)
			total += conf
		}
	}
	if len(cards) == 0 {
		return nil, 0
	}
	return cards, total / float64(len(cards))
}

// ocrCard reads the rank via Tesseract and takes the suit from the glyph
// color under a four-color deck.
func (r *CardRecognizer) ocrCard(ctx context.Context, client ocr.Client, rankWhitelist string, img image.Image) (state.Card, float64, error) {
	stats := analyzePixels(img)
	if stats.faceRatio < r.faceMin {
		return state.Card{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "no card face in slot")
	}

	text, err := client.ExtractText(ctx, img, rankWhitelist)
	if err != nil {
		return state.Card{}, 0, err
	}
	rank, ok := parseRank(text)
	if !ok {
		return state.Card{}, 0, apperrors.Newf(apperrors.CodeRecognitionFailed, "no rank in %q", text)
	}

	color, _ := stats.dominantGlyph()
	suit, ok := suitForColor(color)
	if !ok {
		return state.Card{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "no glyph color")
	}
	return state.Card{Rank: rank, Suit: suit}, 0.75, nil
}

// heuristicCard is the last tier: presence from the white-face ratio,
// suit from glyph color, rank from pip-blob counting. Implausible pip
// counts fail rather than guess.
func (r *CardRecognizer) heuristicCard(img image.Image) (state.Card, float64, error) {
	stats := analyzePixels(img)
	if stats.faceRatio < r.faceMin {
		return state.Card{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "no card face in slot")
	}

	color, count := stats.dominantGlyph()
	suit, ok := suitForColor(color)
	if !ok || count == 0 {
		return state.Card{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "no glyph color")
	}

	mask, marked := glyphMask(img)
	if marked == 0 {
		return state.Card{}, 0, apperrors.New(apperrors.CodeRecognitionFailed, "no glyph pixels")
	}
	minBlob := max(4, stats.total/400)
	pips := countBlobs(mask, minBlob)

	rank, ok := rankForPips(pips)
	if !ok {
		return state.Card{}, 0, apperrors.Newf(apperrors.CodeRecognitionFailed, "implausible pip count %d", pips)
	}
	return state.Card{Rank: rank, Suit: suit}, 0.65, nil
}

// parseRank extracts the first card rank from OCR output, accepting "10"
// for ten.
func parseRank(text string) (byte, bool) {
	text = strings.ToUpper(strings.TrimSpace(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '1' && i+1 < len(text) && text[i+1] == '0' {
			return 'T', true
		}
		if strings.IndexByte(state.Ranks, c) >= 0 {
			return c, true
		}
	}
	return 0, false
}

// rankForPips maps a pip count to a rank: one central pip reads as an
// ace, 2-10 as themselves. Face cards carry a portrait, not pips, so any
// other count is unreadable at this tier.
func rankForPips(pips int) (byte, bool) {
	switch {
	case pips == 1:
		return 'A', true
	case pips >= 2 && pips <= 9:
		return byte('0' + pips), true
	case pips == 10:
		return 'T', true
	default:
		return 0, false
	}
}
