package recognize

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/sites"
)

type mockOCR struct {
	text string
	err  error
}

func (m *mockOCR) ExtractText(_ context.Context, _ image.Image, _ string) (string, error) {
	return m.text, m.err
}

func (m *mockOCR) Close() error { return nil }

var (
	felt  = color.RGBA{R: 20, G: 90, B: 40, A: 255}
	white = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	red   = color.RGBA{R: 220, G: 10, B: 10, A: 255}
	blue  = color.RGBA{R: 10, G: 10, B: 230, A: 255}
)

// cardSlot draws a synthetic white card face with the given number of
// square pips.
func cardSlot(pips int, pip color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 96))
	draw.Draw(img, img.Bounds(), &image.Uniform{white}, image.Point{}, draw.Src)
	for i := 0; i < pips; i++ {
		x := 10 + (i%3)*18
		y := 10 + (i/3)*22
		draw.Draw(img, image.Rect(x, y, x+8, y+8), &image.Uniform{pip}, image.Point{}, draw.Src)
	}
	return img
}

func emptySlot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 96))
	draw.Draw(img, img.Bounds(), &image.Uniform{felt}, image.Point{}, draw.Src)
	return img
}

func testSite() *sites.SiteConfig {
	return sites.Demo()
}

func TestHeuristicReadsPipCountAndColor(t *testing.T) {
	r := NewCardRecognizer(nil, testSite(), nil, nil)

	card, conf, ok := r.Recognize(context.Background(), cardSlot(3, red))
	if !ok {
		t.Fatal("expected a confident read")
	}
	if card.String() != "3h" {
		t.Errorf("card = %s, want 3h", card)
	}
	if conf < DefaultConfidenceFloor {
		t.Errorf("confidence %v below floor", conf)
	}
}

func TestHeuristicSinglePipIsAce(t *testing.T) {
	r := NewCardRecognizer(nil, testSite(), nil, nil)

	card, _, ok := r.Recognize(context.Background(), cardSlot(1, blue))
	if !ok || card.String() != "Ad" {
		t.Errorf("card = %v,%v want Ad", card, ok)
	}
}

func TestEmptySlotIsAbsent(t *testing.T) {
	r := NewCardRecognizer(nil, testSite(), nil, nil)

	if _, _, ok := r.Recognize(context.Background(), emptySlot()); ok {
		t.Error("felt-only slot should be absent, not a guessed card")
	}
}

func TestOCRTierReadsRank(t *testing.T) {
	r := NewCardRecognizer(&mockOCR{text: "K"}, testSite(), nil, nil)

	// Face cards have no countable pips; only the OCR tier can read them.
	slot := cardSlot(12, red)
	card, conf, ok := r.Recognize(context.Background(), slot)
	if !ok {
		t.Fatal("expected OCR tier to resolve the card")
	}
	if card.Rank != 'K' || card.Suit != 'h' {
		t.Errorf("card = %s, want Kh", card)
	}
	if conf != 0.75 {
		t.Errorf("conf = %v, want 0.75", conf)
	}
}

func TestOCRFailureFallsThroughToHeuristic(t *testing.T) {
	ocrErr := apperrors.New(apperrors.CodeOCRUnavailable, "down")
	r := NewCardRecognizer(&mockOCR{err: ocrErr}, testSite(), nil, nil)

	card, _, ok := r.Recognize(context.Background(), cardSlot(5, red))
	if !ok || card.String() != "5h" {
		t.Errorf("card = %v,%v want 5h via heuristic", card, ok)
	}
}

func TestRecognizeRow(t *testing.T) {
	r := NewCardRecognizer(nil, testSite(), nil, nil)

	row := image.NewRGBA(image.Rect(0, 0, 128, 96))
	draw.Draw(row, row.Bounds(), &image.Uniform{felt}, image.Point{}, draw.Src)
	draw.Draw(row, image.Rect(0, 0, 64, 96), cardSlot(2, red), image.Point{}, draw.Src)
	draw.Draw(row, image.Rect(64, 0, 128, 96), cardSlot(4, blue), image.Point{}, draw.Src)

	cards, conf := r.RecognizeRow(context.Background(), row, 2)
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}
	if cards[0].String() != "2h" || cards[1].String() != "4d" {
		t.Errorf("cards = %v, want [2h 4d]", cards)
	}
	if conf <= 0 {
		t.Error("row confidence should be positive")
	}
}

func TestRecognizeRowAllEmpty(t *testing.T) {
	r := NewCardRecognizer(nil, testSite(), nil, nil)

	row := image.NewRGBA(image.Rect(0, 0, 128, 96))
	draw.Draw(row, row.Bounds(), &image.Uniform{felt}, image.Point{}, draw.Src)

	cards, _ := r.RecognizeRow(context.Background(), row, 2)
	if len(cards) != 0 {
		t.Errorf("empty row produced cards: %v", cards)
	}
}

func TestParseRank(t *testing.T) {
	tests := []struct {
		in   string
		want byte
		ok   bool
	}{
		{"A", 'A', true},
		{" k ", 'K', true},
		{"10", 'T', true},
		{"Q♦", 'Q', true},
		{"", 0, false},
		{"xyz", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRank(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("parseRank(%q) = %c,%v want %c,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
