package geometry

import (
	"image"
	"testing"
)

func testImage(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestExtractWithinBounds(t *testing.T) {
	img := testImage(200, 100)
	box := BoundingBox{X: 10, Y: 20, Width: 50, Height: 30, Name: "pot"}

	sub := Extract(img, box)
	if sub.Bounds().Dx() != 50 || sub.Bounds().Dy() != 30 {
		t.Errorf("extracted %dx%d, want 50x30", sub.Bounds().Dx(), sub.Bounds().Dy())
	}
}

func TestExtractClampsToImage(t *testing.T) {
	img := testImage(100, 100)
	box := BoundingBox{X: 80, Y: 90, Width: 50, Height: 50, Name: "seat_9"}

	sub := Extract(img, box)
	if sub.Bounds().Dx() != 20 || sub.Bounds().Dy() != 10 {
		t.Errorf("extracted %dx%d, want clamped 20x10", sub.Bounds().Dx(), sub.Bounds().Dy())
	}
}

func TestExtractEntirelyOutsideReturnsPlaceholder(t *testing.T) {
	img := testImage(100, 100)
	box := BoundingBox{X: 500, Y: 500, Width: 40, Height: 40, Name: "ghost"}

	sub := Extract(img, box)
	if sub == nil {
		t.Fatal("expected placeholder, got nil")
	}
	if sub.Bounds().Dx() != PlaceholderSize || sub.Bounds().Dy() != PlaceholderSize {
		t.Errorf("placeholder is %dx%d, want %dx%d",
			sub.Bounds().Dx(), sub.Bounds().Dy(), PlaceholderSize, PlaceholderSize)
	}
}

func TestExtractNeverExceedsRequestedDims(t *testing.T) {
	img := testImage(64, 64)
	boxes := []BoundingBox{
		{X: 0, Y: 0, Width: 64, Height: 64},
		{X: -10, Y: -10, Width: 30, Height: 30},
		{X: 60, Y: 60, Width: 100, Height: 100},
		{X: 0, Y: 0, Width: 0, Height: 0},
	}
	for _, box := range boxes {
		sub := Extract(img, box)
		w, h := sub.Bounds().Dx(), sub.Bounds().Dy()
		if w < 0 || h < 0 {
			t.Errorf("box %+v: negative dims %dx%d", box, w, h)
		}
		// Placeholder aside, the result may never exceed the request.
		if !box.Empty() && (w > box.Width || h > box.Height) {
			t.Errorf("box %+v: extracted %dx%d exceeds request", box, w, h)
		}
	}
}

func TestContains(t *testing.T) {
	box := BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}

	if !box.Contains(10, 10) {
		t.Error("top-left corner should be inside")
	}
	if box.Contains(30, 30) {
		t.Error("bottom-right edge is exclusive")
	}
	if box.Contains(5, 15) {
		t.Error("point left of box should be outside")
	}
}

func TestIntersects(t *testing.T) {
	a := BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}
	b := BoundingBox{X: 5, Y: 5, Width: 10, Height: 10}
	c := BoundingBox{X: 20, Y: 20, Width: 5, Height: 5}

	if !a.Intersects(b) {
		t.Error("overlapping boxes should intersect")
	}
	if a.Intersects(c) {
		t.Error("disjoint boxes should not intersect")
	}
}

func TestCenterDistance(t *testing.T) {
	box := BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}
	if d := box.CenterDistance(image.Pt(50, 50)); d != 0 {
		t.Errorf("distance to own center = %v, want 0", d)
	}
	if d := box.CenterDistance(image.Pt(50, 80)); d != 30 {
		t.Errorf("distance = %v, want 30", d)
	}
}
