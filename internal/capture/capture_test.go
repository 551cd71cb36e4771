package capture

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/geometry"
)

func TestFrameSourceEmpty(t *testing.T) {
	src := NewFrameSource()
	_, err := src.Capture(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeSourceUnavailable) {
		t.Errorf("empty frame source err = %v, want SOURCE_UNAVAILABLE", err)
	}
}

func TestFrameSourceRoundTrip(t *testing.T) {
	src := NewFrameSource()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	src.Set(img)

	got, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", got.Bounds(), img.Bounds())
	}
}

func TestWindowSourceCrops(t *testing.T) {
	src := NewFrameSource()
	src.Set(image.NewRGBA(image.Rect(0, 0, 100, 100)))
	win := NewWindowSource(src, geometry.BoundingBox{X: 10, Y: 10, Width: 30, Height: 20, Name: "client"})

	got, err := win.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got.Bounds().Dx() != 30 || got.Bounds().Dy() != 20 {
		t.Errorf("cropped to %v, want 30x20", got.Bounds())
	}
}

type slowSource struct{ delay time.Duration }

func (s *slowSource) Capture(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	}
}

func (s *slowSource) Close() error { return nil }

func TestWithTimeout(t *testing.T) {
	src := WithTimeout(&slowSource{delay: time.Second}, 10*time.Millisecond)
	_, err := src.Capture(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeCaptureTimeout) {
		t.Errorf("err = %v, want CAPTURE_TIMEOUT", err)
	}
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	src := WithTimeout(&slowSource{delay: time.Millisecond}, time.Second)
	img, err := src.Capture(context.Background())
	if err != nil || img == nil {
		t.Errorf("fast capture failed: %v", err)
	}
}

func TestFileSourceReplay(t *testing.T) {
	dir := t.TempDir()
	for i, c := range []uint8{10, 200} {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		for p := range img.Pix {
			img.Pix[p] = c
		}
		f, err := os.Create(filepath.Join(dir, filepath.Base(dir)+string(rune('a'+i))+".png"))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	src, err := NewFileSource(dir)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	first, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("first capture: %v", err)
	}
	second, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("second capture: %v", err)
	}
	// Frames replay in filename order; after exhaustion the last frame repeats.
	third, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("third capture: %v", err)
	}
	r1, _, _, _ := first.At(0, 0).RGBA()
	r2, _, _, _ := second.At(0, 0).RGBA()
	r3, _, _, _ := third.At(0, 0).RGBA()
	if r1 == r2 {
		t.Error("expected distinct frames in order")
	}
	if r2 != r3 {
		t.Error("expected replay to stick on last frame")
	}
}

func TestFileSourceEmptyDir(t *testing.T) {
	if _, err := NewFileSource(t.TempDir()); err == nil {
		t.Error("expected error for directory without frames")
	}
}
