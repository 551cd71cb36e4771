package capture

import (
	"context"
	"image"
	"sync"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

// FrameSource serves externally supplied frames. Tests and replay
// harnesses push frames in; the engine polls them out like any other
// source.
type FrameSource struct {
	mu    sync.Mutex
	frame image.Image
}

// NewFrameSource creates an empty frame slot.
func NewFrameSource() *FrameSource {
	return &FrameSource{}
}

// Set replaces the frame returned by subsequent Capture calls.
func (f *FrameSource) Set(img image.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = img
}

// Capture returns the injected frame, or SOURCE_UNAVAILABLE when none is set.
func (f *FrameSource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame == nil {
		return nil, apperrors.New(apperrors.CodeSourceUnavailable, "no frame injected")
	}
	return f.frame, nil
}

// Close clears the slot.
func (f *FrameSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = nil
	return nil
}
