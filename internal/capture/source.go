// Package capture provides the capture sources the engine polls: the
// platform screen grabber, a window crop, an injected frame slot for
// tests, and a file-replay source.
package capture

import (
	"context"
	"image"
	"time"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/geometry"
)

// Source acquires one raw frame per call. Implementations must honour ctx
// cancellation; the engine additionally bounds every call with a timeout.
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

// WithTimeout bounds every Capture call of src. A timeout is reported as
// CAPTURE_TIMEOUT and treated by the engine like any other source failure.
func WithTimeout(src Source, timeout time.Duration) Source {
	return &timeoutSource{src: src, timeout: timeout}
}

type timeoutSource struct {
	src     Source
	timeout time.Duration
}

type captureResult struct {
	img image.Image
	err error
}

func (t *timeoutSource) Capture(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// Buffered so a late completion never leaks the goroutine.
	ch := make(chan captureResult, 1)
	go func() {
		img, err := t.src.Capture(ctx)
		ch <- captureResult{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeCaptureTimeout, "capture timed out")
	case res := <-ch:
		return res.img, res.err
	}
}

func (t *timeoutSource) Close() error { return t.src.Close() }

// WindowSource crops a parent source to a fixed window region, for sites
// running in a known client window rather than full screen.
type WindowSource struct {
	parent Source
	region geometry.BoundingBox
}

// NewWindowSource wraps parent, returning only the given region of each frame.
func NewWindowSource(parent Source, region geometry.BoundingBox) *WindowSource {
	return &WindowSource{parent: parent, region: region}
}

// Capture grabs a parent frame and slices out the window region.
func (w *WindowSource) Capture(ctx context.Context) (image.Image, error) {
	img, err := w.parent.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return geometry.Extract(img, w.region), nil
}

// Close closes the parent source.
func (w *WindowSource) Close() error { return w.parent.Close() }
