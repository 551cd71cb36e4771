package capture

import (
	"bytes"
	"context"
	"image"
	"os"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

// backend implements platform-specific raw capture.
type backend interface {
	captureRaw(ctx context.Context) ([]byte, error)
	cleanup()
}

// ScreenSource grabs the full screen through the platform backend and
// decodes it into an image.
type ScreenSource struct {
	backend
	tempDir string
}

func newScreen(b backend, tempDir string) *ScreenSource {
	return &ScreenSource{backend: b, tempDir: tempDir}
}

// Capture grabs and decodes one screenshot.
func (s *ScreenSource) Capture(ctx context.Context) (image.Image, error) {
	data, err := s.captureRaw(ctx)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSourceUnavailable, "decode screenshot")
	}
	return img, nil
}

// Close removes the backend's scratch directory.
func (s *ScreenSource) Close() error {
	s.cleanup()
	if s.tempDir != "" {
		return os.RemoveAll(s.tempDir)
	}
	return nil
}
