//go:build windows

package capture

import (
	"context"
	"log/slog"
	"os"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

type windowsBackend struct{ tempDir string }

func (w *windowsBackend) captureRaw(ctx context.Context) ([]byte, error) {
	// TODO: implement using Windows GDI or DXGI
	return nil, apperrors.New(apperrors.CodeSourceUnavailable,
		"Windows screen capture not yet implemented")
}

func (w *windowsBackend) cleanup() {}

// NewScreenSource creates a platform-specific screen source.
func NewScreenSource() *ScreenSource {
	tmpDir, err := os.MkdirTemp("", "tablesight-screen-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return newScreen(&windowsBackend{tempDir: tmpDir}, tmpDir)
}
