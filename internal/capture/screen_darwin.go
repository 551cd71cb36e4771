//go:build darwin

package capture

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

type darwinBackend struct{ tempDir string }

func (d *darwinBackend) captureRaw(ctx context.Context) ([]byte, error) {
	tmpFile := filepath.Join(d.tempDir, "screenshot.png")
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-m", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSourceUnavailable,
			"screencapture failed: %s", stderr.String())
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeSourceUnavailable, "read screenshot")
	}
	os.Remove(tmpFile)
	return data, nil
}

func (d *darwinBackend) cleanup() {}

// NewScreenSource creates a platform-specific screen source.
func NewScreenSource() *ScreenSource {
	tmpDir, err := os.MkdirTemp("", "tablesight-screen-*")
	if err != nil {
		slog.Error("failed to create temp dir", "error", err)
		tmpDir = os.TempDir()
	}
	return newScreen(&darwinBackend{tempDir: tmpDir}, tmpDir)
}
