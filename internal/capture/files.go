package capture

import (
	"context"
	"image"
	_ "image/jpeg" // frame decoders
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

// FileSource replays a directory of PNG/JPEG frames in filename order,
// one per Capture call, sticking on the last frame once exhausted.
// Useful for reproducing captures offline.
type FileSource struct {
	mu    sync.Mutex
	paths []string
	idx   int
}

// NewFileSource scans dir for image files.
func NewFileSource(dir string) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSourceUnavailable, "read frames dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, apperrors.Newf(apperrors.CodeSourceUnavailable, "no frames in %s", dir)
	}
	sort.Strings(paths)
	return &FileSource{paths: paths}, nil
}

// Capture decodes the next frame.
func (f *FileSource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	path := f.paths[f.idx]
	if f.idx < len(f.paths)-1 {
		f.idx++
	}
	f.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSourceUnavailable, "open frame %s", path)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeSourceUnavailable, "decode frame %s", path)
	}
	return img, nil
}

// Close is a no-op for file replay.
func (f *FileSource) Close() error { return nil }
