// Package drift watches for table layout changes: a site update that
// moves the pot display or restyles the cards silently breaks region
// extraction long before recognition errors make it obvious. Captures
// are compared against stored baseline screenshots and scored per
// region; a failing critical region raises an alert.
package drift

import (
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tablesight/tablesight/internal/errors"
)

const (
	referenceFile = "reference.png"
	metadataFile  = "metadata.json"
)

// BaselineRecord describes one stored reference capture.
type BaselineRecord struct {
	ID         string    `json:"id"`
	SiteName   string    `json:"site_name"`
	Theme      string    `json:"theme,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Notes      string    `json:"notes,omitempty"`
}

// Store persists baselines on disk, one directory per baseline holding
// the reference image and its metadata.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore opens (creating if needed) a baseline store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeBaselineStoreFailed, "create baseline dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Add saves a new baseline and returns its record.
func (s *Store) Add(img image.Image, site, theme, resolution, notes string) (BaselineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := BaselineRecord{
		ID:         uuid.NewString(),
		SiteName:   site,
		Theme:      theme,
		Resolution: resolution,
		CreatedAt:  time.Now().UTC(),
		Notes:      notes,
	}

	dir := filepath.Join(s.dir, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BaselineRecord{}, apperrors.Wrapf(err, apperrors.CodeBaselineStoreFailed, "create baseline %s", rec.ID)
	}

	f, err := os.Create(filepath.Join(dir, referenceFile))
	if err != nil {
		return BaselineRecord{}, apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "write reference image")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return BaselineRecord{}, apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "encode reference image")
	}
	if err := f.Close(); err != nil {
		return BaselineRecord{}, apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "close reference image")
	}

	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return BaselineRecord{}, apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "marshal metadata")
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), meta, 0o644); err != nil {
		return BaselineRecord{}, apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "write metadata")
	}
	return rec, nil
}

// Get loads a baseline record and its reference image.
func (s *Store) Get(id string) (BaselineRecord, image.Image, error) {
	rec, err := s.readRecord(id)
	if err != nil {
		return BaselineRecord{}, nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, id, referenceFile))
	if err != nil {
		return BaselineRecord{}, nil, apperrors.Wrapf(err, apperrors.CodeBaselineNotFound, "open baseline %s", id)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return BaselineRecord{}, nil, apperrors.Wrapf(err, apperrors.CodeBaselineStoreFailed, "decode baseline %s", id)
	}
	return rec, img, nil
}

// List returns every stored record, newest first.
func (s *Store) List() ([]BaselineRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBaselineStoreFailed, "read baseline dir")
	}

	var records []BaselineRecord
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := s.readRecord(e.Name())
		if err != nil {
			continue // orphaned dir, skip
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ManifestEntry summarises the stored baselines for one layout key.
type ManifestEntry struct {
	SiteName   string   `json:"site_name"`
	Theme      string   `json:"theme,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Count      int      `json:"count"`
	IDs        []string `json:"ids"`
}

// Manifest groups the stored baselines by site, theme and resolution.
// IDs within a group are ordered newest first.
func (s *Store) Manifest() ([]ManifestEntry, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int)
	entries := []ManifestEntry{}
	for _, rec := range records {
		key := rec.SiteName + "|" + rec.Theme + "|" + rec.Resolution
		i, ok := idx[key]
		if !ok {
			i = len(entries)
			idx[key] = i
			entries = append(entries, ManifestEntry{
				SiteName:   rec.SiteName,
				Theme:      rec.Theme,
				Resolution: rec.Resolution,
			})
		}
		entries[i].Count++
		entries[i].IDs = append(entries[i].IDs, rec.ID)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SiteName != entries[j].SiteName {
			return entries[i].SiteName < entries[j].SiteName
		}
		if entries[i].Theme != entries[j].Theme {
			return entries[i].Theme < entries[j].Theme
		}
		return entries[i].Resolution < entries[j].Resolution
	})
	return entries, nil
}

// LatestFor returns the newest baseline for a site and theme, falling
// back to any theme for the site.
func (s *Store) LatestFor(site, theme string) (BaselineRecord, image.Image, error) {
	records, err := s.List()
	if err != nil {
		return BaselineRecord{}, nil, err
	}
	for _, rec := range records {
		if rec.SiteName == site && (theme == "" || rec.Theme == theme) {
			return s.Get(rec.ID)
		}
	}
	for _, rec := range records {
		if rec.SiteName == site {
			return s.Get(rec.ID)
		}
	}
	return BaselineRecord{}, nil, apperrors.Newf(apperrors.CodeBaselineNotFound, "no baseline for site %s", site)
}

// Remove deletes a baseline.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.readRecord(id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, id)); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeBaselineStoreFailed, "remove baseline %s", id)
	}
	return nil
}

func (s *Store) readRecord(id string) (BaselineRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id, metadataFile))
	if err != nil {
		return BaselineRecord{}, apperrors.Wrapf(err, apperrors.CodeBaselineNotFound, "baseline %s", id)
	}
	var rec BaselineRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return BaselineRecord{}, apperrors.Wrapf(err, apperrors.CodeBaselineStoreFailed, "parse metadata for %s", id)
	}
	return rec, nil
}
