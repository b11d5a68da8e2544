// Package photostore keeps captured photos on disk in two disjoint areas
// under one root: a temp area for captures still being confirmed and a
// permanent area for photos that belong to catalog items. Photos reach the
// permanent area only by a rename, never by copying.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
)

const (
	tempSubdir      = "temp"
	permanentSubdir = "images"
	defaultExt      = ".jpg"
)

// Store owns the two disjoint image areas under a storage root: a temp area
// for captures still being confirmed and a permanent area for cataloged
// images. The permanent area is append-only; commits never overwrite.
type Store struct {
	tempDir      string
	permanentDir string
	logger       *slog.Logger
	now          func() time.Time
}

// File describes an image in the permanent area
type File struct {
	Path    string
	ModTime time.Time
}

// New creates both areas under root if they do not exist yet.
func New(root string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		tempDir:      filepath.Join(abs, tempSubdir),
		permanentDir: filepath.Join(abs, permanentSubdir),
		logger:       logger,
		now:          time.Now,
	}
	for _, dir := range []string{s.tempDir, s.permanentDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: failed to create directory %s: %v", models.ErrIO, dir, err)
		}
	}
	return s, nil
}

func (s *Store) TempDir() string      { return s.tempDir }
func (s *Store) PermanentDir() string { return s.permanentDir }

// AllocateTempLocation returns a fresh path in the temp area. ext is the
// file extension including the dot; empty means ".jpg". Nothing is written
// at the returned path.
func (s *Store) AllocateTempLocation(ext string) (string, error) {
	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create temp area: %v", models.ErrIO, err)
	}
	return filepath.Join(s.tempDir, s.fileName("capture", ext)), nil
}

// Commit moves a temp capture into the permanent area and returns its new
// path. The move is a single rename within the storage root, so on success
// the permanent file exists and the temp file is gone, and on failure the
// temp file is untouched.
func (s *Store) Commit(ctx context.Context, tempPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrIO, err)
	}
	if !s.IsTemp(tempPath) {
		return "", fmt.Errorf("%w: %s is not in the temp area", models.ErrIO, tempPath)
	}

	info, err := os.Lstat(tempPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to stat temp capture: %v", models.ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", models.ErrIO, tempPath)
	}

	if err := os.MkdirAll(s.permanentDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create permanent area: %v", models.ErrIO, err)
	}

	permanentPath := filepath.Join(s.permanentDir, s.fileName("item", filepath.Ext(tempPath)))
	if _, err := os.Lstat(permanentPath); err == nil {
		return "", fmt.Errorf("%w: permanent path %s already exists", models.ErrIO, permanentPath)
	}

	if err := os.Rename(tempPath, permanentPath); err != nil {
		return "", fmt.Errorf("%w: failed to move capture: %v", models.ErrIO, err)
	}

	// the orphan sweep's grace period counts from the commit, not the capture
	now := s.now()
	if err := os.Chtimes(permanentPath, now, now); err != nil {
		s.logger.Warn("Failed to stamp committed capture", "path", permanentPath, "error", err)
	}

	if err := syncDir(s.permanentDir); err != nil {
		s.logger.Warn("Failed to sync permanent area", "dir", s.permanentDir, "error", err)
	}

	s.logger.Info("Capture committed", "temp", tempPath, "permanent", permanentPath)
	return permanentPath, nil
}

// DiscardTemp removes an abandoned temp capture. Failures are logged, never
// returned.
func (s *Store) DiscardTemp(tempPath string) {
	if tempPath == "" {
		return
	}
	if !s.IsTemp(tempPath) {
		s.logger.Warn("Refusing to discard file outside temp area", "path", tempPath)
		return
	}
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to discard temp capture", "path", tempPath, "error", err)
		return
	}
	s.logger.Debug("Temp capture discarded", "path", tempPath)
}

// DiscardPermanent removes a file from the permanent area. Callers must
// make sure no Item references it first.
func (s *Store) DiscardPermanent(permanentPath string) error {
	if !s.IsPermanent(permanentPath) {
		return fmt.Errorf("%w: %s is not in the permanent area", models.ErrIO, permanentPath)
	}
	if err := os.Remove(permanentPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove %s: %v", models.ErrIO, permanentPath, err)
	}
	s.logger.Info("Permanent image removed", "path", permanentPath)
	return nil
}

// ListPermanent returns every file in the permanent area, sorted by path.
func (s *Store) ListPermanent(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(s.permanentDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read permanent area: %v", models.ErrIO, err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, File{
			Path:    filepath.Join(s.permanentDir, entry.Name()),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// SweepTemp removes temp captures last modified more than olderThan ago and
// returns how many were removed. Paths in keep are left alone whatever
// their age.
func (s *Store) SweepTemp(olderThan time.Duration, keep map[string]bool) (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: failed to read temp area: %v", models.ErrIO, err)
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if keep[path] {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to sweep temp capture", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("Swept abandoned temp captures", "count", removed)
	}
	return removed, nil
}

// Exists reports whether a regular file exists at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsTemp reports whether path names a file directly inside the temp area.
func (s *Store) IsTemp(path string) bool {
	return within(s.tempDir, path)
}

// IsPermanent reports whether path names a file directly inside the
// permanent area.
func (s *Store) IsPermanent(path string) bool {
	return within(s.permanentDir, path)
}

func (s *Store) fileName(prefix, ext string) string {
	if ext == "" {
		ext = defaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%d_%s%s", prefix, s.now().UnixMilli(), uuid.NewString(), strings.ToLower(ext))
}

func within(dir, path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == dir
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
