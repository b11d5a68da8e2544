package cataloging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/capture"
	"github.com/lehigh-university-libraries/lifeindex/internal/catalog"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/photostore"
	"github.com/lehigh-university-libraries/lifeindex/internal/storage"
)

// Service ties the photo store, the catalog and the assistant together
// for callers that work with whole captures and items.
type Service struct {
	store         *photostore.Store
	catalog       *catalog.Catalog
	assistant     capture.Assistant
	sessions      *storage.SessionStore
	assistTimeout time.Duration
	logger        *slog.Logger
}

func NewService(store *photostore.Store, cat *catalog.Catalog, assistant capture.Assistant, assistTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         store,
		catalog:       cat,
		assistant:     assistant,
		sessions:      storage.New(),
		assistTimeout: assistTimeout,
		logger:        logger,
	}
}

func (s *Service) Store() *photostore.Store        { return s.store }
func (s *Service) Catalog() *catalog.Catalog       { return s.catalog }
func (s *Service) Sessions() *storage.SessionStore { return s.sessions }

// NewSession returns a fresh Idle capture session registered with the
// session store.
func (s *Service) NewSession() *storage.Session {
	workflow := capture.New(s.assistant, s.store, s.catalog,
		capture.WithAssistTimeout(s.assistTimeout),
		capture.WithLogger(s.logger))
	return s.sessions.Add(workflow)
}

// StartCapture copies the photo from src into the temp area and begins
// analyzing it in a new session. ext is the photo's file extension.
func (s *Service) StartCapture(ctx context.Context, src io.Reader, ext string) (*storage.Session, error) {
	tempPath, err := s.store.AllocateTempLocation(ext)
	if err != nil {
		return nil, err
	}

	dst, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temp capture: %v", models.ErrIO, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		s.store.DiscardTemp(tempPath)
		return nil, fmt.Errorf("%w: failed to write temp capture: %v", models.ErrIO, err)
	}
	if err := dst.Close(); err != nil {
		s.store.DiscardTemp(tempPath)
		return nil, fmt.Errorf("%w: failed to write temp capture: %v", models.ErrIO, err)
	}

	session := s.NewSession()
	if err := session.Workflow.Begin(ctx, tempPath); err != nil {
		s.sessions.Delete(session.ID)
		s.store.DiscardTemp(tempPath)
		return nil, err
	}
	return session, nil
}

// StartCaptureFromFile copies an existing photo into a new session. The
// source file is left in place.
func (s *Service) StartCaptureFromFile(ctx context.Context, path string) (*storage.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open photo: %v", models.ErrIO, err)
	}
	defer f.Close()

	return s.StartCapture(ctx, f, filepath.Ext(path))
}

// ItemEdit describes changes to an Item. Nil fields are left unchanged.
// Tags, when set, replaces the tag list before AddTags and RemoveTags are
// applied.
type ItemEdit struct {
	Title      *string
	Category   *string
	Tags       *models.Tags
	AddTags    []string
	RemoveTags []string
}

// UpdateItem applies edit to the item with id. It returns nil if there is
// no such item.
func (s *Service) UpdateItem(ctx context.Context, id int64, edit ItemEdit) (*models.Item, error) {
	item, err := s.catalog.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}

	if edit.Title != nil {
		item.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Category != nil {
		item.Category = models.NormalizeCategory(*edit.Category)
	}
	if edit.Tags != nil {
		item.Tags = edit.Tags.Clone()
	}
	for _, tag := range edit.AddTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			item.Tags = item.Tags.Add(tag)
		}
	}
	for _, tag := range edit.RemoveTags {
		item.Tags = item.Tags.Remove(strings.TrimSpace(tag))
	}

	if err := s.catalog.Update(ctx, *item); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// DeleteItem removes the item and then its photo. It reports false if
// there was no such item. A photo that cannot be removed is left for the
// orphan sweep; an Item never outlives its photo.
func (s *Service) DeleteItem(ctx context.Context, id int64) (bool, error) {
	item, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	if err := s.catalog.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.store.DiscardPermanent(item.ImageLocation); err != nil {
		s.logger.Warn("Item deleted but photo kept for sweep", "id", id, "path", item.ImageLocation, "error", err)
	}
	return true, nil
}

// Orphans lists permanent photos that no Item references.
func (s *Service) Orphans(ctx context.Context) ([]photostore.File, error) {
	// list files before reading references so a commit landing in between
	// is seen as referenced rather than orphaned
	files, err := s.store.ListPermanent(ctx)
	if err != nil {
		return nil, err
	}
	referenced, err := s.catalog.ImageLocations(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []photostore.File
	for _, f := range files {
		if !referenced[f.Path] {
			orphans = append(orphans, f)
		}
	}
	return orphans, nil
}

// SweepResult counts what a sweep removed.
type SweepResult struct {
	Orphans     int `json:"orphans" yaml:"orphans"`
	Skipped     int `json:"skipped" yaml:"skipped"`
	TempCapture int `json:"temp_captures" yaml:"temp_captures"`
}

// Sweep removes orphaned permanent photos and abandoned temp captures last
// modified more than grace ago. Orphans still held by a live session for
// a retry and temp photos of sessions still in progress are skipped.
func (s *Service) Sweep(ctx context.Context, grace time.Duration) (SweepResult, error) {
	var result SweepResult

	orphans, err := s.Orphans(ctx)
	if err != nil {
		return result, err
	}

	pending := s.sessions.PendingOrphans()
	cutoff := time.Now().Add(-grace)
	for _, f := range orphans {
		if pending[f.Path] || f.ModTime.After(cutoff) {
			result.Skipped++
			continue
		}
		if err := s.store.DiscardPermanent(f.Path); err != nil {
			s.logger.Warn("Failed to sweep orphan", "path", f.Path, "error", err)
			continue
		}
		result.Orphans++
	}

	removed, err := s.store.SweepTemp(grace, s.sessions.PendingTemps())
	if err != nil {
		return result, err
	}
	result.TempCapture = removed

	s.logger.Info("Sweep finished", "orphans", result.Orphans, "skipped", result.Skipped, "temp_captures", result.TempCapture)
	return result, nil
}
