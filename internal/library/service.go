// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package library implements the user-facing operations on persisted
// recordings: listing, renaming, submission, deletion and reconciliation
// of records whose backing files disappeared.
package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/fsutil"
	"github.com/ManuGH/dashcam/internal/log"
)

var (
	ErrInvalidTitle = errors.New("title must not be empty")
	ErrInvalidPage  = errors.New("invalid page")
	ErrNoIDs        = errors.New("no record ids given")
)

const (
	MaxPageSize  = 500
	maxTitleLen  = 200
	scanPageSize = 200
)

// Uploader ships a recording file off the device before it is flagged
// as submitted.
type Uploader interface {
	Upload(ctx context.Context, rec model.VideoRecord, path string) error
}

// Service provides business logic for library operations.
type Service struct {
	store    ports.RecordStore
	root     string
	uploader Uploader
	notifier ports.Notifier
}

// NewService creates a library service. uploader and notifier may be nil.
func NewService(store ports.RecordStore, root string, uploader Uploader, notifier ports.Notifier) *Service {
	return &Service{store: store, root: root, uploader: uploader, notifier: notifier}
}

// Root is the recordings directory.
func (s *Service) Root() string { return s.root }

// List returns one page of records in insertion order.
func (s *Service) List(ctx context.Context, page, size int, submittedOnly bool) ([]model.VideoRecord, error) {
	if page < 0 || size <= 0 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: page=%d size=%d", ErrInvalidPage, page, size)
	}
	return s.store.Query(ctx, page, size, submittedOnly)
}

// Rename replaces a record's title.
func (s *Service) Rename(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTitleLen {
		return ErrInvalidTitle
	}
	if err := s.store.UpdateTitle(ctx, id, title); err != nil {
		return err
	}
	logger := log.WithComponentFromContext(ctx, "library")
	logger.Info().Int64(log.FieldRecordID, id).Msg("recording renamed")
	s.changed(ctx)
	return nil
}

// Submit uploads every not-yet-submitted record and flags all of them
// once every upload succeeded. A failed upload leaves every flag unchanged.
func (s *Service) Submit(ctx context.Context, ids []int64) error {
	recs, err := s.load(ctx, ids)
	if err != nil {
		return err
	}
	logger := log.WithComponentFromContext(ctx, "library")
	if s.uploader != nil {
		for _, rec := range recs {
			if rec.Submitted {
				continue
			}
			p, err := fsutil.ConfineRelPath(s.root, rec.FileName)
			if err != nil {
				return fmt.Errorf("record %d: %w", rec.ID, err)
			}
			if err := s.uploader.Upload(ctx, rec, p); err != nil {
				logger.Error().Err(err).Int64(log.FieldRecordID, rec.ID).Msg("submission upload failed")
				return fmt.Errorf("upload record %d: %w", rec.ID, err)
			}
		}
	}
	if err := s.store.MarkSubmitted(ctx, idsOf(recs)); err != nil {
		return err
	}
	logger.Info().Int("count", len(recs)).Msg("recordings submitted")
	s.changed(ctx)
	return nil
}

// Delete removes the records and reclaims their files. File removal is
// best-effort: a missing or unremovable file does not fail the call.
func (s *Service) Delete(ctx context.Context, ids []int64) error {
	recs, err := s.load(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, idsOf(recs)); err != nil {
		return err
	}
	logger := log.WithComponentFromContext(ctx, "library")
	for _, rec := range recs {
		if err := fsutil.RemoveConfined(s.root, rec.FileName); err != nil {
			logger.Warn().Err(err).Int64(log.FieldRecordID, rec.ID).Str(log.FieldPath, rec.FileName).Msg("recording file not removed")
		}
	}
	logger.Info().Int("count", len(recs)).Msg("recordings deleted")
	s.changed(ctx)
	return nil
}

// Missing returns every record whose backing file no longer exists.
func (s *Service) Missing(ctx context.Context) ([]model.VideoRecord, error) {
	var out []model.VideoRecord
	for page := 0; ; page++ {
		recs, err := s.store.Query(ctx, page, scanPageSize, false)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if !s.exists(rec.FileName) {
				out = append(out, rec)
			}
		}
		if len(recs) < scanPageSize {
			return out, nil
		}
	}
}

// PruneMissing deletes the records returned by Missing and reports their ids.
func (s *Service) PruneMissing(ctx context.Context) ([]int64, error) {
	missing, err := s.Missing(ctx)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return nil, nil
	}
	ids := idsOf(missing)
	if err := s.store.Delete(ctx, ids); err != nil {
		return nil, err
	}
	logger := log.WithComponentFromContext(ctx, "library")
	logger.Info().Int("count", len(ids)).Msg("pruned records with missing files")
	s.changed(ctx)
	return ids, nil
}

func (s *Service) exists(name string) bool {
	p, err := fsutil.ConfineRelPath(s.root, name)
	if err != nil {
		return false
	}
	return fsutil.IsRegularFile(p) == nil
}

func (s *Service) load(ctx context.Context, ids []int64) ([]model.VideoRecord, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil, ErrNoIDs
	}
	recs := make([]model.VideoRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.RecordingsChanged(ctx)
	}
}

func idsOf(recs []model.VideoRecord) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
