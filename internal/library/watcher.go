// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watch signals a recordings refresh whenever the file of a persisted
// recording disappears from the root, so listeners can surface records with
// missing files. Removals of files without a record, such as rotated
// continuous segments, are ignored. It blocks until ctx ends.
func (s *Service) Watch(ctx context.Context) error {
	return s.watch(ctx, watchDebounce)
}

func (s *Service) watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(s.root); err != nil {
		return fmt.Errorf("watch directory %s: %w", s.root, err)
	}

	logger := log.WithComponentFromContext(ctx, "library")
	logger.Info().Str(log.FieldEvent, "library.watcher_started").Str(log.FieldPath, s.root).Msg("watching recordings directory")

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		removed = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".mp4") {
				continue
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			metrics.ObserveFileEvent(strings.ToLower(event.Op.String()))
			logger.Debug().Str(log.FieldPath, event.Name).Str("op", event.Op.String()).Msg("recording file removed")
			removed[filepath.Base(event.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			hit, err := s.anyRecordMissing(ctx, removed)
			clear(removed)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to match removed files against records")
				hit = true
			}
			if hit {
				s.changed(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

// anyRecordMissing reports whether a record references one of names and its
// file is gone.
func (s *Service) anyRecordMissing(ctx context.Context, names map[string]struct{}) (bool, error) {
	missing, err := s.Missing(ctx)
	if err != nil {
		return false, err
	}
	for _, rec := range missing {
		if _, ok := names[rec.FileName]; ok {
			return true, nil
		}
	}
	return false, nil
}
