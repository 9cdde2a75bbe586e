// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the capture core to its adapters and owns the
// process lifecycle.
package daemon

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/dashcam/internal/domain/capture/manager"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/rs/zerolog"
)

// App runs every long-lived subsystem of a Runtime.
type App struct {
	logger  zerolog.Logger
	runtime *Runtime
}

// NewApp creates a new App orchestrator.
func NewApp(rt *Runtime) *App {
	return &App{logger: log.WithComponent("daemon"), runtime: rt}
}

// Run blocks until ctx is cancelled or a subsystem fails. On return the
// live recording has been finalized and the camera released; the store is
// still open.
func (a *App) Run(ctx context.Context) error {
	if a.runtime == nil {
		return ErrMissingRuntime
	}
	rt := a.runtime
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.Capture.Run(ctx)
	})

	// Re-queue location enrichment for records left without an address.
	g.Go(func() error {
		if err := rt.Capture.Recover(ctx); err != nil && !isShutdown(err) {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "capture.recover_failed").Msg("pending address recovery failed")
		}
		return nil
	})

	g.Go(func() error {
		return rt.Dock.Run(ctx)
	})

	// Watcher is best-effort: startup should not fail if it cannot be started.
	g.Go(func() error {
		if err := rt.Library.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "library.watcher_failed").Msg("recordings watcher stopped")
		}
		return nil
	})

	g.Go(func() error {
		return rt.API.ListenAndServe(ctx, rt.Config.API.ListenAddr)
	})

	a.logger.Info().
		Str("recordings_dir", rt.Config.RecordingsDir).
		Str("listen", rt.Config.API.ListenAddr).
		Msg("daemon started")

	err := g.Wait()
	a.logger.Info().Err(err).Msg("daemon stopped")
	return err
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, manager.ErrStopped)
}
