// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the HTTP control surface of the dashcam daemon.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ManuGH/dashcam/internal/api/middleware"
	"github.com/ManuGH/dashcam/internal/bus"
	"github.com/ManuGH/dashcam/internal/domain/capture/manager"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the capture run loop as seen by the API.
type Controller interface {
	Submit(ctx context.Context, triggers ...model.Trigger) error
	Status() manager.Status
}

// Library is the record management surface.
type Library interface {
	List(ctx context.Context, page, size int, submittedOnly bool) ([]model.VideoRecord, error)
	Rename(ctx context.Context, id int64, title string) error
	Submit(ctx context.Context, ids []int64) error
	Delete(ctx context.Context, ids []int64) error
	Missing(ctx context.Context) ([]model.VideoRecord, error)
}

// Config tunes the HTTP surface.
type Config struct {
	RateLimitPerMin int
	// MaxEventStreams caps concurrent /api/events clients.
	MaxEventStreams int
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
	Version   string
}

// Server holds the API dependencies.
type Server struct {
	cfg     Config
	capture Controller
	library Library
	bus     bus.Bus
	streams atomic.Int32
}

func New(cfg Config, capture Controller, lib Library, b bus.Bus) *Server {
	if cfg.MaxEventStreams <= 0 {
		cfg.MaxEventStreams = 16
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	return &Server{cfg: cfg, capture: capture, library: lib, bus: b}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(log.Middleware())
	r.Use(metrics.HTTPMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIRateLimit(s.cfg.RateLimitPerMin))

			r.Get("/capture/state", s.handleCaptureState)
			r.Post("/capture/start", s.trigger(model.StartUserCapture()))
			r.Post("/capture/stop", s.trigger(model.StopUserCapture()))
			r.Post("/continuous/enable", s.trigger(model.EnableContinuousCapture()))
			r.Post("/continuous/disable", s.trigger(model.DisableContinuousCapture()))
			r.Put("/continuous/target", s.handleTarget)

			r.Get("/recordings", s.handleListRecordings)
			r.Delete("/recordings", s.handleDeleteRecordings)
			r.Get("/recordings/missing", s.handleMissingRecordings)
			r.Post("/recordings/submit", s.handleSubmitRecordings)
			r.Patch("/recordings/{id}", s.handleRenameRecording)
		})
	})
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger := log.WithComponent("api")
		logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
