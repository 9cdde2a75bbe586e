// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/dashcam/internal/bus"
	"github.com/ManuGH/dashcam/internal/log"
)

// handleEvents streams bus signals as server-sent events:
// "recordings_changed" (empty payload) and "notice" (model.Notice).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	if s.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "events_unavailable"})
		return
	}
	if n := s.streams.Add(1); int(n) > s.cfg.MaxEventStreams {
		s.streams.Add(-1)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "too_many_streams"})
		return
	}
	defer s.streams.Add(-1)

	ctx := r.Context()
	changed, err := s.bus.Subscribe(ctx, bus.TopicRecordingsChanged)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = changed.Close() }()
	notices, err := s.bus.Subscribe(ctx, bus.TopicNotices)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = notices.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := log.WithComponentFromContext(ctx, "api")
	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		var (
			name string
			data any
		)
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		case _, ok := <-changed.C():
			if !ok {
				return
			}
			name, data = "recordings_changed", struct{}{}
		case msg, ok := <-notices.C():
			if !ok {
				return
			}
			name, data = "notice", msg
		}
		if err := sendSSEEvent(w, name, data); err != nil {
			logger.Debug().Err(err).Msg("event stream closed")
			return
		}
		flusher.Flush()
	}
}

func sendSSEEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling SSE data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return fmt.Errorf("error writing SSE data: %w", err)
	}
	return nil
}
