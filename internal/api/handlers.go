// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/go-chi/chi/v5"
)

const defaultPageSize = 50

type targetRequest struct {
	Running *bool `json:"running"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type recordingsResponse struct {
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	Recordings []model.VideoRecord `json:"recordings"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) handleCaptureState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.capture.Status())
}

// trigger submits a fixed trigger. The response carries the state at
// acceptance time; the transition itself happens asynchronously.
func (s *Server) trigger(t model.Trigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.capture.Submit(r.Context(), t); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s.capture.Status())
	}
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Running == nil {
		writeError(w, r, errBadRequestf("running is required"))
		return
	}
	if err := s.capture.Submit(r.Context(), model.SetTargetRunning(*req.Running)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.capture.Status())
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := intParam(q.Get("size"), defaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	submitted := q.Get("submitted") == "true" || q.Get("submitted") == "1"

	recs, err := s.library.List(r.Context(), page, size, submitted)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordingsResponse{Page: page, PageSize: size, Recordings: recs})
}

func (s *Server) handleRenameRecording(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, errBadRequestf("invalid recording id"))
		return
	}
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.library.Rename(r.Context(), id, req.Title); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitRecordings(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.library.Submit(r.Context(), req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRecordings(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.library.Delete(r.Context(), req.IDs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMissingRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.library.Missing(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.VideoRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadRequestf("invalid integer %q", raw)
	}
	return v, nil
}
