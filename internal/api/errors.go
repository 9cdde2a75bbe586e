// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/dashcam/internal/domain/capture/manager"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/library"
	"github.com/ManuGH/dashcam/internal/log"
)

var errBadRequest = errors.New("malformed request body")

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := classify(err)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, code, errorResponse{Error: kind, Detail: err.Error()})
}

func classify(err error) (int, string) {
	var integrity *model.IntegrityError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, library.ErrInvalidTitle),
		errors.Is(err, library.ErrInvalidPage),
		errors.Is(err, library.ErrNoIDs):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &integrity) && integrity.Expected == 1 && integrity.Actual == 0:
		return http.StatusNotFound, "not_found"
	case errors.Is(err, manager.ErrStopped):
		return http.StatusServiceUnavailable, "capture_stopped"
	case errors.Is(err, model.ErrPersistence):
		return http.StatusInternalServerError, "persistence_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func errBadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
