// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import "github.com/ManuGH/dashcam/internal/domain/capture/model"

// Completions posted to the run loop. gen ties each one to the operation
// that produced it.

// startResult reports camera acquisition followed by pipeline start.
type startResult struct {
	gen      uint64
	session  model.RecordingSession
	acquired bool
	err      error
	startErr error
}

type stopResult struct {
	gen     uint64
	segment model.Segment
	err     error
}

// rotateResult carries the finalized segment even when only the start of
// next failed.
type rotateResult struct {
	gen     uint64
	next    model.RecordingSession
	segment model.Segment
	err     error
}

// encoderExited reports that the encoder of session stopped on its own.
type encoderExited struct {
	session string
}

type recoverRequest struct {
	records []model.VideoRecord
}
