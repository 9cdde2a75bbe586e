// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/dashcam/internal/domain/capture/model"

// Edge is a single allowed phase change.
type Edge struct {
	From model.Phase
	To   model.Phase
}

var edgesTable = []Edge{
	{From: model.PhaseIdle, To: model.PhaseAcquiringCamera},
	{From: model.PhaseAcquiringCamera, To: model.PhaseRecording},
	{From: model.PhaseAcquiringCamera, To: model.PhaseIdle},
	{From: model.PhaseRecording, To: model.PhaseRotating},
	{From: model.PhaseRecording, To: model.PhaseStoppingForCompletion},
	{From: model.PhaseRecording, To: model.PhaseRecording},
	{From: model.PhaseRotating, To: model.PhaseRecording},
	{From: model.PhaseRotating, To: model.PhaseIdle},
	{From: model.PhaseStoppingForCompletion, To: model.PhaseIdle},
}

// Legal reports whether the run loop may move from one phase to another.
// Recording to Recording covers pin changes within a continuous session.
func Legal(from, to model.Phase) bool {
	for _, e := range edgesTable {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}
