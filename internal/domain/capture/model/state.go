// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Mode distinguishes clips the user asked for from background continuous capture.
type Mode string

const (
	ModeNone       Mode = ""
	ModeUserDriven Mode = "user_driven"
	ModeContinuous Mode = "continuous"
)

// Phase is the tag of CaptureState.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseAcquiringCamera       Phase = "acquiring_camera"
	PhaseRecording             Phase = "recording"
	PhaseRotating              Phase = "rotating"
	PhaseStoppingForCompletion Phase = "stopping_for_completion"
)

// CaptureState is the tagged state held by the capture orchestrator.
// Mode is set for every phase except Idle.
type CaptureState struct {
	Phase Phase
	Mode  Mode
}

func Idle() CaptureState { return CaptureState{Phase: PhaseIdle} }

func AcquiringCamera(m Mode) CaptureState {
	return CaptureState{Phase: PhaseAcquiringCamera, Mode: m}
}

func Recording(m Mode) CaptureState { return CaptureState{Phase: PhaseRecording, Mode: m} }

func Rotating() CaptureState { return CaptureState{Phase: PhaseRotating, Mode: ModeContinuous} }

func StoppingForCompletion(m Mode) CaptureState {
	return CaptureState{Phase: PhaseStoppingForCompletion, Mode: m}
}

// HoldsEncoder reports whether the recording pipeline may own an active
// encoder session in this state.
func (s CaptureState) HoldsEncoder() bool {
	return s.Phase == PhaseRecording || s.Phase == PhaseRotating
}

// AwaitingCompletion reports whether an asynchronous hardware step is pending.
func (s CaptureState) AwaitingCompletion() bool {
	switch s.Phase {
	case PhaseAcquiringCamera, PhaseRotating, PhaseStoppingForCompletion:
		return true
	default:
		return false
	}
}

func (s CaptureState) String() string {
	if s.Mode == ModeNone {
		return string(s.Phase)
	}
	return string(s.Phase) + "(" + string(s.Mode) + ")"
}
