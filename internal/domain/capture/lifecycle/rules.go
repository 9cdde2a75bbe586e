// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/dashcam/internal/domain/capture/model"

// Action is what the run loop must do with a trigger in the current state.
type Action string

const (
	// ActionIgnore: the trigger is a no-op in this state (idempotent repeat).
	ActionIgnore Action = "ignore"
	// ActionDefer: an async step is pending; replay the trigger once it completes.
	ActionDefer Action = "defer"
	// ActionSuppress: a rotation that cannot apply is dropped, never replayed.
	ActionSuppress Action = "suppress"
	// ActionAcquire: leave Idle and request the camera.
	ActionAcquire Action = "acquire"
	// ActionStop: finalize the live file and persist it.
	ActionStop Action = "stop"
	// ActionRotate: swap the continuous output file.
	ActionRotate Action = "rotate"
	// ActionPin: keep the live continuous segment as a user clip.
	ActionPin Action = "pin"
	// ActionQueueContinuous: begin continuous capture once the current work ends.
	ActionQueueContinuous Action = "queue_continuous"
	// ActionCancelContinuous: forget a queued or running continuous target.
	ActionCancelContinuous Action = "cancel_continuous"
)

// Want describes how a decision changes the continuous-capture target.
type Want int

const (
	WantKeep Want = iota
	WantOn
	WantOff
)

// Context is the loop-owned state a decision depends on.
type Context struct {
	State          model.CaptureState
	WantContinuous bool
	Pinned         bool
}

// Decision is the outcome for one trigger.
type Decision struct {
	Action Action
	// Mode is set for ActionAcquire.
	Mode model.Mode
	Want Want
}

type pinCond int

const (
	pinAny pinCond = iota
	pinOff
	pinOn
)

type rule struct {
	Phase   model.Phase
	Mode    model.Mode // ModeNone matches any mode
	Trigger model.TriggerKind
	Pin     pinCond
	Action  Action
	AcqMode model.Mode
	Want    Want
}

var rulesTable = []rule{
	// StartUserCapture
	{Phase: model.PhaseIdle, Trigger: model.TriggerStartUserCapture, Action: ActionAcquire, AcqMode: model.ModeUserDriven},
	{Phase: model.PhaseAcquiringCamera, Mode: model.ModeUserDriven, Trigger: model.TriggerStartUserCapture, Action: ActionIgnore},
	{Phase: model.PhaseAcquiringCamera, Mode: model.ModeContinuous, Trigger: model.TriggerStartUserCapture, Action: ActionDefer},
	{Phase: model.PhaseRecording, Mode: model.ModeUserDriven, Trigger: model.TriggerStartUserCapture, Action: ActionIgnore},
	{Phase: model.PhaseRecording, Mode: model.ModeContinuous, Trigger: model.TriggerStartUserCapture, Pin: pinOff, Action: ActionPin},
	{Phase: model.PhaseRecording, Mode: model.ModeContinuous, Trigger: model.TriggerStartUserCapture, Pin: pinOn, Action: ActionIgnore},
	{Phase: model.PhaseRotating, Trigger: model.TriggerStartUserCapture, Action: ActionDefer},
	{Phase: model.PhaseStoppingForCompletion, Trigger: model.TriggerStartUserCapture, Action: ActionDefer},

	// StopUserCapture
	{Phase: model.PhaseIdle, Trigger: model.TriggerStopUserCapture, Action: ActionIgnore},
	{Phase: model.PhaseAcquiringCamera, Trigger: model.TriggerStopUserCapture, Action: ActionDefer},
	{Phase: model.PhaseRecording, Trigger: model.TriggerStopUserCapture, Action: ActionStop},
	{Phase: model.PhaseRotating, Trigger: model.TriggerStopUserCapture, Action: ActionDefer},
	{Phase: model.PhaseStoppingForCompletion, Trigger: model.TriggerStopUserCapture, Action: ActionIgnore},

	// EnableContinuousCapture
	{Phase: model.PhaseIdle, Trigger: model.TriggerEnableContinuousCapture, Action: ActionAcquire, AcqMode: model.ModeContinuous, Want: WantOn},
	{Phase: model.PhaseAcquiringCamera, Mode: model.ModeContinuous, Trigger: model.TriggerEnableContinuousCapture, Action: ActionIgnore, Want: WantOn},
	{Phase: model.PhaseAcquiringCamera, Mode: model.ModeUserDriven, Trigger: model.TriggerEnableContinuousCapture, Action: ActionQueueContinuous, Want: WantOn},
	{Phase: model.PhaseRecording, Mode: model.ModeContinuous, Trigger: model.TriggerEnableContinuousCapture, Action: ActionIgnore, Want: WantOn},
	{Phase: model.PhaseRecording, Mode: model.ModeUserDriven, Trigger: model.TriggerEnableContinuousCapture, Action: ActionQueueContinuous, Want: WantOn},
	{Phase: model.PhaseRotating, Trigger: model.TriggerEnableContinuousCapture, Action: ActionIgnore, Want: WantOn},
	{Phase: model.PhaseStoppingForCompletion, Trigger: model.TriggerEnableContinuousCapture, Action: ActionQueueContinuous, Want: WantOn},

	// DisableContinuousCapture
	{Phase: model.PhaseIdle, Trigger: model.TriggerDisableContinuousCapture, Action: ActionIgnore, Want: WantOff},
	{Phase: model.PhaseAcquiringCamera, Mode: model.ModeContinuous, Trigger: model.TriggerDisableContinuousCapture, Action: ActionDefer},
	{Phase: model.PhaseAcquiringCamera, Mode: model.ModeUserDriven, Trigger: model.TriggerDisableContinuousCapture, Action: ActionCancelContinuous, Want: WantOff},
	{Phase: model.PhaseRecording, Mode: model.ModeContinuous, Trigger: model.TriggerDisableContinuousCapture, Action: ActionStop, Want: WantOff},
	{Phase: model.PhaseRecording, Mode: model.ModeUserDriven, Trigger: model.TriggerDisableContinuousCapture, Action: ActionCancelContinuous, Want: WantOff},
	{Phase: model.PhaseRotating, Trigger: model.TriggerDisableContinuousCapture, Action: ActionDefer},
	{Phase: model.PhaseStoppingForCompletion, Trigger: model.TriggerDisableContinuousCapture, Action: ActionCancelContinuous, Want: WantOff},

	// RotationTimerFired
	{Phase: model.PhaseRecording, Mode: model.ModeContinuous, Trigger: model.TriggerRotationTimerFired, Pin: pinOff, Action: ActionRotate},
}

func (r rule) matches(c Context, kind model.TriggerKind) bool {
	if r.Trigger != kind || r.Phase != c.State.Phase {
		return false
	}
	if r.Mode != model.ModeNone && r.Mode != c.State.Mode {
		return false
	}
	switch r.Pin {
	case pinOn:
		return c.Pinned
	case pinOff:
		return !c.Pinned
	}
	return true
}

// Decide maps a trigger in the given context to an action. Unmatched
// rotation triggers are suppressed. SetTargetRunning resolves to the
// enable/disable rule unless it already matches the continuous target.
func Decide(c Context, t model.Trigger) Decision {
	kind := t.Kind
	if kind == model.TriggerSetTargetRunning {
		if t.Running == c.WantContinuous {
			return Decision{Action: ActionIgnore}
		}
		kind = model.TriggerDisableContinuousCapture
		if t.Running {
			kind = model.TriggerEnableContinuousCapture
		}
	}

	for _, r := range rulesTable {
		if r.matches(c, kind) {
			return Decision{Action: r.Action, Mode: r.AcqMode, Want: r.Want}
		}
	}
	if kind == model.TriggerRotationTimerFired {
		return Decision{Action: ActionSuppress}
	}
	return Decision{Action: ActionIgnore}
}

// IsStopClass reports whether t ends an active recording when applied to a
// running session. A batch containing one suppresses its rotation triggers.
func IsStopClass(t model.Trigger) bool {
	switch t.Kind {
	case model.TriggerStopUserCapture, model.TriggerDisableContinuousCapture:
		return true
	case model.TriggerSetTargetRunning:
		return !t.Running
	}
	return false
}
