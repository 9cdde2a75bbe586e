// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"testing"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []model.CaptureState{
	model.Idle(),
	model.AcquiringCamera(model.ModeUserDriven),
	model.AcquiringCamera(model.ModeContinuous),
	model.Recording(model.ModeUserDriven),
	model.Recording(model.ModeContinuous),
	model.Rotating(),
	model.StoppingForCompletion(model.ModeUserDriven),
	model.StoppingForCompletion(model.ModeContinuous),
}

var allTriggers = []model.Trigger{
	model.StartUserCapture(),
	model.StopUserCapture(),
	model.EnableContinuousCapture(),
	model.DisableContinuousCapture(),
	model.RotationTimerFired(),
	model.SetTargetRunning(true),
	model.SetTargetRunning(false),
}

func TestRulesTableHasNoDuplicates(t *testing.T) {
	type key struct {
		phase model.Phase
		mode  model.Mode
		kind  model.TriggerKind
		pin   pinCond
	}
	seen := map[key]struct{}{}
	for _, r := range rulesTable {
		k := key{r.Phase, r.Mode, r.Trigger, r.Pin}
		_, dup := seen[k]
		require.False(t, dup, "duplicate rule %+v", r)
		seen[k] = struct{}{}
	}
}

func TestDeferOnlyWhileAwaitingCompletion(t *testing.T) {
	for _, s := range allStates {
		for _, pinned := range []bool{false, true} {
			for _, want := range []bool{false, true} {
				for _, tr := range allTriggers {
					d := Decide(Context{State: s, Pinned: pinned, WantContinuous: want}, tr)
					if d.Action == ActionDefer {
						assert.True(t, s.AwaitingCompletion(), "%s deferred in %s", tr, s)
					}
					if d.Action == ActionRotate {
						assert.Equal(t, model.Recording(model.ModeContinuous), s)
						assert.False(t, pinned)
					}
				}
			}
		}
	}
}

func TestRotationOnlyInUnpinnedContinuousRecording(t *testing.T) {
	for _, s := range allStates {
		d := Decide(Context{State: s}, model.RotationTimerFired())
		if s == model.Recording(model.ModeContinuous) {
			assert.Equal(t, ActionRotate, d.Action)
			continue
		}
		assert.Equal(t, ActionSuppress, d.Action, "state %s", s)
	}
	d := Decide(Context{State: model.Recording(model.ModeContinuous), Pinned: true}, model.RotationTimerFired())
	assert.Equal(t, ActionSuppress, d.Action)
}

func TestStartIsIdempotentForSameMode(t *testing.T) {
	d := Decide(Context{State: model.Recording(model.ModeUserDriven)}, model.StartUserCapture())
	assert.Equal(t, ActionIgnore, d.Action)

	d = Decide(Context{State: model.AcquiringCamera(model.ModeUserDriven)}, model.StartUserCapture())
	assert.Equal(t, ActionIgnore, d.Action, "a repeated start must not replay as a second acquire")

	d = Decide(Context{State: model.AcquiringCamera(model.ModeContinuous), WantContinuous: true}, model.StartUserCapture())
	assert.Equal(t, ActionDefer, d.Action, "pins once the continuous segment is live")

	d = Decide(Context{State: model.AcquiringCamera(model.ModeContinuous), WantContinuous: true}, model.EnableContinuousCapture())
	assert.Equal(t, ActionIgnore, d.Action)

	d = Decide(Context{State: model.Rotating(), WantContinuous: true}, model.EnableContinuousCapture())
	assert.Equal(t, ActionIgnore, d.Action)
}

func TestContinuousStartDuringUserClipIsQueued(t *testing.T) {
	d := Decide(Context{State: model.Recording(model.ModeUserDriven)}, model.EnableContinuousCapture())
	assert.Equal(t, ActionQueueContinuous, d.Action)
	assert.Equal(t, WantOn, d.Want)

	d = Decide(Context{State: model.Recording(model.ModeUserDriven), WantContinuous: true}, model.DisableContinuousCapture())
	assert.Equal(t, ActionCancelContinuous, d.Action)
	assert.Equal(t, WantOff, d.Want)
}

func TestSetTargetRunningIsIdempotent(t *testing.T) {
	d := Decide(Context{State: model.Recording(model.ModeContinuous), WantContinuous: true}, model.SetTargetRunning(true))
	assert.Equal(t, ActionIgnore, d.Action)

	d = Decide(Context{State: model.Idle()}, model.SetTargetRunning(false))
	assert.Equal(t, ActionIgnore, d.Action)

	d = Decide(Context{State: model.Idle()}, model.SetTargetRunning(true))
	assert.Equal(t, ActionAcquire, d.Action)
	assert.Equal(t, model.ModeContinuous, d.Mode)

	d = Decide(Context{State: model.Recording(model.ModeContinuous), WantContinuous: true}, model.SetTargetRunning(false))
	assert.Equal(t, ActionStop, d.Action)
	assert.Equal(t, WantOff, d.Want)
}

func TestPinInsideContinuous(t *testing.T) {
	c := Context{State: model.Recording(model.ModeContinuous), WantContinuous: true}
	assert.Equal(t, ActionPin, Decide(c, model.StartUserCapture()).Action)
	c.Pinned = true
	assert.Equal(t, ActionIgnore, Decide(c, model.StartUserCapture()).Action)
	assert.Equal(t, ActionStop, Decide(c, model.StopUserCapture()).Action)
}

func TestIsStopClass(t *testing.T) {
	assert.True(t, IsStopClass(model.StopUserCapture()))
	assert.True(t, IsStopClass(model.DisableContinuousCapture()))
	assert.True(t, IsStopClass(model.SetTargetRunning(false)))
	assert.False(t, IsStopClass(model.SetTargetRunning(true)))
	assert.False(t, IsStopClass(model.RotationTimerFired()))
}

func TestLegalEdges(t *testing.T) {
	assert.True(t, Legal(model.PhaseIdle, model.PhaseAcquiringCamera))
	assert.True(t, Legal(model.PhaseStoppingForCompletion, model.PhaseIdle))
	assert.False(t, Legal(model.PhaseIdle, model.PhaseRecording))
	assert.False(t, Legal(model.PhaseIdle, model.PhaseRotating))
	assert.False(t, Legal(model.PhaseStoppingForCompletion, model.PhaseRecording))
}
