// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "strconv"

// TriggerKind names an external input consumed by the capture orchestrator.
type TriggerKind string

const (
	TriggerStartUserCapture         TriggerKind = "start_user_capture"
	TriggerStopUserCapture          TriggerKind = "stop_user_capture"
	TriggerEnableContinuousCapture  TriggerKind = "enable_continuous_capture"
	TriggerDisableContinuousCapture TriggerKind = "disable_continuous_capture"
	TriggerRotationTimerFired       TriggerKind = "rotation_timer_fired"
	TriggerSetTargetRunning         TriggerKind = "set_target_running"
)

// Trigger is one external input. Running is only meaningful for TriggerSetTargetRunning.
type Trigger struct {
	Kind    TriggerKind
	Running bool
}

func StartUserCapture() Trigger         { return Trigger{Kind: TriggerStartUserCapture} }
func StopUserCapture() Trigger          { return Trigger{Kind: TriggerStopUserCapture} }
func EnableContinuousCapture() Trigger  { return Trigger{Kind: TriggerEnableContinuousCapture} }
func DisableContinuousCapture() Trigger { return Trigger{Kind: TriggerDisableContinuousCapture} }
func RotationTimerFired() Trigger       { return Trigger{Kind: TriggerRotationTimerFired} }

func SetTargetRunning(running bool) Trigger {
	return Trigger{Kind: TriggerSetTargetRunning, Running: running}
}

func (t Trigger) String() string {
	if t.Kind == TriggerSetTargetRunning {
		return string(t.Kind) + "(" + strconv.FormatBool(t.Running) + ")"
	}
	return string(t.Kind)
}

// ParseTriggerKind maps wire names to trigger kinds.
func ParseTriggerKind(s string) (TriggerKind, bool) {
	switch k := TriggerKind(s); k {
	case TriggerStartUserCapture, TriggerStopUserCapture,
		TriggerEnableContinuousCapture, TriggerDisableContinuousCapture,
		TriggerRotationTimerFired, TriggerSetTargetRunning:
		return k, true
	}
	return "", false
}
