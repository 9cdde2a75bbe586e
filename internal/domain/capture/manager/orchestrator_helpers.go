// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/dashcam/internal/domain/capture/location"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
	"github.com/google/uuid"
)

const (
	reasonShutdown      = "shutdown"
	reasonResume        = "resume_continuous"
	reasonEncoderExited = "encoder_exited"
)

var errEncoderExited = errors.New("encoder exited during recording")

func (o *Orchestrator) handleBatch(batch []model.Trigger) {
	stopping := false
	for _, t := range batch {
		if lifecycle.IsStopClass(t) {
			stopping = true
			break
		}
	}
	for _, t := range batch {
		if stopping && t.Kind == model.TriggerRotationTimerFired {
			metrics.ObserveTrigger(string(t.Kind), "suppressed")
			o.logger.Debug().Str(log.FieldTrigger, t.String()).Msg("rotation suppressed by stop in the same batch")
			continue
		}
		o.handleTrigger(t)
	}
}

func (o *Orchestrator) handleTrigger(t model.Trigger) {
	d := lifecycle.Decide(lifecycle.Context{
		State:          o.state,
		WantContinuous: o.wantContinuous,
		Pinned:         o.pinned,
	}, t)
	o.applyWant(d.Want)

	switch d.Action {
	case lifecycle.ActionIgnore:
		metrics.ObserveTrigger(string(t.Kind), "ignored")
		o.logger.Debug().Str(log.FieldTrigger, t.String()).Str("state", o.state.String()).Msg("trigger ignored")
		o.publishSnapshot()
		return
	case lifecycle.ActionSuppress:
		metrics.ObserveTrigger(string(t.Kind), "suppressed")
		return
	case lifecycle.ActionDefer:
		metrics.ObserveTrigger(string(t.Kind), "deferred")
		o.deferred = append(o.deferred, t)
		o.logger.Debug().Str(log.FieldTrigger, t.String()).Str("state", o.state.String()).Msg("trigger deferred")
		return
	case lifecycle.ActionAcquire:
		o.beginAcquire(d.Mode, t.String())
	case lifecycle.ActionStop:
		o.beginStop(t.String())
	case lifecycle.ActionRotate:
		o.beginRotate(t.String())
	case lifecycle.ActionPin:
		o.stopRotationTimer()
		o.pinned = true
		o.setState(model.Recording(model.ModeContinuous), t.String())
		o.notify(model.Notice{Kind: model.NoticeCaptureStarted, Message: "continuous segment kept as clip"})
	case lifecycle.ActionQueueContinuous, lifecycle.ActionCancelContinuous:
		o.publishSnapshot()
	}
	metrics.ObserveTrigger(string(t.Kind), "applied")
}

// applyWant updates the continuous target and announces changes.
func (o *Orchestrator) applyWant(w lifecycle.Want) {
	switch w {
	case lifecycle.WantOn:
		if !o.wantContinuous {
			o.wantContinuous = true
			o.notify(model.Notice{Kind: model.NoticeContinuousEnabled, Message: "continuous capture enabled"})
		}
	case lifecycle.WantOff:
		if o.wantContinuous {
			o.wantContinuous = false
			o.notify(model.Notice{Kind: model.NoticeContinuousDisabled, Message: "continuous capture disabled"})
		}
	}
}

func (o *Orchestrator) handleEvent(ev any) {
	switch e := ev.(type) {
	case startResult:
		o.onStartResult(e)
	case stopResult:
		o.onStopResult(e)
	case rotateResult:
		o.onRotateResult(e)
	case encoderExited:
		o.onEncoderExited(e)
	case recoverRequest:
		o.Locator.Recover(e.records)
		o.logger.Info().Int("records", len(e.records)).Msg("re-queued location enrichment")
	case location.Event:
		o.Locator.Apply(e)
	default:
		o.logger.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("unknown run loop event")
	}
}

// settle replays deferred triggers once no async step is pending and
// resumes continuous capture when it is still wanted.
func (o *Orchestrator) settle() {
	if o.closing || o.state.AwaitingCompletion() {
		return
	}
	if len(o.deferred) > 0 {
		replay := o.deferred
		o.deferred = nil
		for _, t := range replay {
			o.logger.Debug().Str(log.FieldTrigger, t.String()).Msg("replaying deferred trigger")
			o.handleTrigger(t)
		}
	}
	if o.state.Phase == model.PhaseIdle && o.wantContinuous {
		o.beginAcquire(model.ModeContinuous, reasonResume)
	}
}

func (o *Orchestrator) setState(next model.CaptureState, reason string) {
	prev := o.state
	if !lifecycle.Legal(prev.Phase, next.Phase) {
		// Unreachable through Decide; kept loud so a table edit cannot slip by.
		o.logger.Error().
			Str(log.FieldOldState, prev.String()).
			Str(log.FieldNewState, next.String()).
			Str(log.FieldEvent, "capture.illegal_transition").
			Msg("illegal capture transition")
	}
	o.state = next
	if next.Phase == model.PhaseIdle {
		o.pinned = false
		o.session = nil
	}
	metrics.ObserveTransition(string(prev.Phase), string(next.Phase))
	o.logger.Info().
		Str(log.FieldOldState, prev.String()).
		Str(log.FieldNewState, next.String()).
		Str(log.FieldTrigger, reason).
		Uint64(log.FieldGeneration, o.gen).
		Msg("capture transition")
	o.publishSnapshot()
}

func (o *Orchestrator) newSession(mode model.Mode) model.RecordingSession {
	now := o.Now()
	return model.RecordingSession{
		ID:        uuid.NewString(),
		FilePath:  o.Paths.Next(now),
		StartedAt: now,
		Mode:      mode,
	}
}

func (o *Orchestrator) beginAcquire(mode model.Mode, reason string) {
	o.gen++
	gen := o.gen
	session := o.newSession(mode)
	o.setState(model.AcquiringCamera(mode), reason)

	ctx, timeout := o.opCtx, o.StartTimeout
	o.async(func() {
		res := startResult{gen: gen, session: session}
		if _, err := o.Camera.Acquire(ctx); err != nil {
			res.err = err
			o.post(res)
			return
		}
		res.acquired = true
		sctx, cancel := context.WithTimeout(ctx, timeout)
		res.startErr = o.Pipeline.Start(sctx, session)
		cancel()
		o.post(res)
	})
}

func (o *Orchestrator) onStartResult(r startResult) {
	if r.gen != o.gen || o.state.Phase != model.PhaseAcquiringCamera {
		o.stray("start", r.gen)
		if r.acquired && !o.cameraHeld && !o.state.HoldsEncoder() {
			if r.startErr == nil && o.Pipeline.Active() {
				if _, err := o.Pipeline.Stop(o.opCtx); err != nil {
					o.logger.Warn().Err(err).Msg("stop orphaned segment failed")
				}
			}
			_ = o.Camera.Release()
		}
		return
	}
	mode := o.state.Mode
	logger := o.logger.With().Str(log.FieldSessionID, r.session.ID).Str(log.FieldMode, string(mode)).Logger()

	if r.err != nil {
		logger.Warn().Err(r.err).Str(log.FieldEvent, "capture.camera_failed").Msg("camera acquisition failed")
		o.fail(mode, "camera unavailable", r.err)
		o.setState(model.Idle(), "camera_failed")
		return
	}
	o.cameraHeld = true
	if r.startErr != nil {
		logger.Error().Err(r.startErr).Str(log.FieldEvent, "capture.start_failed").Msg("recording start failed")
		o.releaseCamera()
		o.fail(mode, "recording could not start", r.startErr)
		o.setState(model.Idle(), "start_failed")
		return
	}

	session := r.session
	o.session = &session
	o.locHandle = o.Locator.RequestFix()
	o.setState(model.Recording(mode), "camera_ready")
	o.watchEncoder()
	if mode == model.ModeContinuous {
		o.armRotationTimer()
	}
	o.notify(model.Notice{Kind: model.NoticeCaptureStarted, Message: "recording started"})
}

func (o *Orchestrator) beginStop(reason string) {
	o.stopRotationTimer()
	o.gen++
	gen := o.gen
	o.setState(model.StoppingForCompletion(o.state.Mode), reason)

	ctx := o.opCtx
	o.async(func() {
		seg, err := o.Pipeline.Stop(ctx)
		o.post(stopResult{gen: gen, segment: seg, err: err})
	})
}

func (o *Orchestrator) onStopResult(r stopResult) {
	if r.gen != o.gen || o.state.Phase != model.PhaseStoppingForCompletion {
		o.stray("stop", r.gen)
		return
	}
	mode := o.state.Mode
	lost := o.encoderLost
	o.encoderLost = false
	o.releaseCamera()
	if mode == model.ModeContinuous {
		o.Pipeline.DiscardRotated()
	}
	if r.err != nil {
		o.logger.Error().Err(r.err).Str(log.FieldEvent, "capture.stop_failed").Msg("recording finalize failed")
		o.Locator.Cancel(o.locHandle)
		o.fail(mode, "recording could not be saved", r.err)
		o.setState(model.Idle(), "stop_failed")
		return
	}
	o.persist(r.segment)
	if lost {
		o.fail(mode, "recording interrupted", errEncoderExited)
	}
	o.setState(model.Idle(), "stopped")
}

// watchEncoder posts encoderExited if the live encoder dies before the loop
// stops or rotates it.
func (o *Orchestrator) watchEncoder() {
	exited := o.Pipeline.Exited()
	if exited == nil || o.session == nil {
		return
	}
	id := o.session.ID
	o.async(func() {
		select {
		case <-exited:
			o.post(encoderExited{session: id})
		case <-o.done:
		}
	})
}

// onEncoderExited finalizes whatever the dead encoder left behind through
// the regular stop path, which releases the camera and reports the failure.
// Exits of segments the loop already stopped or rotated are expected.
func (o *Orchestrator) onEncoderExited(e encoderExited) {
	if o.state.Phase != model.PhaseRecording || o.session == nil || o.session.ID != e.session {
		o.logger.Debug().Str(log.FieldSessionID, e.session).Msg("encoder exit after stop")
		return
	}
	o.logger.Error().
		Str(log.FieldSessionID, e.session).
		Str(log.FieldEvent, "capture.encoder_exited").
		Msg("encoder exited during recording")
	o.encoderLost = true
	o.beginStop(reasonEncoderExited)
}

func (o *Orchestrator) beginRotate(reason string) {
	o.stopRotationTimer()
	o.gen++
	gen := o.gen
	next := o.newSession(model.ModeContinuous)
	o.setState(model.Rotating(), reason)

	ctx := o.opCtx
	o.async(func() {
		seg, err := o.Pipeline.Rotate(ctx, next)
		o.post(rotateResult{gen: gen, next: next, segment: seg, err: err})
	})
}

func (o *Orchestrator) onRotateResult(r rotateResult) {
	if r.gen != o.gen || o.state.Phase != model.PhaseRotating {
		o.stray("rotate", r.gen)
		return
	}
	if r.err == nil {
		metrics.ObserveRotation("ok")
		o.Locator.Cancel(o.locHandle)
		o.locHandle = o.Locator.RequestFix()
		next := r.next
		o.session = &next
		o.setState(model.Recording(model.ModeContinuous), "rotated")
		o.watchEncoder()
		if !o.closing {
			o.armRotationTimer()
		}
		return
	}

	metrics.ObserveRotation("failed")
	o.logger.Error().Err(r.err).Str(log.FieldEvent, "capture.rotate_failed").Msg("segment rotation failed")
	if r.segment.Session.FilePath != "" {
		o.persist(r.segment)
	} else {
		o.Locator.Cancel(o.locHandle)
	}
	o.Pipeline.DiscardRotated()
	o.releaseCamera()
	o.fail(model.ModeContinuous, "continuous capture stopped", r.err)
	o.setState(model.Idle(), "rotate_failed")
}

// persist inserts the record for a finalized segment and binds the pending
// location request to it.
func (o *Orchestrator) persist(seg model.Segment) {
	coords, address := o.Locator.Snapshot(o.locHandle)
	rec := model.VideoRecord{
		Title:           seg.FinishedAt.Format(model.TitleLayout),
		FileName:        seg.Session.FileName(),
		DurationSeconds: model.DurationSeconds(seg.Duration),
		Address:         address,
		Coordinates:     coords,
		CreatedAt:       seg.FinishedAt,
	}
	id, err := o.Store.Insert(o.opCtx, rec)
	if err != nil {
		o.Locator.Cancel(o.locHandle)
		o.logger.Error().Err(err).
			Str(log.FieldSessionID, seg.Session.ID).
			Str(log.FieldPath, seg.Session.FilePath).
			Str(log.FieldEvent, "capture.persist_failed").
			Msg("recording finalized but not persisted")
		o.notify(model.Notice{Kind: model.NoticeCaptureFailed, Message: "recording could not be saved", Err: err})
		return
	}
	o.Locator.Bind(o.locHandle, id)
	metrics.IncRecordingPersisted(string(seg.Session.Mode))
	o.logger.Info().
		Int64(log.FieldRecordID, id).
		Str(log.FieldSessionID, seg.Session.ID).
		Int("duration_s", rec.DurationSeconds).
		Bool("has_fix", coords != nil).
		Msg("recording persisted")
	o.Notifier.RecordingsChanged(o.opCtx)
	o.notify(model.Notice{Kind: model.NoticeCaptureSaved, Message: rec.Title, RecordID: id})
}

// fail surfaces a failure. A failing continuous session drops the target so
// the loop does not spin on a broken camera or encoder.
func (o *Orchestrator) fail(mode model.Mode, msg string, err error) {
	o.notify(model.Notice{Kind: model.NoticeCaptureFailed, Message: msg, Err: err})
	if mode == model.ModeContinuous {
		o.applyWant(lifecycle.WantOff)
	}
}

func (o *Orchestrator) releaseCamera() {
	if !o.cameraHeld {
		return
	}
	o.cameraHeld = false
	if err := o.Camera.Release(); err != nil {
		o.logger.Warn().Err(err).Msg("camera release failed")
	}
}

func (o *Orchestrator) stray(kind string, gen uint64) {
	metrics.IncStrayCallback(kind)
	o.logger.Warn().
		Str("kind", kind).
		Uint64(log.FieldGeneration, gen).
		Uint64("current_generation", o.gen).
		Str("state", o.state.String()).
		Msg("discarding stray completion")
}

func (o *Orchestrator) notify(n model.Notice) {
	o.Notifier.Notify(o.opCtx, n)
}

func (o *Orchestrator) armRotationTimer() {
	o.stopRotationTimer()
	if o.RotationInterval <= 0 {
		return
	}
	o.rotation = time.AfterFunc(o.RotationInterval, func() {
		select {
		case o.inbox <- []model.Trigger{model.RotationTimerFired()}:
		case <-o.done:
		}
	})
}

func (o *Orchestrator) stopRotationTimer() {
	if o.rotation != nil {
		o.rotation.Stop()
		o.rotation = nil
	}
}

// teardown finalizes the live recording within TeardownTimeout. Pending
// triggers are dropped.
func (o *Orchestrator) teardown() {
	o.closing = true
	o.deferred = nil
	o.stopRotationTimer()

	deadline := time.NewTimer(o.TeardownTimeout)
	defer deadline.Stop()
	for {
		if o.state.Phase == model.PhaseRecording {
			o.beginStop(reasonShutdown)
		}
		if o.state.Phase == model.PhaseIdle {
			return
		}
		select {
		case ev := <-o.events:
			o.handleEvent(ev)
		case <-deadline.C:
			o.logger.Warn().
				Str("state", o.state.String()).
				Dur("timeout", o.TeardownTimeout).
				Msg("teardown timed out; abandoning pending capture work")
			return
		}
	}
}
