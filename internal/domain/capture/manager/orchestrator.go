// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager hosts the capture session run loop. All state, the
// continuous-capture target and the location queue are owned by a single
// goroutine; triggers and hardware completions reach it as messages.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/camera"
	"github.com/ManuGH/dashcam/internal/domain/capture/location"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Submit and Recover once the run loop has exited.
var ErrStopped = errors.New("capture orchestrator stopped")

// Camera is the exclusive camera resource.
type Camera interface {
	Acquire(ctx context.Context) (*camera.Handle, error)
	Release() error
}

// Pipeline is the single-file recording pipeline.
type Pipeline interface {
	Start(ctx context.Context, session model.RecordingSession) error
	Stop(ctx context.Context) (model.Segment, error)
	Rotate(ctx context.Context, next model.RecordingSession) (model.Segment, error)
	DiscardRotated()
	Active() bool
	Exited() <-chan struct{}
}

// Locator correlates fixes and addresses with finished recordings. It is
// driven exclusively from the run loop.
type Locator interface {
	Open(ctx context.Context, post location.Post)
	Close()
	RequestFix() location.Handle
	Cancel(h location.Handle)
	Snapshot(h location.Handle) (*model.LatLng, *string)
	Bind(h location.Handle, recordID int64)
	Recover(records []model.VideoRecord)
	Apply(ev location.Event)
}

// PathSource allocates collision-free output paths.
type PathSource interface {
	Next(now time.Time) string
}

// Status is a point-in-time view of the run loop.
type Status struct {
	State          model.CaptureState      `json:"-"`
	Phase          model.Phase             `json:"phase"`
	Mode           model.Mode              `json:"mode,omitempty"`
	WantContinuous bool                    `json:"want_continuous"`
	Pinned         bool                    `json:"pinned"`
	Session        *model.RecordingSession `json:"session,omitempty"`
}

// Orchestrator is the capture session state machine.
type Orchestrator struct {
	Camera   Camera
	Pipeline Pipeline
	Locator  Locator
	Store    ports.RecordStore
	Notifier ports.Notifier
	Paths    PathSource

	// Now defaults to time.Now.
	Now func() time.Time

	// RotationInterval <= 0 disables the rotation timer.
	RotationInterval time.Duration
	StartTimeout     time.Duration
	TeardownTimeout  time.Duration
	InboxSize        int

	initOnce sync.Once
	inbox    chan []model.Trigger
	events   chan any
	done     chan struct{}
	wg       sync.WaitGroup
	logger   zerolog.Logger

	// Loop-owned.
	opCtx          context.Context
	state          model.CaptureState
	wantContinuous bool
	pinned         bool
	closing        bool
	gen            uint64
	session        *model.RecordingSession
	locHandle      location.Handle
	cameraHeld     bool
	encoderLost    bool
	deferred       []model.Trigger
	rotation       *time.Timer

	snapMu sync.RWMutex
	snap   Status
}

func (o *Orchestrator) init() {
	o.initOnce.Do(func() {
		size := o.InboxSize
		if size <= 0 {
			size = 32
		}
		o.inbox = make(chan []model.Trigger, size)
		o.events = make(chan any, size)
		o.done = make(chan struct{})
		o.state = model.Idle()
		o.snap = Status{State: o.state, Phase: o.state.Phase}
		o.logger = log.WithComponent("capture")
		if o.Now == nil {
			o.Now = time.Now
		}
	})
}

// Run processes triggers until ctx is cancelled, then finalizes any live
// recording and releases the camera.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.Camera == nil || o.Pipeline == nil || o.Locator == nil {
		return errors.New("camera, pipeline and locator must be set")
	}
	if o.Store == nil || o.Notifier == nil || o.Paths == nil {
		return errors.New("store, notifier and paths must be set")
	}
	if o.StartTimeout <= 0 {
		return fmt.Errorf("StartTimeout must be > 0, got %v", o.StartTimeout)
	}
	if o.TeardownTimeout <= 0 {
		return fmt.Errorf("TeardownTimeout must be > 0, got %v", o.TeardownTimeout)
	}
	o.init()
	select {
	case <-o.done:
		return ErrStopped
	default:
	}

	// Finalization and store writes outlive ctx so teardown can persist the
	// live recording.
	opCtx, opCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer opCancel()
	o.opCtx = opCtx
	o.Locator.Open(opCtx, o.postLocation)

	o.logger.Info().
		Dur("rotation_interval", o.RotationInterval).
		Msg("capture orchestrator started")

	for {
		select {
		case <-ctx.Done():
			o.teardown()
			opCancel()
			close(o.done)
			o.Locator.Close()
			o.wg.Wait()
			if err := o.Camera.Release(); err != nil {
				o.logger.Warn().Err(err).Msg("final camera release failed")
			}
			o.logger.Info().Msg("capture orchestrator stopped")
			return nil
		case batch := <-o.inbox:
			o.handleBatch(o.drain(batch))
		case ev := <-o.events:
			o.handleEvent(ev)
		}
		o.settle()
	}
}

// Submit delivers triggers as one batch. Triggers in a batch are evaluated
// together: a stop-class trigger suppresses every rotation in it.
func (o *Orchestrator) Submit(ctx context.Context, triggers ...model.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}
	o.init()
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	batch := append([]model.Trigger(nil), triggers...)
	select {
	case o.inbox <- batch:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover re-queues location enrichment for records that never received
// an address.
func (o *Orchestrator) Recover(ctx context.Context) error {
	o.init()
	records, err := o.Store.PendingAddress(ctx)
	if err != nil {
		return fmt.Errorf("recover pending addresses: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	select {
	case o.events <- recoverRequest{records: records}:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current capture state.
func (o *Orchestrator) State() model.CaptureState {
	return o.Status().State
}

// Status returns a snapshot of the run loop.
func (o *Orchestrator) Status() Status {
	o.init()
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	s := o.snap
	if s.Session != nil {
		cp := *s.Session
		s.Session = &cp
	}
	return s
}

// drain folds every batch already waiting in the inbox into one.
func (o *Orchestrator) drain(first []model.Trigger) []model.Trigger {
	batch := first
	for {
		select {
		case more := <-o.inbox:
			batch = append(batch, more...)
		default:
			return batch
		}
	}
}

// post hands a completion to the run loop, giving up once it has exited.
func (o *Orchestrator) post(ev any) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) postLocation(ctx context.Context, ev location.Event) {
	select {
	case o.events <- ev:
	case <-ctx.Done():
	case <-o.done:
	}
}

// async runs fn under the loop's wait group.
func (o *Orchestrator) async(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

func (o *Orchestrator) publishSnapshot() {
	s := Status{
		State:          o.state,
		Phase:          o.state.Phase,
		Mode:           o.state.Mode,
		WantContinuous: o.wantContinuous,
		Pinned:         o.pinned,
	}
	if o.session != nil && o.state.HoldsEncoder() {
		cp := *o.session
		s.Session = &cp
	}
	o.snapMu.Lock()
	o.snap = s
	o.snapMu.Unlock()
}
