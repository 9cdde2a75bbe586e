// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline drives the single active encoder session bound to the
// camera stream and owns the rotation file policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/camera"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
)

// CameraSource exposes the currently held camera handle.
type CameraSource interface {
	Current() (*camera.Handle, bool)
}

// Config carries the fixed encoding parameters.
type Config struct {
	VideoBitrate   int
	FrameRate      int
	AudioBitrate   int
	Audio          bool
	AudioDevice    string
	InverseSensor  bool
	DeviceRotation int
}

type segment struct {
	session model.RecordingSession
	enc     ports.EncodeSession
}

// Pipeline is either idle or writing exactly one file.
type Pipeline struct {
	encoder ports.Encoder
	prober  ports.Prober
	camera  CameraSource
	cfg     Config

	// Now and Remove are replaceable in tests.
	Now    func() time.Time
	Remove func(path string) error

	mu     sync.Mutex
	active *segment
	// retained is the file finalized by the previous rotation. It is deleted
	// once the following segment has started, or by DiscardRotated.
	retained string
}

func New(enc ports.Encoder, prober ports.Prober, cam CameraSource, cfg Config) *Pipeline {
	return &Pipeline{
		encoder: enc,
		prober:  prober,
		camera:  cam,
		cfg:     cfg,
		Now:     time.Now,
		Remove:  os.Remove,
	}
}

// Start begins writing session.FilePath. It fails with ErrPipelineConfig
// when no camera is held or the encoder cannot be prepared or started.
func (p *Pipeline) Start(ctx context.Context, session model.RecordingSession) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return model.ErrPipelineBusy
	}
	return p.startLocked(ctx, session)
}

func (p *Pipeline) startLocked(ctx context.Context, session model.RecordingSession) error {
	h, ok := p.camera.Current()
	if !ok {
		return fmt.Errorf("%w: no camera handle", model.ErrPipelineConfig)
	}

	spec := ports.EncodeSpec{
		OutputPath:      session.FilePath,
		DevicePath:      h.Device.Path,
		Size:            h.Size,
		VideoBitrate:    p.cfg.VideoBitrate,
		FrameRate:       p.cfg.FrameRate,
		Audio:           p.cfg.Audio,
		AudioDevice:     p.cfg.AudioDevice,
		AudioBitrate:    p.cfg.AudioBitrate,
		OrientationHint: OrientationHint(p.cfg.InverseSensor, p.cfg.DeviceRotation),
	}
	es, err := p.encoder.Prepare(ctx, spec)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", model.ErrPipelineConfig, err)
	}
	if err := es.Start(ctx); err != nil {
		es.Abort()
		p.removeBestEffort(session.FilePath)
		return fmt.Errorf("%w: start: %v", model.ErrPipelineConfig, err)
	}

	p.active = &segment{session: session, enc: es}
	logger := log.WithComponent("pipeline")
	logger.Info().
		Str(log.FieldSessionID, session.ID).
		Str(log.FieldPath, session.FilePath).
		Str(log.FieldMode, string(session.Mode)).
		Int("orientation_hint", spec.OrientationHint).
		Msg("segment started")
	return nil
}

// Stop quiesces the capture feed, finalizes the file and measures it.
func (p *Pipeline) Stop(ctx context.Context) (model.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return model.Segment{}, model.ErrPipelineIdle
	}
	cur := p.active
	p.active = nil
	return p.finish(ctx, cur)
}

// Rotate finalizes the live file and starts next without releasing the
// camera. On success the file finalized by the previous rotation is deleted
// and the one just finalized becomes the retained file. When only the new
// start fails, the finalized segment is still returned with the error.
func (p *Pipeline) Rotate(ctx context.Context, next model.RecordingSession) (model.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return model.Segment{}, model.ErrPipelineIdle
	}
	cur := p.active
	p.active = nil

	seg, err := p.finish(ctx, cur)
	if err != nil {
		return model.Segment{}, err
	}
	if err := p.startLocked(ctx, next); err != nil {
		return seg, err
	}

	if p.retained != "" {
		p.removeBestEffort(p.retained)
		metrics.SegmentsDeletedTotal.Inc()
	}
	p.retained = seg.Session.FilePath
	return seg, nil
}

// DiscardRotated deletes the retained rotation file, if any.
func (p *Pipeline) DiscardRotated() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retained == "" {
		return
	}
	p.removeBestEffort(p.retained)
	metrics.SegmentsDeletedTotal.Inc()
	p.retained = ""
}

// Exited returns a channel closed when the live encoder stops writing, or
// nil while idle.
func (p *Pipeline) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	return p.active.enc.Done()
}

// Active reports whether an encoder session is writing.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

func (p *Pipeline) finish(ctx context.Context, cur *segment) (model.Segment, error) {
	logger := log.WithComponent("pipeline").With().Str(log.FieldSessionID, cur.session.ID).Logger()

	if err := cur.enc.Quiesce(ctx); err != nil {
		cur.enc.Abort()
		return model.Segment{}, fmt.Errorf("quiesce %s: %w", cur.session.FilePath, err)
	}
	if err := cur.enc.Finalize(ctx); err != nil {
		cur.enc.Abort()
		return model.Segment{}, fmt.Errorf("finalize %s: %w", cur.session.FilePath, err)
	}

	finishedAt := p.Now()
	dur, err := p.prober.Duration(ctx, cur.session.FilePath)
	if err != nil {
		dur = finishedAt.Sub(cur.session.StartedAt)
		logger.Warn().Err(err).Dur(log.FieldDuration, dur).Msg("duration probe failed, using wall clock")
	}

	logger.Info().
		Str(log.FieldPath, cur.session.FilePath).
		Dur(log.FieldDuration, dur).
		Msg("segment finalized")
	return model.Segment{Session: cur.session, Duration: dur, FinishedAt: finishedAt}, nil
}

func (p *Pipeline) removeBestEffort(path string) {
	if err := p.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger := log.WithComponent("pipeline")
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("remove segment failed")
	}
}
