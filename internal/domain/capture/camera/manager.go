// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package camera owns the exclusive capture device handle.
package camera

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
	"github.com/google/uuid"
)

// DefaultAcquireTimeout bounds a single acquisition attempt.
const DefaultAcquireTimeout = 2500 * time.Millisecond

// MaxLongEdge is the largest long edge chosen for recording.
const MaxLongEdge = 1080

// Handle is an acquired camera.
type Handle struct {
	ID     string
	Device ports.DeviceInfo
	Size   ports.Size

	dev ports.Device
}

// Manager serializes open/close sequences through a binary semaphore and
// hands out at most one Handle at a time. It never retries.
type Manager struct {
	driver  ports.CameraDriver
	timeout time.Duration

	// sem is held for the duration of every open or close sequence.
	sem chan struct{}

	mu   sync.Mutex
	held *Handle
}

func NewManager(driver ports.CameraDriver, acquireTimeout time.Duration) *Manager {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Manager{
		driver:  driver,
		timeout: acquireTimeout,
		sem:     make(chan struct{}, 1),
	}
}

type openResult struct {
	dev ports.Device
	err error
}

// Acquire opens the rear-facing device, bounded by the acquire timeout.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	logger := log.WithComponent("camera")

	m.mu.Lock()
	busy := m.held != nil
	m.mu.Unlock()
	if busy {
		metrics.ObserveCameraAcquire(string(model.CameraBusy))
		return nil, &model.CameraError{Reason: model.CameraBusy}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		metrics.ObserveCameraAcquire(string(model.CameraTimeout))
		return nil, &model.CameraError{Reason: model.CameraTimeout, Err: ctx.Err()}
	}
	semHeld := true
	defer func() {
		if semHeld {
			<-m.sem
		}
	}()

	m.mu.Lock()
	busy = m.held != nil
	m.mu.Unlock()
	if busy {
		metrics.ObserveCameraAcquire(string(model.CameraBusy))
		return nil, &model.CameraError{Reason: model.CameraBusy}
	}

	devices, err := m.driver.Enumerate(ctx)
	if err != nil {
		reason := classify(ctx, err)
		metrics.ObserveCameraAcquire(string(reason))
		return nil, &model.CameraError{Reason: reason, Err: err}
	}
	dev, ok := ChooseDevice(devices)
	if !ok {
		metrics.ObserveCameraAcquire(string(model.CameraNoDevice))
		return nil, &model.CameraError{Reason: model.CameraNoDevice}
	}
	size, ok := ChooseVideoSize(dev.Sizes)
	if !ok {
		metrics.ObserveCameraAcquire(string(model.CameraNoDevice))
		return nil, &model.CameraError{Reason: model.CameraNoDevice, Err: errors.New("device reports no sizes")}
	}

	results := make(chan openResult, 1)
	openCtx := context.WithoutCancel(ctx)
	go func() {
		d, err := m.driver.Open(openCtx, dev, size)
		results <- openResult{dev: d, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			reason := classify(ctx, res.err)
			metrics.ObserveCameraAcquire(string(reason))
			return nil, &model.CameraError{Reason: reason, Err: res.err}
		}
		h := &Handle{ID: uuid.NewString(), Device: dev, Size: size, dev: res.dev}
		m.mu.Lock()
		m.held = h
		m.mu.Unlock()
		metrics.ObserveCameraAcquire("ok")
		metrics.CameraHeld.Set(1)
		logger.Info().
			Str(log.FieldDevice, dev.Path).
			Int("width", size.Width).
			Int("height", size.Height).
			Msg("camera acquired")
		return h, nil
	case <-ctx.Done():
		// The open sequence still owns the semaphore; a late grant is closed.
		semHeld = false
		go func() {
			defer func() { <-m.sem }()
			res := <-results
			if res.err == nil && res.dev != nil {
				_ = res.dev.Close()
				logger.Warn().Str(log.FieldDevice, dev.Path).Msg("closed camera granted after acquire timeout")
			}
		}()
		metrics.ObserveCameraAcquire(string(model.CameraTimeout))
		return nil, &model.CameraError{Reason: model.CameraTimeout, Err: ctx.Err()}
	}
}

// Release closes the held device. It is idempotent and safe without a prior Acquire.
func (m *Manager) Release() error {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	m.mu.Lock()
	h := m.held
	m.held = nil
	m.mu.Unlock()
	if h == nil {
		return nil
	}

	metrics.CameraHeld.Set(0)
	logger := log.WithComponent("camera")
	if err := h.dev.Close(); err != nil {
		logger.Warn().Err(err).Str(log.FieldDevice, h.Device.Path).Msg("camera close failed")
		return err
	}
	logger.Info().Str(log.FieldDevice, h.Device.Path).Msg("camera released")
	return nil
}

// Current returns the held handle, if any.
func (m *Manager) Current() (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held, m.held != nil
}

func classify(ctx context.Context, err error) model.CameraReason {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return model.CameraPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return model.CameraNoDevice
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return model.CameraTimeout
	default:
		return model.CameraOpenFailed
	}
}
