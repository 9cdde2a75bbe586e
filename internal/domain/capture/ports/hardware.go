// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports defines the boundaries between the capture core and the
// hardware, storage and network adapters that back it.
package ports

import (
	"context"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
)

// Facing is the direction a sensor points relative to the unit.
type Facing string

const (
	FacingBack     Facing = "back"
	FacingFront    Facing = "front"
	FacingExternal Facing = "external"
)

// Size is a supported capture resolution.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceInfo describes an enumerable capture device.
type DeviceInfo struct {
	ID     string
	Path   string
	Facing Facing
	Sizes  []Size
}

// Device is an opened capture device. Close must be idempotent.
type Device interface {
	Close() error
}

// CameraDriver enumerates and opens capture devices. Open must honor ctx;
// permission failures should wrap fs.ErrPermission.
type CameraDriver interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context, dev DeviceInfo, size Size) (Device, error)
}

// EncodeSpec is everything an encoder needs to write one output file.
type EncodeSpec struct {
	OutputPath      string
	DevicePath      string
	Size            Size
	VideoBitrate    int
	FrameRate       int
	Audio           bool
	AudioDevice     string
	AudioBitrate    int
	OrientationHint int
}

// Encoder prepares encoder sessions bound to the camera stream.
type Encoder interface {
	Prepare(ctx context.Context, spec EncodeSpec) (EncodeSession, error)
}

// EncodeSession is a single output file. Start returns once frames are
// being written. Quiesce stops the capture feed and blocks until pending
// buffers have drained. Finalize closes the container. Abort discards an
// unstarted or failed session and must be safe to call at any time.
// Done is closed once the encoder has stopped writing for any reason,
// including a crash after Start returned.
type EncodeSession interface {
	Start(ctx context.Context) error
	Quiesce(ctx context.Context) error
	Finalize(ctx context.Context) error
	Abort()
	Done() <-chan struct{}
}

// Prober reads the measured duration of a finalized container.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FixProvider streams position fixes until ctx is cancelled. The returned
// channel is closed when the stream ends.
type FixProvider interface {
	Fixes(ctx context.Context) (<-chan model.Fix, error)
}

// Geocoder performs a single reverse-geocode attempt.
type Geocoder interface {
	Lookup(ctx context.Context, at model.LatLng) (model.Address, error)
}
