// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/ManuGH/dashcam/internal/api"
	"github.com/ManuGH/dashcam/internal/bus"
	"github.com/ManuGH/dashcam/internal/config"
	"github.com/ManuGH/dashcam/internal/dock"
	"github.com/ManuGH/dashcam/internal/domain/capture/camera"
	"github.com/ManuGH/dashcam/internal/domain/capture/location"
	"github.com/ManuGH/dashcam/internal/domain/capture/manager"
	"github.com/ManuGH/dashcam/internal/domain/capture/pipeline"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/domain/capture/store"
	"github.com/ManuGH/dashcam/internal/infra/ffmpeg"
	"github.com/ManuGH/dashcam/internal/infra/geocode"
	"github.com/ManuGH/dashcam/internal/infra/gpsd"
	"github.com/ManuGH/dashcam/internal/infra/s3upload"
	"github.com/ManuGH/dashcam/internal/infra/v4l2"
	"github.com/ManuGH/dashcam/internal/library"
	"github.com/ManuGH/dashcam/internal/log"
)

// Runtime is the fully wired daemon.
type Runtime struct {
	Config  config.AppConfig
	Store   *store.SqliteStore
	Bus     *bus.MemoryBus
	Camera  *camera.Manager
	Capture *manager.Orchestrator
	Library *library.Service
	Dock    *dock.Monitor
	API     *api.Server
}

// OpenStore prepares the data directories, opens the record store and runs
// a quick integrity check so a damaged database fails startup.
func OpenStore(ctx context.Context, cfg config.AppConfig) (*store.SqliteStore, error) {
	for _, dir := range []string{cfg.DataDir, cfg.RecordingsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	st, err := store.NewSqliteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := st.Verify(ctx, false); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return st, nil
}

// NewUploader returns the configured submission uploader, or nil when
// uploads are disabled.
func NewUploader(ctx context.Context, cfg config.UploadConfig) (library.Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	up, err := s3upload.New(s3upload.Config{
		Endpoint:     cfg.Endpoint,
		Region:       cfg.Region,
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	if err := up.Check(ctx); err != nil {
		logger := log.WithComponentFromContext(ctx, "daemon")
		logger.Warn().Err(err).Msg("upload bucket not reachable, submissions will fail until it is")
	}
	return up, nil
}

// Build wires every component from cfg. The caller owns Runtime.Close.
func Build(ctx context.Context, cfg config.AppConfig) (*Runtime, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := bus.NewMemoryBus()
	notifier := &manager.BusNotifier{Bus: b}

	cam := camera.NewManager(v4l2.NewDriver(cfg.Camera.DeviceGlob, cfg.Encoder.FrameRate), cfg.Camera.AcquireTimeout)
	pipe := pipeline.New(
		ffmpeg.NewEncoder(cfg.Encoder.FFmpegBin, cfg.Encoder.StopGrace),
		ffmpeg.NewProber(cfg.Encoder.FFprobeBin, cfg.Encoder.ProbeTimeout),
		cam,
		pipeline.Config{
			VideoBitrate:   cfg.Encoder.VideoBitrate,
			FrameRate:      cfg.Encoder.FrameRate,
			AudioBitrate:   cfg.Encoder.AudioBitrate,
			Audio:          cfg.Camera.Audio,
			AudioDevice:    cfg.Camera.AudioDevice,
			InverseSensor:  cfg.Camera.InverseSensor,
			DeviceRotation: cfg.Camera.DeviceRotation,
		},
	)

	var provider ports.FixProvider
	if cfg.Location.Enabled {
		provider = gpsd.NewClient(cfg.Location.GPSDAddr)
	}
	var geocoder ports.Geocoder
	if cfg.Geocode.Enabled {
		geocoder = geocode.NewClient(cfg.Geocode.Endpoint, cfg.Geocode.APIKey, cfg.Geocode.RatePerSecond, cfg.Geocode.Timeout)
	}
	loc := location.New(provider, geocoder, st, location.Config{
		AccuracyGateM: cfg.Location.AccuracyGateM,
		MaxRejections: cfg.Location.MaxRejections,
	})

	orch := &manager.Orchestrator{
		Camera:           cam,
		Pipeline:         pipe,
		Locator:          loc,
		Store:            st,
		Notifier:         notifier,
		Paths:            pipeline.NewPathAllocator(cfg.RecordingsDir),
		RotationInterval: cfg.Capture.RotationInterval,
		StartTimeout:     cfg.Camera.AcquireTimeout + cfg.Encoder.StartTimeout,
		TeardownTimeout:  cfg.Capture.TeardownTimeout,
	}

	uploader, err := NewUploader(ctx, cfg.Upload)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("upload: %w", err)
	}
	lib := library.NewService(st, cfg.RecordingsDir, uploader, notifier)

	mon := dock.NewMonitor(cfg.Dock.Enabled, cfg.Dock.PollInterval, cfg.Dock.PowerSupplyDir,
		cfg.Dock.BluetoothAddress, cfg.Dock.BluetoothctlBin, orch)

	srv := api.New(api.Config{
		RateLimitPerMin: cfg.API.RateLimitPerMin,
		MaxEventStreams: cfg.API.EventsBufferLimit,
		Version:         cfg.Version,
	}, orch, lib, b)

	return &Runtime{
		Config:  cfg,
		Store:   st,
		Bus:     b,
		Camera:  cam,
		Capture: orch,
		Library: lib,
		Dock:    mon,
		API:     srv,
	}, nil
}

// Close releases resources that outlive Run.
func (r *Runtime) Close() error {
	return r.Store.Close()
}
