// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/dashcam/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir, false)
	v.Directory("RecordingsDir", cfg.RecordingsDir, false)
	v.NotEmpty("DatabasePath", cfg.DatabasePath)
	v.OneOf("LogLevel", cfg.LogLevel, []string{"trace", "debug", "info", "warn", "error"})

	v.NotEmpty("Camera.DeviceGlob", cfg.Camera.DeviceGlob)
	v.MinDuration("Camera.AcquireTimeout", cfg.Camera.AcquireTimeout, 100*time.Millisecond)
	switch cfg.Camera.DeviceRotation {
	case 0, 90, 180, 270:
	default:
		v.AddError("Camera.DeviceRotation", "must be one of 0, 90, 180, 270", cfg.Camera.DeviceRotation)
	}

	v.NotEmpty("Encoder.FFmpegBin", cfg.Encoder.FFmpegBin)
	v.NotEmpty("Encoder.FFprobeBin", cfg.Encoder.FFprobeBin)
	v.Range("Encoder.VideoBitrate", cfg.Encoder.VideoBitrate, 100_000, 100_000_000)
	v.Range("Encoder.FrameRate", cfg.Encoder.FrameRate, 1, 120)
	v.MinDuration("Encoder.StartTimeout", cfg.Encoder.StartTimeout, 100*time.Millisecond)
	v.MinDuration("Encoder.StopGrace", cfg.Encoder.StopGrace, 100*time.Millisecond)
	v.MinDuration("Encoder.ProbeTimeout", cfg.Encoder.ProbeTimeout, 100*time.Millisecond)

	if cfg.Capture.RotationInterval != 0 {
		v.MinDuration("Capture.RotationInterval", cfg.Capture.RotationInterval, time.Second)
	}
	v.MinDuration("Capture.TeardownTimeout", cfg.Capture.TeardownTimeout, time.Second)

	if cfg.Location.Enabled {
		v.HostPort("Location.GPSDAddr", cfg.Location.GPSDAddr)
		v.FloatRange("Location.AccuracyGateMeters", cfg.Location.AccuracyGateM, 1, 10_000)
		v.Range("Location.MaxRejections", cfg.Location.MaxRejections, 0, 100)
	}

	if cfg.Geocode.Enabled {
		v.URL("Geocode.Endpoint", cfg.Geocode.Endpoint, []string{"http", "https"})
		v.NotEmpty("Geocode.APIKey", cfg.Geocode.APIKey)
		v.FloatRange("Geocode.RatePerSecond", cfg.Geocode.RatePerSecond, 0.01, 50)
	}

	if cfg.Dock.Enabled {
		v.MinDuration("Dock.PollInterval", cfg.Dock.PollInterval, time.Second)
		v.NotEmpty("Dock.PowerSupplyDir", cfg.Dock.PowerSupplyDir)
		v.NotEmpty("Dock.BluetoothAddress", cfg.Dock.BluetoothAddress)
	}

	v.HostPort("API.ListenAddr", cfg.API.ListenAddr)
	v.Range("API.RateLimitPerMinute", cfg.API.RateLimitPerMin, 1, 100_000)
	v.Positive("API.EventsBufferLimit", cfg.API.EventsBufferLimit)

	if cfg.Upload.Enabled {
		v.NotEmpty("Upload.Bucket", cfg.Upload.Bucket)
		v.NotEmpty("Upload.Region", cfg.Upload.Region)
		if cfg.Upload.Endpoint != "" {
			v.URL("Upload.Endpoint", cfg.Upload.Endpoint, []string{"http", "https"})
		}
		v.NotEmpty("Upload.AccessKey", cfg.Upload.AccessKey)
		v.NotEmpty("Upload.SecretKey", cfg.Upload.SecretKey)
	}

	return v.Err()
}
