// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the baseline configuration before file and environment overrides.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:       "/var/lib/dashcam",
		RecordingsDir: "recordings",
		DatabasePath:  "dashcam.db",
		LogLevel:      "info",
		Camera: CameraConfig{
			DeviceGlob:     "/dev/video*",
			AcquireTimeout: 2500 * time.Millisecond,
			Audio:          true,
			AudioDevice:    "default",
		},
		Encoder: EncoderConfig{
			FFmpegBin:    "ffmpeg",
			FFprobeBin:   "ffprobe",
			VideoBitrate: 10_000_000,
			FrameRate:    30,
			AudioBitrate: 128_000,
			StartTimeout: 10 * time.Second,
			StopGrace:    5 * time.Second,
			ProbeTimeout: 5 * time.Second,
		},
		Capture: CaptureConfig{
			RotationInterval: 500 * time.Second,
			TeardownTimeout:  15 * time.Second,
		},
		Location: LocationConfig{
			Enabled:       true,
			GPSDAddr:      "127.0.0.1:2947",
			AccuracyGateM: 20,
			MaxRejections: 3,
		},
		Geocode: GeocodeConfig{
			Endpoint:      "https://maps.googleapis.com/maps/api/geocode/json",
			RatePerSecond: 1,
			Timeout:       10 * time.Second,
		},
		Dock: DockConfig{
			PollInterval:    10 * time.Second,
			PowerSupplyDir:  "/sys/class/power_supply",
			BluetoothctlBin: "bluetoothctl",
		},
		API: APIConfig{
			ListenAddr:        "127.0.0.1:8088",
			RateLimitPerMin:   120,
			EventsBufferLimit: 16,
		},
		Upload: UploadConfig{
			Region: "us-east-1",
			Prefix: "dashcam/",
		},
	}
}
