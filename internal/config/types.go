// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for the dashcam daemon.
package config

import "time"

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version       string `yaml:"-"`
	DataDir       string `yaml:"dataDir"`
	RecordingsDir string `yaml:"recordingsDir"`
	DatabasePath  string `yaml:"databasePath"`
	LogLevel      string `yaml:"logLevel"`

	Camera   CameraConfig   `yaml:"camera"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Capture  CaptureConfig  `yaml:"capture"`
	Location LocationConfig `yaml:"location"`
	Geocode  GeocodeConfig  `yaml:"geocode"`
	Dock     DockConfig     `yaml:"dock"`
	API      APIConfig      `yaml:"api"`
	Upload   UploadConfig   `yaml:"upload"`
}

// CameraConfig selects and opens the capture device.
type CameraConfig struct {
	DeviceGlob     string        `yaml:"deviceGlob"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
	// DeviceRotation is the mounting rotation of the unit in degrees (0, 90, 180, 270).
	DeviceRotation int `yaml:"deviceRotation"`
	// InverseSensor selects the inverse orientation table for sensors mounted at 270 degrees.
	InverseSensor bool   `yaml:"inverseSensor"`
	Audio         bool   `yaml:"audio"`
	AudioDevice   string `yaml:"audioDevice"`
}

// EncoderConfig drives the ffmpeg encoder and ffprobe duration probe.
type EncoderConfig struct {
	FFmpegBin    string        `yaml:"ffmpegBin"`
	FFprobeBin   string        `yaml:"ffprobeBin"`
	VideoBitrate int           `yaml:"videoBitrate"`
	FrameRate    int           `yaml:"frameRate"`
	AudioBitrate int           `yaml:"audioBitrate"`
	StartTimeout time.Duration `yaml:"startTimeout"`
	StopGrace    time.Duration `yaml:"stopGrace"`
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
}

// CaptureConfig tunes the capture run loop.
type CaptureConfig struct {
	// RotationInterval of 0 disables the built-in rotation ticker.
	RotationInterval time.Duration `yaml:"rotationInterval"`
	TeardownTimeout  time.Duration `yaml:"teardownTimeout"`
}

// LocationConfig points at gpsd and tunes the accuracy gate.
type LocationConfig struct {
	Enabled       bool    `yaml:"enabled"`
	GPSDAddr      string  `yaml:"gpsdAddr"`
	AccuracyGateM float64 `yaml:"accuracyGateMeters"`
	MaxRejections int     `yaml:"maxRejections"`
}

// GeocodeConfig configures reverse geocoding.
type GeocodeConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"apiKey"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DockConfig configures the charging and Bluetooth presence monitor.
type DockConfig struct {
	Enabled          bool          `yaml:"enabled"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	PowerSupplyDir   string        `yaml:"powerSupplyDir"`
	BluetoothAddress string        `yaml:"bluetoothAddress"`
	BluetoothctlBin  string        `yaml:"bluetoothctlBin"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	ListenAddr        string `yaml:"listenAddr"`
	RateLimitPerMin   int    `yaml:"rateLimitPerMinute"`
	EventsBufferLimit int    `yaml:"eventsBufferLimit"`
}

// UploadConfig configures submission uploads to S3-compatible storage.
type UploadConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKey    string `yaml:"accessKey"`
	SecretKey    string `yaml:"secretKey"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}
