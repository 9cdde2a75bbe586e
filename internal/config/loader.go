// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ManuGH/dashcam/internal/log"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	l.warnUnknownEnv()

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a single strict YAML document over the defaults in cfg.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("DASHCAM_DATA_DIR", cfg.DataDir)
	cfg.RecordingsDir = l.envString("DASHCAM_RECORDINGS_DIR", cfg.RecordingsDir)
	cfg.DatabasePath = l.envString("DASHCAM_DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = l.envString("DASHCAM_LOG_LEVEL", cfg.LogLevel)

	cfg.Camera.DeviceGlob = l.envString("DASHCAM_CAMERA_DEVICE_GLOB", cfg.Camera.DeviceGlob)
	cfg.Camera.AcquireTimeout = l.envDuration("DASHCAM_CAMERA_ACQUIRE_TIMEOUT", cfg.Camera.AcquireTimeout)
	cfg.Camera.DeviceRotation = l.envInt("DASHCAM_CAMERA_DEVICE_ROTATION", cfg.Camera.DeviceRotation)
	cfg.Camera.InverseSensor = l.envBool("DASHCAM_CAMERA_INVERSE_SENSOR", cfg.Camera.InverseSensor)
	cfg.Camera.Audio = l.envBool("DASHCAM_CAMERA_AUDIO", cfg.Camera.Audio)
	cfg.Camera.AudioDevice = l.envString("DASHCAM_CAMERA_AUDIO_DEVICE", cfg.Camera.AudioDevice)

	cfg.Encoder.FFmpegBin = l.envString("DASHCAM_FFMPEG_BIN", cfg.Encoder.FFmpegBin)
	cfg.Encoder.FFprobeBin = l.envString("DASHCAM_FFPROBE_BIN", cfg.Encoder.FFprobeBin)
	cfg.Encoder.VideoBitrate = l.envInt("DASHCAM_ENCODER_VIDEO_BITRATE", cfg.Encoder.VideoBitrate)
	cfg.Encoder.FrameRate = l.envInt("DASHCAM_ENCODER_FRAME_RATE", cfg.Encoder.FrameRate)
	cfg.Encoder.AudioBitrate = l.envInt("DASHCAM_ENCODER_AUDIO_BITRATE", cfg.Encoder.AudioBitrate)
	cfg.Encoder.StartTimeout = l.envDuration("DASHCAM_ENCODER_START_TIMEOUT", cfg.Encoder.StartTimeout)
	cfg.Encoder.StopGrace = l.envDuration("DASHCAM_ENCODER_STOP_GRACE", cfg.Encoder.StopGrace)
	cfg.Encoder.ProbeTimeout = l.envDuration("DASHCAM_ENCODER_PROBE_TIMEOUT", cfg.Encoder.ProbeTimeout)

	cfg.Capture.RotationInterval = l.envDuration("DASHCAM_CAPTURE_ROTATION_INTERVAL", cfg.Capture.RotationInterval)
	cfg.Capture.TeardownTimeout = l.envDuration("DASHCAM_CAPTURE_TEARDOWN_TIMEOUT", cfg.Capture.TeardownTimeout)

	cfg.Location.Enabled = l.envBool("DASHCAM_LOCATION_ENABLED", cfg.Location.Enabled)
	cfg.Location.GPSDAddr = l.envString("DASHCAM_LOCATION_GPSD_ADDR", cfg.Location.GPSDAddr)
	cfg.Location.AccuracyGateM = l.envFloat("DASHCAM_LOCATION_ACCURACY_GATE_METERS", cfg.Location.AccuracyGateM)
	cfg.Location.MaxRejections = l.envInt("DASHCAM_LOCATION_MAX_REJECTIONS", cfg.Location.MaxRejections)

	cfg.Geocode.Enabled = l.envBool("DASHCAM_GEOCODE_ENABLED", cfg.Geocode.Enabled)
	cfg.Geocode.Endpoint = l.envString("DASHCAM_GEOCODE_ENDPOINT", cfg.Geocode.Endpoint)
	cfg.Geocode.APIKey = l.envString("DASHCAM_GEOCODE_API_KEY", cfg.Geocode.APIKey)
	cfg.Geocode.RatePerSecond = l.envFloat("DASHCAM_GEOCODE_RATE_PER_SECOND", cfg.Geocode.RatePerSecond)
	cfg.Geocode.Timeout = l.envDuration("DASHCAM_GEOCODE_TIMEOUT", cfg.Geocode.Timeout)

	cfg.Dock.Enabled = l.envBool("DASHCAM_DOCK_ENABLED", cfg.Dock.Enabled)
	cfg.Dock.PollInterval = l.envDuration("DASHCAM_DOCK_POLL_INTERVAL", cfg.Dock.PollInterval)
	cfg.Dock.PowerSupplyDir = l.envString("DASHCAM_DOCK_POWER_SUPPLY_DIR", cfg.Dock.PowerSupplyDir)
	cfg.Dock.BluetoothAddress = l.envString("DASHCAM_DOCK_BLUETOOTH_ADDRESS", cfg.Dock.BluetoothAddress)
	cfg.Dock.BluetoothctlBin = l.envString("DASHCAM_DOCK_BLUETOOTHCTL_BIN", cfg.Dock.BluetoothctlBin)

	cfg.API.ListenAddr = l.envString("DASHCAM_API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimitPerMin = l.envInt("DASHCAM_API_RATE_LIMIT_PER_MINUTE", cfg.API.RateLimitPerMin)
	cfg.API.EventsBufferLimit = l.envInt("DASHCAM_API_EVENTS_BUFFER_LIMIT", cfg.API.EventsBufferLimit)

	cfg.Upload.Enabled = l.envBool("DASHCAM_UPLOAD_ENABLED", cfg.Upload.Enabled)
	cfg.Upload.Endpoint = l.envString("DASHCAM_UPLOAD_ENDPOINT", cfg.Upload.Endpoint)
	cfg.Upload.Region = l.envString("DASHCAM_UPLOAD_REGION", cfg.Upload.Region)
	cfg.Upload.Bucket = l.envString("DASHCAM_UPLOAD_BUCKET", cfg.Upload.Bucket)
	cfg.Upload.Prefix = l.envString("DASHCAM_UPLOAD_PREFIX", cfg.Upload.Prefix)
	cfg.Upload.AccessKey = l.envString("DASHCAM_UPLOAD_ACCESS_KEY", cfg.Upload.AccessKey)
	cfg.Upload.SecretKey = l.envString("DASHCAM_UPLOAD_SECRET_KEY", cfg.Upload.SecretKey)
	cfg.Upload.UsePathStyle = l.envBool("DASHCAM_UPLOAD_USE_PATH_STYLE", cfg.Upload.UsePathStyle)
}

// UnknownEnvKeys lists DASHCAM_* variables that no config field consumed.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (l *Loader) warnUnknownEnv() {
	logger := log.WithComponent("config")
	for _, key := range l.UnknownEnvKeys() {
		logger.Warn().Str("key", key).Msg("ignoring unknown environment variable")
	}
}

// resolvePaths anchors relative storage paths under DataDir.
func resolvePaths(cfg *AppConfig) {
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = "recordings"
	}
	if !filepath.IsAbs(cfg.RecordingsDir) {
		cfg.RecordingsDir = filepath.Join(cfg.DataDir, cfg.RecordingsDir)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "dashcam.db"
	}
	if !filepath.IsAbs(cfg.DatabasePath) {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, cfg.DatabasePath)
	}
}
