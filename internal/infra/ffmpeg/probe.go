// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
)

// Prober reads container durations with ffprobe.
type Prober struct {
	BinaryPath string
	Timeout    time.Duration
}

var _ ports.Prober = (*Prober)(nil)

func NewProber(binaryPath string, timeout time.Duration) *Prober {
	if binaryPath == "" {
		binaryPath = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{BinaryPath: binaryPath, Timeout: timeout}
}

type probeData struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	// #nosec G204 - binary comes from config; path is an allocated output file
	cmd := exec.CommandContext(ctx, p.BinaryPath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		errStr := stderr.String()
		if len(errStr) > 1024 {
			errStr = errStr[:1024] + "..."
		}
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, errStr)
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (time.Duration, error) {
	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}
	if data.Format.Duration == "" || data.Format.Duration == "N/A" {
		return 0, errors.New("ffprobe reported no duration")
	}
	secs, err := strconv.ParseFloat(data.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", data.Format.Duration, err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("ffprobe duration %q is negative", data.Format.Duration)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
