// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
)

const (
	defaultVideoCodec = "libx264"
	defaultPreset     = "veryfast"
)

// buildArgs maps an encode spec to an ffmpeg command line writing H.264/AAC
// into an MP4 container.
func buildArgs(spec ports.EncodeSpec, codec, preset string) []string {
	if codec == "" {
		codec = defaultVideoCodec
	}
	if preset == "" {
		preset = defaultPreset
	}
	fps := strconv.Itoa(spec.FrameRate)

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "info",
		"-stats",
		"-f", "v4l2",
		"-framerate", fps,
		"-video_size", fmt.Sprintf("%dx%d", spec.Size.Width, spec.Size.Height),
		"-i", spec.DevicePath,
	}
	if spec.Audio {
		dev := spec.AudioDevice
		if dev == "" {
			dev = "default"
		}
		args = append(args, "-f", "alsa", "-i", dev)
	}

	args = append(args,
		"-map", "0:v:0",
		"-c:v", codec,
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-g", strconv.Itoa(spec.FrameRate*2),
		"-b:v", strconv.Itoa(spec.VideoBitrate),
		"-maxrate", strconv.Itoa(spec.VideoBitrate),
		"-bufsize", strconv.Itoa(spec.VideoBitrate*2),
	)
	if spec.Audio {
		args = append(args,
			"-map", "1:a:0",
			"-c:a", "aac",
			"-b:a", strconv.Itoa(spec.AudioBitrate),
		)
	}
	if spec.OrientationHint != 0 {
		args = append(args, "-metadata:s:v:0", "rotate="+strconv.Itoa(spec.OrientationHint))
	}
	args = append(args,
		"-movflags", "+faststart",
		"-f", "mp4",
		"-y", spec.OutputPath,
	)
	return args
}
