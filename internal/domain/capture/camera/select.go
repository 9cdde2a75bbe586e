// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import "github.com/ManuGH/dashcam/internal/domain/capture/ports"

// ChooseDevice prefers the first rear-facing device and falls back to the first enumerated.
func ChooseDevice(devices []ports.DeviceInfo) (ports.DeviceInfo, bool) {
	if len(devices) == 0 {
		return ports.DeviceInfo{}, false
	}
	for _, d := range devices {
		if d.Facing == ports.FacingBack {
			return d, true
		}
	}
	return devices[0], true
}

// ChooseVideoSize picks the largest 4:3 size whose long edge is at most
// MaxLongEdge. Without a match it returns the last enumerated size.
func ChooseVideoSize(sizes []ports.Size) (ports.Size, bool) {
	if len(sizes) == 0 {
		return ports.Size{}, false
	}
	var best ports.Size
	found := false
	for _, s := range sizes {
		long, short := s.Width, s.Height
		if short > long {
			long, short = short, long
		}
		if long*3 != short*4 || long > MaxLongEdge {
			continue
		}
		if !found || s.Width*s.Height > best.Width*best.Height {
			best = s
			found = true
		}
	}
	if !found {
		return sizes[len(sizes)-1], true
	}
	return best, true
}
