// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package v4l2 implements the camera driver port over V4L2 capture nodes
// using go4vl for capability, format and frame size queries.
package v4l2

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	vl "github.com/vladimirvivien/go4vl/v4l2"

	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
)

// videoNode is the subset of *device.Device the driver relies on.
type videoNode interface {
	Capability() vl.Capability
	Fd() uintptr
	Close() error
}

type openFunc func(path string, opts ...device.Option) (videoNode, error)

func openDevice(path string, opts ...device.Option) (videoNode, error) {
	dev, err := device.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Driver enumerates /dev/video* style nodes.
type Driver struct {
	DeviceGlob string
	// FrameRate is requested on open; 0 keeps the node's current rate.
	FrameRate int

	open       openFunc
	frameSizes func(fd uintptr) ([]vl.FrameSizeEnum, error)

	mu sync.Mutex
	// formats remembers the pixel format each enumerated size was offered in.
	formats map[string]map[ports.Size]vl.FourCCType
}

var _ ports.CameraDriver = (*Driver)(nil)

func NewDriver(deviceGlob string, frameRate int) *Driver {
	if deviceGlob == "" {
		deviceGlob = "/dev/video*"
	}
	return &Driver{
		DeviceGlob: deviceGlob,
		FrameRate:  frameRate,
		open:       openDevice,
		frameSizes: vl.GetAllFormatFrameSizes,
		formats:    make(map[string]map[ports.Size]vl.FourCCType),
	}
}

// Enumerate lists capture-capable nodes in path order. Nodes that fail to
// open, lack video capture, or offer no discrete frame size (metadata nodes)
// are skipped.
func (d *Driver) Enumerate(ctx context.Context) ([]ports.DeviceInfo, error) {
	paths, err := filepath.Glob(d.DeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("device glob %q: %w", d.DeviceGlob, err)
	}
	sort.Strings(paths)
	logger := log.WithComponent("v4l2")

	var out []ports.DeviceInfo
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, formats, err := d.describe(p)
		if err != nil {
			logger.Debug().Err(err).Str(log.FieldDevice, p).Msg("skipping device")
			continue
		}
		if len(info.Sizes) == 0 {
			continue
		}
		d.mu.Lock()
		d.formats[p] = formats
		d.mu.Unlock()
		out = append(out, info)
	}
	return out, nil
}

func (d *Driver) describe(path string) (ports.DeviceInfo, map[ports.Size]vl.FourCCType, error) {
	node, err := d.open(path)
	if err != nil {
		return ports.DeviceInfo{}, nil, err
	}
	defer func() { _ = node.Close() }()

	caps := node.Capability()
	if !caps.IsVideoCaptureSupported() {
		return ports.DeviceInfo{}, nil, fmt.Errorf("%s: no video capture", path)
	}
	enums, err := d.frameSizes(node.Fd())
	if err != nil {
		return ports.DeviceInfo{}, nil, fmt.Errorf("%s: frame sizes: %w", path, err)
	}
	sizes, formats := discreteSizes(enums)
	return ports.DeviceInfo{
		ID:     filepath.Base(path) + ":" + caps.Card,
		Path:   path,
		Facing: facingFor(caps.Card, caps.Driver),
		Sizes:  sizes,
	}, formats, nil
}

// Open configures the node for the chosen size and holds it until Close.
func (d *Driver) Open(ctx context.Context, dev ports.DeviceInfo, size ports.Size) (ports.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(dev.Path); err != nil {
		return nil, err
	}

	var opts []device.Option
	d.mu.Lock()
	pixFmt, ok := d.formats[dev.Path][size]
	d.mu.Unlock()
	if ok {
		opts = append(opts, device.WithPixFormat(vl.PixFormat{
			PixelFormat: pixFmt,
			Width:       uint32(size.Width),
			Height:      uint32(size.Height),
			Field:       vl.FieldNone,
		}))
	}
	if d.FrameRate > 0 {
		opts = append(opts, device.WithFPS(uint32(d.FrameRate)))
	}

	node, err := d.open(dev.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Path, err)
	}
	logger := log.WithComponent("v4l2")
	logger.Debug().
		Str(log.FieldDevice, dev.Path).
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", size.Width, size.Height)).
		Msg("capture device opened")
	return &handle{node: node}, nil
}

type handle struct {
	once sync.Once
	node videoNode
	err  error
}

func (h *handle) Close() error {
	h.once.Do(func() { h.err = h.node.Close() })
	return h.err
}

// discreteSizes returns distinct discrete sizes in enumeration order and
// the first pixel format each was offered in.
func discreteSizes(enums []vl.FrameSizeEnum) ([]ports.Size, map[ports.Size]vl.FourCCType) {
	var sizes []ports.Size
	formats := make(map[ports.Size]vl.FourCCType)
	for _, e := range enums {
		if e.Type != vl.FrameSizeTypeDiscrete {
			continue
		}
		s := ports.Size{Width: int(e.Size.MinWidth), Height: int(e.Size.MinHeight)}
		if _, seen := formats[s]; seen {
			continue
		}
		formats[s] = e.PixelFormat
		sizes = append(sizes, s)
	}
	return sizes, formats
}

// facingFor guesses orientation from the card and driver names. USB
// cameras are external; front is only reported when the card says so.
func facingFor(card, driver string) ports.Facing {
	c := strings.ToLower(card)
	switch {
	case strings.Contains(c, "front"):
		return ports.FacingFront
	case driver == "uvcvideo":
		return ports.FacingExternal
	default:
		return ports.FacingBack
	}
}
