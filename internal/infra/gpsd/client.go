// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gpsd streams position fixes from a gpsd daemon over its JSON
// socket protocol.
package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
)

const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// unknownAccuracyM is reported for fixes without error estimates so the
// accuracy gate treats them as coarse.
const unknownAccuracyM = 9999

// Client implements ports.FixProvider.
type Client struct {
	Addr        string
	DialTimeout time.Duration
}

var _ ports.FixProvider = (*Client)(nil)

func NewClient(addr string) *Client {
	return &Client{Addr: addr, DialTimeout: 3 * time.Second}
}

// tpv is the subset of a gpsd TPV report used here.
type tpv struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Epx   *float64 `json:"epx"`
	Epy   *float64 `json:"epy"`
	Eph   *float64 `json:"eph"`
}

// Fixes opens a watch session. The channel closes when ctx ends or the
// connection drops.
func (c *Client) Fixes(ctx context.Context) (<-chan model.Fix, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial gpsd %s: %w", c.Addr, err)
	}
	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gpsd watch: %w", err)
	}

	out := make(chan model.Fix)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer func() { _ = conn.Close() }()

		logger := log.WithComponent("gpsd")
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			fix, ok := parseReport(sc.Bytes())
			if !ok {
				continue
			}
			select {
			case out <- fix:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Str("addr", c.Addr).Msg("gpsd stream ended")
		}
	}()
	return out, nil
}

// parseReport returns a fix for TPV reports with at least a 2D fix.
func parseReport(line []byte) (model.Fix, bool) {
	var r tpv
	if err := json.Unmarshal(line, &r); err != nil || r.Class != "TPV" {
		return model.Fix{}, false
	}
	if r.Mode < 2 || r.Lat == nil || r.Lon == nil {
		return model.Fix{}, false
	}
	fix := model.Fix{
		Coordinates: model.LatLng{Lat: *r.Lat, Lng: *r.Lon},
		AccuracyM:   accuracy(r),
		At:          time.Now(),
	}
	if t, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
		fix.At = t
	}
	return fix, true
}

func accuracy(r tpv) float64 {
	switch {
	case r.Epx != nil && r.Epy != nil:
		return math.Max(*r.Epx, *r.Epy)
	case r.Eph != nil:
		return *r.Eph
	default:
		return unknownAccuracyM
	}
}
