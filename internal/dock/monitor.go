// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dock decides whether the unit is docked in the car (charging and
// paired with the car's Bluetooth) and steers continuous capture to match.
package dock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
)

// Runner executes a helper binary and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 - binary comes from config; args are a fixed verb and a MAC address
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Submitter accepts capture triggers.
type Submitter interface {
	Submit(ctx context.Context, triggers ...model.Trigger) error
}

// Monitor polls power supplies and the Bluetooth link.
type Monitor struct {
	Enabled          bool
	PollInterval     time.Duration
	PowerSupplyDir   string
	BluetoothAddress string
	BluetoothctlBin  string
	Exec             Runner
	Target           Submitter
}

// NewMonitor builds a monitor with the exec runner.
func NewMonitor(enabled bool, poll time.Duration, powerDir, btAddr, btctl string, target Submitter) *Monitor {
	if btctl == "" {
		btctl = "bluetoothctl"
	}
	return &Monitor{
		Enabled:          enabled,
		PollInterval:     poll,
		PowerSupplyDir:   powerDir,
		BluetoothAddress: btAddr,
		BluetoothctlBin:  btctl,
		Exec:             execRunner,
		Target:           target,
	}
}

// Configured reports whether the heuristic can ever target capture on.
func (m *Monitor) Configured() bool {
	return m.Enabled && m.BluetoothAddress != "" && m.PowerSupplyDir != ""
}

// Docked evaluates the heuristic once. A disabled or unconfigured monitor
// is never docked.
func (m *Monitor) Docked(ctx context.Context) bool {
	if !m.Configured() {
		return false
	}
	logger := log.WithComponentFromContext(ctx, "dock")
	charging, err := Charging(m.PowerSupplyDir)
	if err != nil {
		metrics.IncDockProbeError("power")
		logger.Debug().Err(err).Msg("power supply probe failed")
		return false
	}
	if !charging {
		return false
	}
	connected, err := m.bluetoothConnected(ctx)
	if err != nil {
		metrics.IncDockProbeError("bluetooth")
		logger.Debug().Err(err).Msg("bluetooth probe failed")
		return false
	}
	return connected
}

// Run polls until ctx ends, submitting SetTargetRunning whenever the
// heuristic changes and once at start.
func (m *Monitor) Run(ctx context.Context) error {
	if m.Target == nil {
		return errors.New("dock monitor has no target")
	}
	logger := log.WithComponentFromContext(ctx, "dock")
	if !m.Configured() {
		logger.Info().Bool("enabled", m.Enabled).Msg("dock integration inactive, continuous capture targeted off")
		metrics.SetDockTarget(false)
		if err := m.Target.Submit(ctx, model.SetTargetRunning(false)); err != nil && ctx.Err() == nil {
			return err
		}
		<-ctx.Done()
		return nil
	}

	interval := m.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	first := true
	var last bool
	for {
		docked := m.Docked(ctx)
		if first || docked != last {
			logger.Info().Bool("docked", docked).Msg("dock state changed")
			metrics.SetDockTarget(docked)
			if err := m.Target.Submit(ctx, model.SetTargetRunning(docked)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("submit target: %w", err)
			}
			first, last = false, docked
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) bluetoothConnected(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := m.Exec(ctx, m.BluetoothctlBin, "info", m.BluetoothAddress)
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Connected:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Connected:")) == "yes", nil
		}
	}
	return false, nil
}

// Charging reads a sysfs power_supply tree. Batteries count when their
// status is Charging or Full; mains adapters count when online.
func Charging(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read power supplies: %w", err)
	}
	for _, e := range entries {
		base := filepath.Join(dir, e.Name())
		kind := readAttr(base, "type")
		switch kind {
		case "Battery":
			switch readAttr(base, "status") {
			case "Charging", "Full":
				return true, nil
			}
		case "Mains", "USB", "USB_C", "USB_PD":
			if readAttr(base, "online") == "1" {
				return true, nil
			}
		}
	}
	return false, nil
}

func readAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 - sysfs attribute under configured dir
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
