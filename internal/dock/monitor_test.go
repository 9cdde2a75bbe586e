// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTarget struct {
	mu       sync.Mutex
	triggers []model.Trigger
}

func (r *recordingTarget) Submit(_ context.Context, triggers ...model.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, triggers...)
	return nil
}

func (r *recordingTarget) snapshot() []model.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Trigger(nil), r.triggers...)
}

func writeSupply(t *testing.T, dir, name string, attrs map[string]string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(p, 0o750))
	for k, v := range attrs {
		require.NoError(t, os.WriteFile(filepath.Join(p, k), []byte(v+"\n"), 0o600))
	}
}

func btRunner(connected *bool, mu *sync.Mutex) Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if *connected {
			return []byte("Device AA:BB\n\tName: Car\n\tConnected: yes\n"), nil
		}
		return []byte("Device AA:BB\n\tName: Car\n\tConnected: no\n"), nil
	}
}

func TestCharging(t *testing.T) {
	cases := []struct {
		name  string
		setup func(dir string)
		want  bool
	}{
		{"battery charging", func(dir string) {
			writeSupply(t, dir, "BAT0", map[string]string{"type": "Battery", "status": "Charging"})
		}, true},
		{"battery full", func(dir string) {
			writeSupply(t, dir, "BAT0", map[string]string{"type": "Battery", "status": "Full"})
		}, true},
		{"battery discharging", func(dir string) {
			writeSupply(t, dir, "BAT0", map[string]string{"type": "Battery", "status": "Discharging"})
		}, false},
		{"mains online", func(dir string) {
			writeSupply(t, dir, "BAT0", map[string]string{"type": "Battery", "status": "Discharging"})
			writeSupply(t, dir, "AC", map[string]string{"type": "Mains", "online": "1"})
		}, true},
		{"mains offline", func(dir string) {
			writeSupply(t, dir, "AC", map[string]string{"type": "Mains", "online": "0"})
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			tc.setup(dir)
			got, err := Charging(dir)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Charging(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDockedRequiresChargingAndBluetooth(t *testing.T) {
	dir := t.TempDir()
	writeSupply(t, dir, "AC", map[string]string{"type": "Mains", "online": "1"})
	var mu sync.Mutex
	connected := true

	m := &Monitor{Enabled: true, PowerSupplyDir: dir, BluetoothAddress: "AA:BB", Exec: btRunner(&connected, &mu)}
	assert.True(t, m.Docked(context.Background()))

	mu.Lock()
	connected = false
	mu.Unlock()
	assert.False(t, m.Docked(context.Background()))

	m.Exec = func(context.Context, string, ...string) ([]byte, error) { return nil, errors.New("no adapter") }
	assert.False(t, m.Docked(context.Background()))

	m.Exec = btRunner(&connected, &mu)
	m.Enabled = false
	mu.Lock()
	connected = true
	mu.Unlock()
	assert.False(t, m.Docked(context.Background()), "disabled integration is never docked")
}

func TestRunSubmitsChanges(t *testing.T) {
	dir := t.TempDir()
	writeSupply(t, dir, "AC", map[string]string{"type": "Mains", "online": "1"})
	var mu sync.Mutex
	connected := false
	target := &recordingTarget{}
	m := &Monitor{
		Enabled:          true,
		PollInterval:     5 * time.Millisecond,
		PowerSupplyDir:   dir,
		BluetoothAddress: "AA:BB",
		Exec:             btRunner(&connected, &mu),
		Target:           target,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return len(target.snapshot()) == 1 }, time.Second, time.Millisecond)
	mu.Lock()
	connected = true
	mu.Unlock()
	require.Eventually(t, func() bool { return len(target.snapshot()) == 2 }, time.Second, time.Millisecond)

	// Steady state produces no further triggers.
	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []model.Trigger{model.SetTargetRunning(false), model.SetTargetRunning(true)}, target.snapshot())
}

func TestRunUnconfiguredTargetsOff(t *testing.T) {
	target := &recordingTarget{}
	m := NewMonitor(true, time.Second, "/sys/class/power_supply", "", "", target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool { return len(target.snapshot()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []model.Trigger{model.SetTargetRunning(false)}, target.snapshot())
}
