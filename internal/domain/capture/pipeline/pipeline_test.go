// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/camera"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu    sync.Mutex
	steps []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.steps...)
}

type fakeSession struct {
	j        *journal
	path     string
	startErr error
	done     chan struct{}
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.j.add("start:" + filepath.Base(s.path))
	return os.WriteFile(s.path, []byte("mp4"), 0o600)
}

func (s *fakeSession) Quiesce(context.Context) error {
	s.j.add("quiesce:" + filepath.Base(s.path))
	return nil
}

func (s *fakeSession) Finalize(context.Context) error { return nil }
func (s *fakeSession) Abort()                         { s.j.add("abort:" + filepath.Base(s.path)) }

type fakeEncoder struct {
	j         *journal
	specs     []ports.EncodeSpec
	failStart map[string]error
}

func (e *fakeEncoder) Prepare(_ context.Context, spec ports.EncodeSpec) (ports.EncodeSession, error) {
	e.specs = append(e.specs, spec)
	return &fakeSession{j: e.j, path: spec.OutputPath, startErr: e.failStart[filepath.Base(spec.OutputPath)], done: make(chan struct{})}, nil
}

type fixedProber struct {
	d   time.Duration
	err error
}

func (p fixedProber) Duration(context.Context, string) (time.Duration, error) { return p.d, p.err }

type heldCamera struct{ h *camera.Handle }

func (c heldCamera) Current() (*camera.Handle, bool) { return c.h, c.h != nil }

func newTestPipeline(t *testing.T, held bool) (*Pipeline, *fakeEncoder, *journal, string) {
	t.Helper()
	dir := t.TempDir()
	j := &journal{}
	enc := &fakeEncoder{j: j, failStart: map[string]error{}}
	var h *camera.Handle
	if held {
		h = &camera.Handle{ID: "cam", Device: ports.DeviceInfo{Path: "/dev/video0"}, Size: ports.Size{Width: 1024, Height: 768}}
	}
	p := New(enc, fixedProber{d: 42 * time.Second}, heldCamera{h: h}, Config{VideoBitrate: 10_000_000, FrameRate: 30, DeviceRotation: 90})
	p.Remove = func(path string) error {
		j.add("remove:" + filepath.Base(path))
		return os.Remove(path)
	}
	return p, enc, j, dir
}

func session(dir, name string) model.RecordingSession {
	return model.RecordingSession{ID: name, FilePath: filepath.Join(dir, name), StartedAt: time.Now(), Mode: model.ModeContinuous}
}

func TestStartRequiresCamera(t *testing.T) {
	p, _, _, dir := newTestPipeline(t, false)
	err := p.Start(context.Background(), session(dir, "a.mp4"))
	require.ErrorIs(t, err, model.ErrPipelineConfig)
	assert.False(t, p.Active())
}

func TestStartStopMeasuresDuration(t *testing.T) {
	p, enc, _, dir := newTestPipeline(t, true)
	require.NoError(t, p.Start(context.Background(), session(dir, "a.mp4")))
	assert.True(t, p.Active())
	assert.Equal(t, 0, enc.specs[0].OrientationHint, "rotation 90 maps to 0 on the default table")
	assert.Equal(t, "/dev/video0", enc.specs[0].DevicePath)

	require.ErrorIs(t, p.Start(context.Background(), session(dir, "b.mp4")), model.ErrPipelineBusy)

	seg, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, seg.Duration)
	assert.Equal(t, "a.mp4", seg.Session.ID)
	assert.False(t, p.Active())

	_, err = p.Stop(context.Background())
	assert.ErrorIs(t, err, model.ErrPipelineIdle)
}

func TestExitedTracksLiveSession(t *testing.T) {
	p, _, _, dir := newTestPipeline(t, true)
	assert.Nil(t, p.Exited())

	require.NoError(t, p.Start(context.Background(), session(dir, "a.mp4")))
	exited := p.Exited()
	require.NotNil(t, exited)
	select {
	case <-exited:
		t.Fatal("live encoder reported as exited")
	default:
	}

	_, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p.Exited())
}

func TestStartFailureAborts(t *testing.T) {
	p, enc, j, dir := newTestPipeline(t, true)
	enc.failStart["a.mp4"] = errors.New("device busy")

	err := p.Start(context.Background(), session(dir, "a.mp4"))
	require.ErrorIs(t, err, model.ErrPipelineConfig)
	assert.False(t, p.Active())
	assert.Contains(t, j.all(), "abort:a.mp4")
}

func TestRotateIdleFails(t *testing.T) {
	p, _, _, dir := newTestPipeline(t, true)
	_, err := p.Rotate(context.Background(), session(dir, "a.mp4"))
	assert.ErrorIs(t, err, model.ErrPipelineIdle)
}

func TestRotationDeletesPreviousOnlyAfterNextStarts(t *testing.T) {
	p, _, j, dir := newTestPipeline(t, true)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, session(dir, "s0.mp4")))
	for _, next := range []string{"s1.mp4", "s2.mp4", "s3.mp4"} {
		_, err := p.Rotate(ctx, session(dir, next))
		require.NoError(t, err)
	}
	seg, err := p.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3.mp4", seg.Session.ID)
	p.DiscardRotated()

	assert.Equal(t, []string{
		"start:s0.mp4",
		"quiesce:s0.mp4", "start:s1.mp4",
		"quiesce:s1.mp4", "start:s2.mp4", "remove:s0.mp4",
		"quiesce:s2.mp4", "start:s3.mp4", "remove:s1.mp4",
		"quiesce:s3.mp4",
		"remove:s2.mp4",
	}, j.all())

	for _, gone := range []string{"s0.mp4", "s1.mp4", "s2.mp4"} {
		assert.NoFileExists(t, filepath.Join(dir, gone))
	}
	assert.FileExists(t, filepath.Join(dir, "s3.mp4"))
}

func TestRotateStartFailureReturnsFinalizedSegment(t *testing.T) {
	p, enc, j, dir := newTestPipeline(t, true)
	ctx := context.Background()
	require.NoError(t, p.Start(ctx, session(dir, "s0.mp4")))
	enc.failStart["s1.mp4"] = errors.New("encoder gone")

	seg, err := p.Rotate(ctx, session(dir, "s1.mp4"))
	require.ErrorIs(t, err, model.ErrPipelineConfig)
	assert.Equal(t, "s0.mp4", seg.Session.ID)
	assert.False(t, p.Active())
	assert.NotContains(t, j.all(), "remove:s0.mp4")
}

func TestProbeFailureFallsBackToWallClock(t *testing.T) {
	p, _, _, dir := newTestPipeline(t, true)
	p.prober = fixedProber{err: errors.New("ffprobe missing")}
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	p.Now = func() time.Time { return start.Add(42 * time.Second) }

	s := session(dir, "a.mp4")
	s.StartedAt = start
	require.NoError(t, p.Start(context.Background(), s))
	seg, err := p.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, seg.Duration)
}

func TestOrientationHint(t *testing.T) {
	assert.Equal(t, 90, OrientationHint(false, 0))
	assert.Equal(t, 270, OrientationHint(false, 180))
	assert.Equal(t, 270, OrientationHint(true, 0))
	assert.Equal(t, 0, OrientationHint(true, 270))
}

func TestPathAllocatorIsCollisionFree(t *testing.T) {
	a := NewPathAllocator("/rec")
	now := time.UnixMilli(1_700_000_000_000)
	first := a.Next(now)
	second := a.Next(now)
	assert.Equal(t, "/rec/1700000000000.mp4", first)
	assert.Equal(t, "/rec/1700000000001.mp4", second)
	assert.Equal(t, "/rec/1700000000002.mp4", a.Next(now.Add(-time.Second)))
}
