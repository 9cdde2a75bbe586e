// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/dashcam/internal/bus"
	"github.com/ManuGH/dashcam/internal/domain/capture/manager"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/store"
	"github.com/ManuGH/dashcam/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	triggers []model.Trigger
	err      error
}

func (c *fakeController) Submit(_ context.Context, triggers ...model.Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.triggers = append(c.triggers, triggers...)
	return nil
}

func (c *fakeController) Status() manager.Status {
	return manager.Status{State: model.Idle(), Phase: model.PhaseIdle}
}

func (c *fakeController) submitted() []model.Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Trigger(nil), c.triggers...)
}

type apiFixture struct {
	ctrl  *fakeController
	store *store.MemoryStore
	root  string
	bus   *bus.MemoryBus
	h     http.Handler
}

func newAPIFixture(t *testing.T, cfg Config) *apiFixture {
	t.Helper()
	root := t.TempDir()
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	ctrl := &fakeController{}
	lib := library.NewService(st, root, nil, &manager.BusNotifier{Bus: b})
	return &apiFixture{ctrl: ctrl, store: st, root: root, bus: b, h: New(cfg, ctrl, lib, b).Handler()}
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seed(t *testing.T, names ...string) []int64 {
	t.Helper()
	var ids []int64
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(f.root, n), []byte("mp4"), 0o600))
		id, err := f.store.Insert(context.Background(), model.VideoRecord{Title: n, FileName: n, DurationSeconds: 5})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestCaptureTriggers(t *testing.T) {
	f := newAPIFixture(t, Config{})

	for _, path := range []string{"/api/capture/start", "/api/capture/stop", "/api/continuous/enable", "/api/continuous/disable"} {
		rec := f.do(t, http.MethodPost, path, "")
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
	}
	rec := f.do(t, http.MethodPut, "/api/continuous/target", `{"running":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []model.Trigger{
		model.StartUserCapture(),
		model.StopUserCapture(),
		model.EnableContinuousCapture(),
		model.DisableContinuousCapture(),
		model.SetTargetRunning(true),
	}, f.ctrl.submitted())

	rec = f.do(t, http.MethodPut, "/api/continuous/target", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/continuous/target", `{"running":true,"extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureStateAndStopped(t *testing.T) {
	f := newAPIFixture(t, Config{})
	rec := f.do(t, http.MethodGet, "/api/capture/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "idle", st["phase"])

	f.ctrl.err = manager.ErrStopped
	rec = f.do(t, http.MethodPost, "/api/capture/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecordingsEndpoints(t *testing.T) {
	f := newAPIFixture(t, Config{})
	ids := f.seed(t, "a.mp4", "b.mp4", "c.mp4")

	rec := f.do(t, http.MethodGet, "/api/recordings?page=0&size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list recordingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Recordings, 2)
	assert.Equal(t, "a.mp4", list.Recordings[0].FileName)

	rec = f.do(t, http.MethodPatch, "/api/recordings/"+itoa(ids[0]), `{"title":"Bridge"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	got, err := f.store.Get(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Bridge", got.Title)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/recordings/999", `{"title":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/api/recordings/"+itoa(ids[0]), `{"title":" "}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/api/recordings/abc", `{"title":"x"}`).Code)

	rec = f.do(t, http.MethodPost, "/api/recordings/submit", `{"ids":[`+itoa(ids[1])+`]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/recordings?submitted=true", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Recordings, 1)
	assert.Equal(t, ids[1], list.Recordings[0].ID)

	require.NoError(t, os.Remove(filepath.Join(f.root, "c.mp4")))
	rec = f.do(t, http.MethodGet, "/api/recordings/missing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"file_name":"c.mp4"`)

	rec = f.do(t, http.MethodDelete, "/api/recordings", `{"ids":[`+itoa(ids[0])+`,`+itoa(ids[2])+`]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoFileExists(t, filepath.Join(f.root, "a.mp4"))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/recordings", `{"ids":[]}`).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/recordings?size=x", "").Code)
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t, Config{RateLimitPerMin: 2})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/capture/state", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/capture/state", "").Code)
	rec := f.do(t, http.MethodGet, "/api/capture/state", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestMetricsAndRequestID(t *testing.T) {
	f := newAPIFixture(t, Config{})
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEventStream(t *testing.T) {
	f := newAPIFixture(t, Config{Heartbeat: time.Hour})
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	f.bus.PublishLossy(bus.TopicNotices, model.Notice{Kind: model.NoticeCaptureStarted, Message: "recording"})
	assert.Equal(t, "event: notice\n", readEventLine(t, rd))
	data, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, `"kind":"capture_started"`)

	f.bus.PublishLossy(bus.TopicRecordingsChanged, struct{}{})
	assert.Equal(t, "event: recordings_changed\n", readEventLine(t, rd))
}

func readEventLine(t *testing.T, rd *bufio.Reader) string {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			return line
		}
	}
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
