// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package location

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type chanProvider struct {
	calls atomic.Int32
	ch    chan model.Fix
}

func (p *chanProvider) Fixes(ctx context.Context) (<-chan model.Fix, error) {
	p.calls.Add(1)
	return p.ch, nil
}

type fakeGeocoder struct {
	calls atomic.Int32
	addr  model.Address
	err   error
}

func (g *fakeGeocoder) Lookup(context.Context, model.LatLng) (model.Address, error) {
	g.calls.Add(1)
	return g.addr, g.err
}

type update struct {
	kind string
	id   int64
	val  string
}

type recordingStore struct {
	mu      sync.Mutex
	updates []update
}

func (s *recordingStore) UpdateAddress(_ context.Context, id int64, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{"address", id, address})
	return nil
}

func (s *recordingStore) UpdateCoordinates(_ context.Context, id int64, at model.LatLng) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{"coordinates", id, at.String()})
	return nil
}

func (s *recordingStore) all() []update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]update(nil), s.updates...)
}

type harness struct {
	c        *Correlator
	provider *chanProvider
	geocoder *fakeGeocoder
	store    *recordingStore
	events   chan Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		provider: &chanProvider{ch: make(chan model.Fix)},
		geocoder: &fakeGeocoder{addr: model.Address{Street: "King Fahd Rd", Locality: "Dhahran"}},
		store:    &recordingStore{},
		events:   make(chan Event, 16),
	}
	h.c = New(h.provider, h.geocoder, h.store, DefaultConfig())
	h.c.Open(context.Background(), func(ctx context.Context, ev Event) {
		select {
		case h.events <- ev:
		case <-ctx.Done():
		}
	})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) send(t *testing.T, accuracy float64) {
	t.Helper()
	fix := model.Fix{Coordinates: model.LatLng{Lat: 26.3, Lng: 50.1}, AccuracyM: accuracy, At: time.Now()}
	select {
	case h.provider.ch <- fix:
	case <-time.After(time.Second):
		t.Fatal("fix stream not consuming")
	}
	h.pump(t)
}

func (h *harness) pump(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		h.c.Apply(ev)
	case <-time.After(time.Second):
		t.Fatal("no correlator event")
	}
}

func TestAccuracyGateAcceptsFourthFixAfterThreeRejections(t *testing.T) {
	h := newHarness(t)
	handle := h.c.RequestFix()

	for _, acc := range []float64{50, 40, 30} {
		h.send(t, acc)
		at, _ := h.c.Snapshot(handle)
		assert.Nil(t, at, "fix at %vm must be rejected", acc)
	}
	h.send(t, 25)

	at, addr := h.c.Snapshot(handle)
	require.NotNil(t, at)
	assert.Equal(t, "26.300000,50.100000", *addr)

	h.pump(t)
	_, addr = h.c.Snapshot(handle)
	assert.Equal(t, "King Fahd Rd, Dhahran", *addr)
	assert.Equal(t, int32(1), h.geocoder.calls.Load())

	h.c.Bind(handle, 7)
	assert.Equal(t, 0, h.c.Pending())
	assert.Empty(t, h.store.all(), "unbound enrichment is applied at insert time")
}

func TestBoundRequestUpdatesRecord(t *testing.T) {
	h := newHarness(t)
	handle := h.c.RequestFix()
	h.c.Bind(handle, 7)
	require.Equal(t, 1, h.c.Pending())

	h.send(t, 5)
	h.pump(t)

	assert.Equal(t, []update{
		{"coordinates", 7, "26.300000,50.100000"},
		{"address", 7, "26.300000,50.100000"},
		{"address", 7, "King Fahd Rd, Dhahran"},
	}, h.store.all())
	assert.Equal(t, 0, h.c.Pending())
}

func TestGeocodeFailureKeepsPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.geocoder.err = errors.New("quota")
	handle := h.c.RequestFix()
	h.c.Bind(handle, 9)

	h.send(t, 5)
	h.pump(t)

	assert.Equal(t, []update{
		{"coordinates", 9, "26.300000,50.100000"},
		{"address", 9, "26.300000,50.100000"},
	}, h.store.all())
	assert.Equal(t, 0, h.c.Pending())
}

func TestQueuedRequestsShareOneStreamAndLookup(t *testing.T) {
	h := newHarness(t)
	first := h.c.RequestFix()
	h.c.Bind(first, 1)
	second := h.c.RequestFix()
	require.Equal(t, 2, h.c.Pending())
	assert.Equal(t, int32(1), h.provider.calls.Load())

	h.send(t, 5)
	h.pump(t)
	assert.Equal(t, int32(1), h.geocoder.calls.Load())

	_, addr := h.c.Snapshot(second)
	require.NotNil(t, addr)
	assert.Equal(t, "King Fahd Rd, Dhahran", *addr)
	assert.Equal(t, 1, h.c.Pending(), "only the unbound request remains")
}

func TestRequestFixSupersedesUnbound(t *testing.T) {
	h := newHarness(t)
	old := h.c.RequestFix()
	_ = h.c.RequestFix()
	assert.Equal(t, 1, h.c.Pending())
	at, _ := h.c.Snapshot(old)
	assert.Nil(t, at)
}

func TestStrayFixIgnored(t *testing.T) {
	h := newHarness(t)
	handle := h.c.RequestFix()
	h.c.Apply(fixArrived{gen: 99, fix: model.Fix{AccuracyM: 1}})
	at, _ := h.c.Snapshot(handle)
	assert.Nil(t, at)
}

func TestRecoverRequeuesNullAddressRecords(t *testing.T) {
	h := newHarness(t)
	known := "Somewhere"
	coords := model.LatLng{Lat: 1, Lng: 2}
	h.c.Recover([]model.VideoRecord{
		{ID: 1},
		{ID: 2, Coordinates: &coords},
		{ID: 3, Address: &known},
	})
	assert.Equal(t, 2, h.c.Pending())
	assert.Equal(t, int32(1), h.provider.calls.Load())

	h.pump(t)
	assert.Equal(t, []update{
		{"address", 2, "1.000000,2.000000"},
		{"address", 2, "King Fahd Rd, Dhahran"},
	}, h.store.all())
	assert.Equal(t, 1, h.c.Pending())

	h.c.Recover([]model.VideoRecord{{ID: 1}})
	assert.Equal(t, 1, h.c.Pending(), "already tracked records are not duplicated")
}

func TestCloseStopsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(&chanProvider{ch: make(chan model.Fix)}, nil, &recordingStore{}, DefaultConfig())
	c.Open(context.Background(), func(ctx context.Context, ev Event) {})
	c.RequestFix()
	c.Close()
}
