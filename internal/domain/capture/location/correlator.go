// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package location correlates asynchronously acquired fixes and addresses
// with the recordings that need them.
package location

import (
	"context"
	"slices"
	"sync"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
	"github.com/ManuGH/dashcam/internal/metrics"
	"github.com/rs/zerolog"
)

// Handle identifies a pending location request.
type Handle int64

// Config tunes the accuracy gate.
type Config struct {
	AccuracyGateM float64
	MaxRejections int
}

func DefaultConfig() Config {
	return Config{AccuracyGateM: 20, MaxRejections: 3}
}

// Post delivers an Event to the owning run loop. It must give up when ctx is done.
type Post func(ctx context.Context, ev Event)

type request struct {
	handle   Handle
	recordID int64
	fix      *model.Fix
	address  *string
	// geocoding is set while a lookup covering this request is in flight.
	geocoding bool
	geocoded  bool
}

func (r *request) bound() bool { return r.recordID != 0 }

// Correlator is not safe for concurrent use. Every method except Close must
// be called from the run loop that receives its Events.
type Correlator struct {
	provider ports.FixProvider
	geocoder ports.Geocoder
	store    ports.RecordUpdater
	cfg      Config
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	post   Post
	wg     sync.WaitGroup

	queue      []*request
	nextHandle Handle

	streamGen    uint64
	streamCancel context.CancelFunc
	attempts     int

	nextLookup uint64
	lookups    map[uint64][]*request
}

// New builds a correlator. A nil provider or geocoder disables that stage.
func New(provider ports.FixProvider, geocoder ports.Geocoder, store ports.RecordUpdater, cfg Config) *Correlator {
	return &Correlator{
		provider: provider,
		geocoder: geocoder,
		store:    store,
		cfg:      cfg,
		logger:   log.WithComponent("location"),
		lookups:  make(map[uint64][]*request),
	}
}

// Open binds the correlator to the run loop's lifetime and event sink.
func (c *Correlator) Open(ctx context.Context, post Post) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.post = post
}

// Close stops every fix stream and lookup and waits for their goroutines.
func (c *Correlator) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.streamCancel = nil
}

// RequestFix queues an unbound request for the recording that is about to
// complete. Any earlier unbound request is superseded.
func (c *Correlator) RequestFix() Handle {
	c.queue = slices.DeleteFunc(c.queue, func(r *request) bool {
		if !r.bound() {
			c.logger.Debug().Int64("handle", int64(r.handle)).Msg("superseding unbound location request")
			return true
		}
		return false
	})

	c.nextHandle++
	r := &request{handle: c.nextHandle}
	c.queue = append(c.queue, r)
	c.ensureStream()
	return r.handle
}

// Cancel forgets a request. Unknown handles are ignored.
func (c *Correlator) Cancel(h Handle) {
	c.queue = slices.DeleteFunc(c.queue, func(r *request) bool { return r.handle == h })
	c.stopStreamIfIdle()
}

// Snapshot returns what is known for h: the accepted fix and the best
// address label (geocoded, or the coordinate placeholder).
func (c *Correlator) Snapshot(h Handle) (*model.LatLng, *string) {
	r := c.find(h)
	if r == nil || r.fix == nil {
		return nil, nil
	}
	at := r.fix.Coordinates
	if r.address != nil {
		addr := *r.address
		return &at, &addr
	}
	placeholder := at.String()
	return &at, &placeholder
}

// Bind associates h with a persisted record. A request whose enrichment is
// already complete is dropped; otherwise later results update the record.
func (c *Correlator) Bind(h Handle, recordID int64) {
	r := c.find(h)
	if r == nil {
		return
	}
	r.recordID = recordID
	if r.fix != nil && r.geocoded {
		c.remove(r)
		return
	}
	c.ensureStream()
}

// Recover re-queues enrichment for records that never received an address.
func (c *Correlator) Recover(records []model.VideoRecord) {
	for _, rec := range records {
		if rec.Address != nil || c.tracked(rec.ID) {
			continue
		}
		c.nextHandle++
		r := &request{handle: c.nextHandle, recordID: rec.ID}
		c.queue = append(c.queue, r)
		if rec.Coordinates != nil {
			at := *rec.Coordinates
			r.fix = &model.Fix{Coordinates: at}
			if err := c.store.UpdateAddress(c.ctx, rec.ID, at.String()); err != nil {
				c.logger.Error().Err(err).Int64(log.FieldRecordID, rec.ID).Msg("restore placeholder address failed")
			}
			c.lookup(at, []*request{r})
		}
	}
	c.ensureStream()
}

// Pending reports the number of queued requests.
func (c *Correlator) Pending() int { return len(c.queue) }

// Apply handles an Event posted by one of the correlator's goroutines.
func (c *Correlator) Apply(ev Event) { ev.apply(c) }

func (c *Correlator) find(h Handle) *request {
	for _, r := range c.queue {
		if r.handle == h {
			return r
		}
	}
	return nil
}

func (c *Correlator) tracked(recordID int64) bool {
	for _, r := range c.queue {
		if r.recordID == recordID {
			return true
		}
	}
	return false
}

func (c *Correlator) remove(target *request) {
	c.queue = slices.DeleteFunc(c.queue, func(r *request) bool { return r == target })
}

func (c *Correlator) awaitingFix() []*request {
	var out []*request
	for _, r := range c.queue {
		if r.fix == nil {
			out = append(out, r)
		}
	}
	return out
}

// ensureStream starts one fix stream when requests are waiting and none runs.
func (c *Correlator) ensureStream() {
	if c.streamCancel != nil || c.provider == nil || c.ctx == nil || len(c.awaitingFix()) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	fixes, err := c.provider.Fixes(ctx)
	if err != nil {
		cancel()
		c.logger.Warn().Err(err).Int("pending", len(c.queue)).Msg("location provider unavailable; requests stay queued")
		return
	}
	c.streamGen++
	c.streamCancel = cancel
	c.attempts = 0
	gen := c.streamGen

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-fixes:
				if !ok {
					c.post(ctx, streamEnded{gen: gen})
					return
				}
				c.post(ctx, fixArrived{gen: gen, fix: fix})
			}
		}
	}()
	c.logger.Debug().Uint64(log.FieldGeneration, gen).Msg("location stream started")
}

func (c *Correlator) stopStream() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	c.attempts = 0
}

func (c *Correlator) stopStreamIfIdle() {
	if len(c.awaitingFix()) == 0 {
		c.stopStream()
	}
}

func (c *Correlator) onFix(gen uint64, fix model.Fix) {
	if gen != c.streamGen || c.streamCancel == nil {
		metrics.ObserveFix("stray")
		return
	}
	waiting := c.awaitingFix()
	if len(waiting) == 0 {
		c.stopStream()
		return
	}

	verdict := "accepted"
	if fix.AccuracyM > c.cfg.AccuracyGateM {
		if c.attempts < c.cfg.MaxRejections {
			c.attempts++
			metrics.ObserveFix("rejected")
			c.logger.Debug().
				Float64(log.FieldAccuracy, fix.AccuracyM).
				Int(log.FieldAttempt, c.attempts).
				Msg("fix rejected by accuracy gate")
			return
		}
		verdict = "forced"
	}
	metrics.ObserveFix(verdict)
	c.stopStream()

	c.logger.Info().
		Float64(log.FieldAccuracy, fix.AccuracyM).
		Str("verdict", verdict).
		Int("requests", len(waiting)).
		Msg("fix accepted")

	placeholder := fix.Coordinates.String()
	for _, r := range waiting {
		f := fix
		r.fix = &f
		if !r.bound() {
			continue
		}
		if err := c.store.UpdateCoordinates(c.ctx, r.recordID, fix.Coordinates); err != nil {
			c.logger.Error().Err(err).Int64(log.FieldRecordID, r.recordID).Msg("update coordinates failed")
		}
		if err := c.store.UpdateAddress(c.ctx, r.recordID, placeholder); err != nil {
			c.logger.Error().Err(err).Int64(log.FieldRecordID, r.recordID).Msg("update placeholder address failed")
		}
	}
	c.lookup(fix.Coordinates, waiting)
}

// lookup issues exactly one reverse geocode for reqs.
func (c *Correlator) lookup(at model.LatLng, reqs []*request) {
	if c.geocoder == nil || c.ctx == nil {
		c.finishLookup(reqs, nil, model.ErrGeocodeFailed)
		return
	}
	c.nextLookup++
	id := c.nextLookup
	c.lookups[id] = reqs
	for _, r := range reqs {
		r.geocoding = true
	}

	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		addr, err := c.geocoder.Lookup(ctx, at)
		c.post(ctx, geocoded{id: id, address: addr, err: err})
	}()
}

func (c *Correlator) onGeocoded(id uint64, addr model.Address, err error) {
	reqs, ok := c.lookups[id]
	if !ok {
		return
	}
	delete(c.lookups, id)
	if err != nil {
		metrics.ObserveGeocode("failed")
		c.logger.Warn().Err(err).Msg("reverse geocode failed; coordinates remain as address")
		c.finishLookup(reqs, nil, err)
		return
	}
	metrics.ObserveGeocode("ok")
	label := addr.String()
	c.finishLookup(reqs, &label, nil)
}

func (c *Correlator) finishLookup(reqs []*request, label *string, err error) {
	for _, r := range reqs {
		r.geocoding = false
		r.geocoded = true
		if c.find(r.handle) == nil {
			continue
		}
		if label != nil {
			l := *label
			r.address = &l
		}
		if !r.bound() {
			continue
		}
		if label != nil {
			if uerr := c.store.UpdateAddress(c.ctx, r.recordID, *label); uerr != nil {
				c.logger.Error().Err(uerr).Int64(log.FieldRecordID, r.recordID).Msg("update address failed")
			}
		}
		c.remove(r)
	}
}

func (c *Correlator) onStreamEnded(gen uint64) {
	if gen != c.streamGen || c.streamCancel == nil {
		return
	}
	c.streamCancel()
	c.streamCancel = nil
	c.logger.Warn().Int("pending", len(c.queue)).Msg("location stream ended before an acceptable fix")
}
