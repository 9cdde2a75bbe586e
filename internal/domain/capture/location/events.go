// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package location

import "github.com/ManuGH/dashcam/internal/domain/capture/model"

// Event is a completion produced by a correlator goroutine. It must be
// handed back through Correlator.Apply on the run loop.
type Event interface {
	apply(c *Correlator)
}

type fixArrived struct {
	gen uint64
	fix model.Fix
}

func (e fixArrived) apply(c *Correlator) { c.onFix(e.gen, e.fix) }

type streamEnded struct {
	gen uint64
}

func (e streamEnded) apply(c *Correlator) { c.onStreamEnded(e.gen) }

type geocoded struct {
	id      uint64
	address model.Address
	err     error
}

func (e geocoded) apply(c *Correlator) { c.onGeocoded(e.id, e.address, e.err) }
