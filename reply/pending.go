// Package reply implements the pending-reply primitive (C4) and its elastic
// pool, plus the reply router (C5) that demultiplexes incoming frames onto
// them by correlation id.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reply

import (
	"context"

	"github.com/fastbus/fastbus/cmn/atomic"
)

// corrSeq is the process-wide monotonic counter behind every correlation id
// (§3); it is never rewound, so a given id is only ever in flight once
// (§8 correlation uniqueness).
var corrSeq atomic.Uint64

// Pending is a single-shot awaitable completion (§4.2): exactly one writer
// among SetResult/SetError may take effect between Reset calls, and exactly
// one reader ever calls Await on a given version.
type Pending struct {
	correlationID uint64
	version       atomic.Uint32
	completed     atomic.Bool
	done          chan struct{}
	result        []byte
	err           error
}

func newPending() *Pending {
	p := &Pending{done: make(chan struct{})}
	p.correlationID = corrSeq.Add(1)
	return p
}

func (p *Pending) CorrelationID() uint64 { return p.correlationID }

// SetResult completes the pending reply with a successful payload. A no-op
// if already completed.
func (p *Pending) SetResult(b []byte) {
	if p.completed.CAS(false, true) {
		p.result = b
		close(p.done)
	}
}

// SetError completes the pending reply with an error (TimedOut, transport
// failure, decode failure). A no-op if already completed.
func (p *Pending) SetError(err error) {
	if p.completed.CAS(false, true) {
		p.err = err
		close(p.done)
	}
}

func (p *Pending) IsCompleted() bool { return p.completed.Load() }

// Await blocks until the pending reply completes or ctx is done, whichever
// comes first. The scope never relies on the latter for its own timeout -
// it drives completion explicitly via SetError(TimedOut) - but Await still
// honors ctx so an abandoned gather enumerator unblocks promptly.
func (p *Pending) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// reset returns the pending reply to the Pending state for reuse by the
// pool and assigns it a fresh correlation id, so a reply frame that arrives
// late for the prior rental finds no registrant in the Router and is
// dropped. It also bumps version, but SetResult and SetError do not check
// version: a caller that still holds this *Pending from the prior rental
// and calls either of them completes the new rental.
// Callers must only reset an instance with no outstanding Await.
func (p *Pending) reset() {
	p.version.Add(1)
	p.completed.Store(false)
	p.result = nil
	p.err = nil
	p.done = make(chan struct{})
	p.correlationID = corrSeq.Add(1)
}
