// Package reply implements the pending-reply primitive (C4) and its elastic
// pool.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reply

import (
	"runtime"
	"sync"
	"time"

	"github.com/fastbus/fastbus/cmn/debug"
	"github.com/fastbus/fastbus/hk"
)

const (
	minTrimInterval = 250 * time.Millisecond
	spinIterations  = 32
)

// PoolConfig configures the elastic pool (§4.2). CoreSize <= MaxSize <=
// BurstMax.
type PoolConfig struct {
	CoreSize int
	MaxSize  int
	BurstMax int
	BurstTTL time.Duration
}

func (c PoolConfig) validate() {
	debug.Assert(c.CoreSize <= c.MaxSize, "core_size must be <= max_size")
	debug.Assert(c.MaxSize <= c.BurstMax, "max_size must be <= burst_max")
}

// Pool is a free list of *Pending plus a live-count ceiling and a
// background trimmer, giving "zero-allocation" rent/return on the common
// path: a handful of concurrently in-flight scatters never touch the
// allocator once the core is warm.
type Pool struct {
	cfg       PoolConfig
	name      string
	mu        sync.Mutex
	cond      *sync.Cond
	idle      []*Pending
	live      int
	lastBurst time.Time
	closed    bool
}

// NewPool pre-warms CoreSize instances and registers a trimmer that runs
// every max(BurstTTL, 250ms) (§4.2).
func NewPool(name string, cfg PoolConfig) *Pool {
	cfg.validate()
	p := &Pool{cfg: cfg, name: name, lastBurst: time.Now()}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < cfg.CoreSize; i++ {
		p.idle = append(p.idle, newPending())
	}
	p.live = cfg.CoreSize

	interval := cfg.BurstTTL
	if interval < minTrimInterval {
		interval = minTrimInterval
	}
	hk.Reg(p.hkName(), p.trim, interval)
	return p
}

func (p *Pool) hkName() string { return "reply-pool." + p.name }

// Rent returns an idle instance if one is available, allocates fresh up to
// BurstMax, or blocks (spin, then park on a condition variable) until a
// concurrent Return frees one (§4.2).
func (p *Pool) Rent() *Pending {
	for i := 0; i < spinIterations; i++ {
		item, needAlloc := p.tryRent()
		if item != nil {
			return item
		}
		if needAlloc {
			return newPending()
		}
		runtime.Gosched()
	}
	p.mu.Lock()
	for {
		if n := len(p.idle); n > 0 {
			item := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return item
		}
		if p.live < p.cfg.BurstMax {
			p.live++
			p.lastBurst = time.Now()
			p.mu.Unlock()
			return newPending()
		}
		p.cond.Wait()
	}
}

// tryRent returns an idle instance if one is available. Otherwise, if live
// is below BurstMax, it reserves a slot (bumping live and lastBurst under
// the lock) and signals needAlloc so the caller constructs the new Pending
// outside the lock.
func (p *Pool) tryRent() (item *Pending, needAlloc bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		item := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return item, false
	}
	if p.live < p.cfg.BurstMax {
		p.live++
		p.lastBurst = time.Now()
		return nil, true
	}
	return nil, false
}

// Return resets item and places it back in the pool, waking one waiter if
// any (§8 pool conservation: every rented Pending is returned exactly once).
func (p *Pool) Return(item *Pending) {
	item.reset()
	p.mu.Lock()
	p.idle = append(p.idle, item)
	p.mu.Unlock()
	p.cond.Signal()
}

// trim runs on the housekeeper (§4.2): if live exceeds MaxSize and no burst
// allocation has happened for BurstTTL, idle instances are discarded down to
// MaxSize. It never reclaims a rented (non-idle) instance.
func (p *Pool) trim() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1
	}
	if p.live <= p.cfg.MaxSize || time.Since(p.lastBurst) < p.cfg.BurstTTL {
		return 0
	}
	excess := p.live - p.cfg.MaxSize
	for excess > 0 && len(p.idle) > 0 {
		n := len(p.idle)
		p.idle = p.idle[:n-1]
		p.live--
		excess--
	}
	return 0
}

// Close stops the background trimmer; outstanding rentals are unaffected.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	hk.Unreg(p.hkName())
}

// LiveCount and IdleCount expose pool occupancy for monitoring (§5
// backpressure).
func (p *Pool) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
