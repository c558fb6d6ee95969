// Package hk provides a mechanism for registering cleanup functions which are
// invoked at specified intervals. It backs the pending-reply pool's
// background trimmer (§4.2) and the peer registry's inactive-peer sweep
// (§6 inactive_threshold).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
)

const NameSuffix = ".hk"

// CleanupFunc runs at its registered interval and returns the interval to
// wait before running again; returning 0 keeps the previous interval,
// returning a negative value unregisters it.
type CleanupFunc func() time.Duration

type request struct {
	name     string
	f        CleanupFunc
	interval time.Duration
	due      time.Time
	index    int
}

type timerHeap []*request

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *timerHeap) Push(x any)         { r := x.(*request); r.index = len(*h); *h = append(*h, r) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// Housekeeper runs one goroutine that fires every registered CleanupFunc no
// earlier than its due time; like the teacher's stream collector, callers
// only ever interact with it through the registration API, never the heap.
type Housekeeper struct {
	mu       sync.Mutex
	byName   map[string]*request
	q        timerHeap
	wake     chan struct{}
	stopCh   *cos.StopCh
	started  chan struct{}
	onceStop sync.Once
}

var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*request),
		wake:    make(chan struct{}, 1),
		stopCh:  cos.NewStopCh(),
		started: make(chan struct{}),
	}
}

func (*Housekeeper) Name() string { return "housekeeper" }

// Reg schedules f to run every interval, starting after interval elapses.
// Re-registering an existing name replaces it.
func Reg(name string, f CleanupFunc, interval time.Duration) { DefaultHK.Reg(name, f, interval) }

func (hk *Housekeeper) Reg(name string, f CleanupFunc, interval time.Duration) {
	hk.mu.Lock()
	if old, ok := hk.byName[name]; ok {
		hk.remove(old)
	}
	r := &request{name: name, f: f, interval: interval, due: time.Now().Add(interval)}
	hk.byName[name] = r
	heap.Push(&hk.q, r)
	hk.mu.Unlock()
	hk.nudge()
}

// Unreg stops name from firing again; idempotent.
func Unreg(name string) { DefaultHK.Unreg(name) }

func (hk *Housekeeper) Unreg(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if r, ok := hk.byName[name]; ok {
		hk.remove(r)
	}
}

// under lock
func (hk *Housekeeper) remove(r *request) {
	if r.index >= 0 && r.index < len(hk.q) && hk.q[r.index] == r {
		heap.Remove(&hk.q, r.index)
	}
	delete(hk.byName, r.name)
}

func (hk *Housekeeper) nudge() {
	select {
	case hk.wake <- struct{}{}:
	default:
	}
}

// Run is the goroutine loop; callers do `go hk.Run()` once at startup.
func (hk *Housekeeper) Run() error {
	close(hk.started)
	for {
		hk.mu.Lock()
		var wait time.Duration
		if len(hk.q) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(hk.q[0].due)
			if wait < 0 {
				wait = 0
			}
		}
		hk.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-t.C:
			hk.fireDue()
		case <-hk.wake:
			t.Stop()
		case <-hk.stopCh.Listen():
			t.Stop()
			return nil
		}
	}
}

func (hk *Housekeeper) fireDue() {
	now := time.Now()
	var due []*request
	hk.mu.Lock()
	for len(hk.q) > 0 && !hk.q[0].due.After(now) {
		r := heap.Pop(&hk.q).(*request)
		delete(hk.byName, r.name)
		due = append(due, r)
	}
	hk.mu.Unlock()

	for _, r := range due {
		next := r.f()
		switch {
		case next < 0:
			// unregistered itself
		case next == 0:
			hk.Reg(r.name, r.f, r.interval)
		default:
			hk.Reg(r.name, r.f, next)
		}
	}
}

func (hk *Housekeeper) Stop(err error) {
	if err != nil {
		nlog.Warningf("housekeeper stopping: %v", err)
	}
	hk.onceStop.Do(hk.stopCh.Close)
}

// WaitStarted blocks until Run has been entered at least once; used by tests
// that register work before the goroutine has scheduled its first wakeup.
func WaitStarted() { <-DefaultHK.started }

// TestInit resets DefaultHK for a fresh test run.
func TestInit() { DefaultHK = New() }
