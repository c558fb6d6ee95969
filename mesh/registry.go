// Package mesh is the data model for peer membership (C10).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mesh

import (
	"sync"
	"time"

	"github.com/fastbus/fastbus/hk"
)

// Registry is the process-wide view of mesh membership: every PeerContext
// ever announced, refreshed in place on re-announce (§3: "a new
// announcement with the same mesh_id fully replaces the old"). Socket
// managers (C6) each keep their own admitted subset; this is the superset
// they and the discovery collaborator both read from.
type Registry struct {
	mu   sync.RWMutex
	byID map[uint64]*PeerContext
	bus  *EventBus
}

const hkName = "mesh.inactive-sweep"

// NewRegistry wires itself to bus so that PeerJoined/PeerLeft events from the
// external discovery collaborator keep it current, and schedules an
// inactive-peer sweep via hk using inactiveAfter (§6 inactive_threshold).
func NewRegistry(bus *EventBus, inactiveAfter time.Duration) *Registry {
	r := &Registry{byID: make(map[uint64]*PeerContext), bus: bus}
	bus.OnPeerJoined(func(e PeerJoined) { r.Upsert(e.Peer) })
	bus.OnPeerLeft(func(e PeerLeft) { r.Remove(e.Peer.MeshID) })
	if inactiveAfter > 0 {
		hk.Reg(hkName, func() time.Duration {
			r.sweep(inactiveAfter)
			return inactiveAfter
		}, inactiveAfter)
	}
	return r
}

// Upsert replaces any prior PeerContext with the same MeshID in full.
func (r *Registry) Upsert(p *PeerContext) {
	if p.LastSeen.IsZero() {
		p.LastSeen = time.Now()
	}
	r.mu.Lock()
	r.byID[p.MeshID] = p
	r.mu.Unlock()
}

func (r *Registry) Remove(meshID uint64) {
	r.mu.Lock()
	delete(r.byID, meshID)
	r.mu.Unlock()
}

func (r *Registry) Get(meshID uint64) (*PeerContext, bool) {
	r.mu.RLock()
	p, ok := r.byID[meshID]
	r.mu.RUnlock()
	return p, ok
}

func (r *Registry) Range(f func(*PeerContext) bool) {
	r.mu.RLock()
	snapshot := make([]*PeerContext, 0, len(r.byID))
	for _, p := range r.byID {
		snapshot = append(snapshot, p)
	}
	r.mu.RUnlock()
	for _, p := range snapshot {
		if !f(p) {
			return
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// sweep drops peers advisory-stale by more than inactiveAfter; this is a
// registry-level hygiene pass, independent of (and more lenient than) any
// per-scope connection the socket managers tear down on an explicit
// PeerLeft.
func (r *Registry) sweep(inactiveAfter time.Duration) {
	cutoff := time.Now().Add(-inactiveAfter)
	var stale []uint64
	r.mu.RLock()
	for id, p := range r.byID {
		if !p.IsSelf && p.LastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()
	if len(stale) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range stale {
		delete(r.byID, id)
	}
	r.mu.Unlock()
}
