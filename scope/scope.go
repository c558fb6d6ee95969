// Package scope implements the scatter-gather command scope (C7) and the
// dispatcher façade (C11) that exposes the four preconfigured scopes.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package scope

import (
	"context"
	"time"

	"github.com/fastbus/fastbus/cmn/cos"
	"github.com/fastbus/fastbus/cmn/nlog"
	"github.com/fastbus/fastbus/codec"
	"github.com/fastbus/fastbus/mesh"
	"github.com/fastbus/fastbus/reply"
	"github.com/fastbus/fastbus/topic"
	"github.com/fastbus/fastbus/transport"
)

// Command is any request type the caller can scatter; TypeName is what
// gets hashed into the wire topic (§2 C2, §6).
type Command interface {
	TypeName() string
}

// OnError is invoked per response that fails or times out. When supplied,
// the failure is absorbed and nothing is yielded for that response (§4.5
// gather); when nil, Stream skips the response while StreamResult yields an
// Item carrying the error, since a bare value channel has no room for one.
type OnError func(err error, peer *mesh.PeerContext)

// Item wraps one gathered response alongside the peer it came from and any
// error, the "stream_result" surface of §4.5.
type Item[Resp any] struct {
	Value Resp
	Err   error
	Peer  *mesh.PeerContext
}

type gatherEntry struct {
	pending *reply.Pending
	peer    *mesh.PeerContext
}

// Scope is one of the four wire-ups (Local/Machine/Cluster/Network), each
// pointed at its own socket manager but sharing the process-wide reply
// router and pending-reply pool (§2 C11, §4.5).
type Scope struct {
	manager *transport.Manager
	pool    *reply.Pool
	router  *reply.Router
	codec   codec.Codec
}

func New(manager *transport.Manager, pool *reply.Pool, router *reply.Router, c codec.Codec) *Scope {
	return &Scope{manager: manager, pool: pool, router: router, codec: c}
}

// scatter is §4.5 steps 1-4: hash the topic, snapshot eligible peers,
// encode the command once, then rent+register+schedule one pending reply
// per peer. The returned slice preserves scatter order for gather (§8).
// Every scatter is tagged with a short trace id (cos.GenTraceID) so its log
// lines - the scatter itself, any later timeout fault - can be correlated
// under one id, rather than the one wire correlation id per peer a scatter
// spans.
func (s *Scope) scatter(cmd Command) (traceID string, entries []gatherEntry, err error) {
	traceID = cos.GenTraceID()
	t := topic.HashString(cmd.TypeName())
	peers := s.manager.Iter(s.manager.Count(), t)
	if len(peers) == 0 {
		return traceID, nil, nil
	}
	payload, err := s.codec.Encode(cmd)
	if err != nil {
		return traceID, nil, cos.WrapEncode("%v", err)
	}
	entries = make([]gatherEntry, 0, len(peers))
	for _, peer := range peers {
		pending := s.pool.Rent()
		s.router.Register(pending)
		s.manager.Schedule(transport.ScheduleCommand{
			MeshID:        peer.MeshID,
			Topic:         t,
			CorrelationID: pending.CorrelationID(),
			Payload:       payload,
		})
		entries = append(entries, gatherEntry{pending: pending, peer: peer})
	}
	nlog.Infof("[%s] scatter %s: %d peer(s)", traceID, cmd.TypeName(), len(entries))
	return traceID, entries, nil
}

// release unregisters and returns every rented pending reply exactly once,
// on every exit path of gather (§8 pool conservation).
func (s *Scope) release(entries []gatherEntry) {
	for _, e := range entries {
		s.router.Unregister(e.pending)
		s.pool.Return(e.pending)
	}
}

// fault completes every still-pending entry with TimedOut (§4.5 step 6).
func fault(traceID string, entries []gatherEntry) {
	var timedOut int
	for _, e := range entries {
		if !e.pending.IsCompleted() {
			e.pending.SetError(cos.ErrTimedOut)
			timedOut++
		}
	}
	if timedOut > 0 {
		nlog.Warningf("[%s] gather deadline: %d of %d response(s) timed out", traceID, timedOut, len(entries))
	}
}

// withDeadline links timeout (and parent's own cancellation) to a single
// fault-the-scatter timer (§4.5 step 5, §5 cancellation: "timeout is
// implemented the same way via a single linked timer per scatter"). The
// returned cleanup must be deferred by the caller.
func withDeadline(parent context.Context, traceID string, entries []gatherEntry, timeout time.Duration) func() {
	ctx, cancel := context.WithTimeout(parent, timeout)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fault(traceID, entries)
		case <-done:
		}
	}()
	return func() {
		close(done)
		cancel()
	}
}

// Stream yields decoded responses in scatter order (§8 scatter order). An
// empty reply is skipped as "no handler" (§4.5, §8 ordering with empties).
// A bare Resp channel has no room for a failed or timed-out response: with
// onError nil, Stream just omits that slot from the stream rather than
// surfacing it. Callers that need to observe per-response failures (e.g.
// TimedOut) must either supply onError or use StreamResult, whose Item
// carries Err explicitly.
func Stream[Resp any](ctx context.Context, s *Scope, cmd Command, timeout time.Duration, onError OnError) <-chan Resp {
	out := make(chan Resp)
	traceID, entries, err := s.scatter(cmd)
	if err != nil || len(entries) == 0 {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		cleanup := withDeadline(ctx, traceID, entries, timeout)
		defer cleanup()
		defer s.release(entries)
		for _, e := range entries {
			payload, perr := e.pending.Await(ctx)
			if perr != nil {
				if onError != nil {
					onError(perr, e.peer)
				}
				continue
			}
			if len(payload) == 0 {
				continue
			}
			var resp Resp
			if derr := s.codec.Decode(payload, &resp); derr != nil {
				if onError != nil {
					onError(cos.WrapDecode("%v", derr), e.peer)
				}
				continue
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StreamResult yields one Item per scattered peer in scatter order; unlike
// Stream it always makes failures visible to the caller (unless onError is
// supplied, in which case they're absorbed there instead). An empty reply
// is still skipped, never wrapped into a zero-value success (§8).
func StreamResult[Resp any](ctx context.Context, s *Scope, cmd Command, timeout time.Duration, onError OnError) <-chan Item[Resp] {
	out := make(chan Item[Resp])
	traceID, entries, err := s.scatter(cmd)
	if err != nil || len(entries) == 0 {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		cleanup := withDeadline(ctx, traceID, entries, timeout)
		defer cleanup()
		defer s.release(entries)
		for _, e := range entries {
			payload, perr := e.pending.Await(ctx)
			if perr != nil {
				if onError != nil {
					onError(perr, e.peer)
					continue
				}
				if !emit(ctx, out, Item[Resp]{Err: perr, Peer: e.peer}) {
					return
				}
				continue
			}
			if len(payload) == 0 {
				continue
			}
			var resp Resp
			if derr := s.codec.Decode(payload, &resp); derr != nil {
				wrapped := cos.WrapDecode("%v", derr)
				if onError != nil {
					onError(wrapped, e.peer)
					continue
				}
				if !emit(ctx, out, Item[Resp]{Err: wrapped, Peer: e.peer}) {
					return
				}
				continue
			}
			if !emit(ctx, out, Item[Resp]{Value: resp, Peer: e.peer}) {
				return
			}
		}
	}()
	return out
}

func emit[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Send scatters cmd and awaits every acknowledgement without decoding any
// payload, absorbing timeouts rather than surfacing them (§4.5 gather:
// "send absorbs timeouts and continues").
func Send(ctx context.Context, s *Scope, cmd Command, timeout time.Duration) error {
	traceID, entries, err := s.scatter(cmd)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	cleanup := withDeadline(ctx, traceID, entries, timeout)
	defer cleanup()
	defer s.release(entries)
	for _, e := range entries {
		_, _ = e.pending.Await(ctx)
	}
	return nil
}
