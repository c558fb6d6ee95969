// Package handler implements the handler registry (C8): a topic-hash-keyed
// table of dispatch closures built once at startup from an explicit list of
// (command type, handler) pairs (§9: replacing reflection-based scanning
// with compile-time registration).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package handler

import (
	"context"

	"github.com/fastbus/fastbus/codec"
	"github.com/fastbus/fastbus/topic"
)

// DispatchFunc decodes payload, runs the handler, and encodes the result
// (or returns nil for a void command, §3 "Handler entry").
type DispatchFunc func(ctx context.Context, payload []byte) ([]byte, error)

// VoidHandler processes a command with no reply payload.
type VoidHandler[Req any] interface {
	Handle(ctx context.Context, req *Req) error
}

// ValueHandler processes a command and produces a typed response.
type ValueHandler[Req, Resp any] interface {
	Handle(ctx context.Context, req *Req) (*Resp, error)
}

// Registry maps topic hash to dispatch closure (§4.6). Built once at
// startup and never mutated afterward, so lookup needs no lock despite
// being hit concurrently by every server listener (§5).
type Registry struct {
	byTopic map[uint64]DispatchFunc
}

func NewRegistry() *Registry {
	return &Registry{byTopic: make(map[uint64]DispatchFunc)}
}

// Lookup returns the dispatch closure for topic, or false if no handler was
// registered for it; unknown topics never raise (§4.6).
func (r *Registry) Lookup(t uint64) (DispatchFunc, bool) {
	f, ok := r.byTopic[t]
	return f, ok
}

// RegisterVoid wires a void command (§3: "reply bytes are the empty
// slice"). factory is invoked once per dispatch rather than cached, so a
// handler with per-request state behaves like a scoped service (§4.6
// "resolved from a service container at dispatch time, not cached").
func RegisterVoid[Req any](r *Registry, typeName string, c codec.Codec, factory func() VoidHandler[Req]) {
	t := topic.HashString(typeName)
	r.byTopic[t] = func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := c.Decode(payload, &req); err != nil {
			return nil, err
		}
		h := factory()
		if err := h.Handle(ctx, &req); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// RegisterValue wires a command that produces a typed response.
func RegisterValue[Req, Resp any](r *Registry, typeName string, c codec.Codec, factory func() ValueHandler[Req, Resp]) {
	t := topic.HashString(typeName)
	r.byTopic[t] = func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := c.Decode(payload, &req); err != nil {
			return nil, err
		}
		h := factory()
		resp, err := h.Handle(ctx, &req)
		if err != nil {
			return nil, err
		}
		return c.Encode(resp)
	}
}

// Topic is a convenience re-export so callers building ScheduleCommands
// don't need to import the topic package solely for this one call.
func Topic(typeName string) uint64 { return topic.HashString(typeName) }

// Topics returns every topic hash currently registered, used to build the
// local routing filter published in PeerContext.RoutingTable (§4.1, §6).
func (r *Registry) Topics() []uint64 {
	out := make([]uint64, 0, len(r.byTopic))
	for t := range r.byTopic {
		out = append(out, t)
	}
	return out
}
