/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reply_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fastbus/fastbus/reply"
)

func TestRouterDeliversResultToRegisteredPending(t *testing.T) {
	r := reply.NewRouter()
	p := reply.NewPool("router", reply.PoolConfig{CoreSize: 1, MaxSize: 1, BurstMax: 1, BurstTTL: time.Hour})
	defer p.Close()
	item := p.Rent()
	defer p.Return(item)

	r.Register(item)
	if got := r.Count(); got != 1 {
		t.Fatalf("router count = %d, want 1", got)
	}

	r.OnFrame(item.CorrelationID(), []byte("payload"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := item.Await(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "payload" {
		t.Fatalf("payload = %q, want %q", b, "payload")
	}
	if got := r.Count(); got != 0 {
		t.Fatalf("router count after delivery = %d, want 0 (OnFrame removes)", got)
	}
}

func TestRouterUnknownCorrelationIDIsSilentlyDropped(t *testing.T) {
	r := reply.NewRouter()
	// No Register call for this id; OnFrame must not panic and must leave
	// nothing behind.
	r.OnFrame(999, []byte("orphan"), nil)
	if got := r.Count(); got != 0 {
		t.Fatalf("router count = %d, want 0", got)
	}
}

func TestRouterDecodeErrorSetsPendingError(t *testing.T) {
	r := reply.NewRouter()
	p := reply.NewPool("router-decode-err", reply.PoolConfig{CoreSize: 1, MaxSize: 1, BurstMax: 1, BurstTTL: time.Hour})
	defer p.Close()
	item := p.Rent()
	defer p.Return(item)

	r.Register(item)
	wantErr := errors.New("malformed frame")
	r.OnFrame(item.CorrelationID(), nil, wantErr)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := item.Await(ctx)
	if err == nil {
		t.Fatal("expected a decode error to be delivered to the pending reply")
	}
}

func TestRouterUnregisterPreventsLateDelivery(t *testing.T) {
	r := reply.NewRouter()
	p := reply.NewPool("router-unreg", reply.PoolConfig{CoreSize: 1, MaxSize: 1, BurstMax: 1, BurstTTL: time.Hour})
	defer p.Close()
	item := p.Rent()
	defer p.Return(item)

	r.Register(item)
	r.Unregister(item)
	if got := r.Count(); got != 0 {
		t.Fatalf("router count after Unregister = %d, want 0", got)
	}

	// A frame arriving after Unregister must be dropped, not delivered.
	r.OnFrame(item.CorrelationID(), []byte("late"), nil)
	if item.IsCompleted() {
		t.Fatal("pending reply completed from a frame delivered after Unregister")
	}
}
