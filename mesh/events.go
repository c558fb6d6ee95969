// Package mesh is the data model for peer membership (C10).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mesh

import (
	"fmt"

	"github.com/hannahhoward/go-pubsub"
)

// Event is published by the external discovery collaborator (beacon/
// heartbeat, §1 non-goals) whenever mesh membership changes. The only one
// the core originates is the PeerJoined for the local peer that Bus.Start
// fires; otherwise it only subscribes.
type (
	PeerJoined struct{ Peer *PeerContext }
	PeerLeft   struct{ Peer *PeerContext }
)

type joinSubFn func(PeerJoined)
type leftSubFn func(PeerLeft)

// EventBus replaces the static global event aggregator the source relies on
// (§9 design notes) with an injected, per-process pub/sub handle: socket
// managers subscribe to it at construction instead of reaching into hidden
// process-wide state.
type EventBus struct {
	joined *pubsub.PubSub
	left   *pubsub.PubSub
}

func NewEventBus() *EventBus {
	return &EventBus{
		joined: pubsub.New(dispatchJoined),
		left:   pubsub.New(dispatchLeft),
	}
}

func dispatchJoined(event pubsub.Event, subFn pubsub.SubscriberFn) error {
	evt, ok := event.(PeerJoined)
	if !ok {
		return fmt.Errorf("mesh: wrong event type %T for PeerJoined subscriber", event)
	}
	sub, ok := subFn.(joinSubFn)
	if !ok {
		return fmt.Errorf("mesh: wrong subscriber type %T for PeerJoined", subFn)
	}
	sub(evt)
	return nil
}

func dispatchLeft(event pubsub.Event, subFn pubsub.SubscriberFn) error {
	evt, ok := event.(PeerLeft)
	if !ok {
		return fmt.Errorf("mesh: wrong event type %T for PeerLeft subscriber", event)
	}
	sub, ok := subFn.(leftSubFn)
	if !ok {
		return fmt.Errorf("mesh: wrong subscriber type %T for PeerLeft", subFn)
	}
	sub(evt)
	return nil
}

// OnPeerJoined registers cb to run for every subsequent PeerJoined event.
func (b *EventBus) OnPeerJoined(cb func(PeerJoined)) pubsub.Unsubscribe {
	return b.joined.Subscribe(joinSubFn(cb))
}

// OnPeerLeft registers cb to run for every subsequent PeerLeft event.
func (b *EventBus) OnPeerLeft(cb func(PeerLeft)) pubsub.Unsubscribe {
	return b.left.Subscribe(leftSubFn(cb))
}

// FireJoined and FireLeft are called by the discovery collaborator;
// Bus.Start also calls FireJoined once for the local peer.
func (b *EventBus) FireJoined(p *PeerContext) { b.joined.Publish(PeerJoined{Peer: p}) }
func (b *EventBus) FireLeft(p *PeerContext)    { b.left.Publish(PeerLeft{Peer: p}) }
