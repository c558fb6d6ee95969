// Package mesh is the data model for peer membership (C10): the immutable
// PeerContext published by discovery, and the PeerJoined/PeerLeft events the
// socket managers subscribe to. Peer discovery itself (beacon/heartbeat) is
// an external collaborator (§1 non-goals); this package only defines the
// shape it feeds into the core.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mesh

import (
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/fastbus/fastbus/cmn/prob"
)

// PeerContext is the stable identity of a remote participant (§3). Equality
// is by MeshID; once published, a PeerContext is immutable - a re-announce
// with the same MeshID fully replaces the old one (see Registry.Upsert).
type PeerContext struct {
	MeshID          uint64
	ApplicationName string
	WorkstationName string
	ClusterName     string
	Address         string
	RPCPort         uint16
	PubPort         uint16
	RoutingTable    []byte // valid prob.Filter encoding, or nil ("accepts any topic")

	// IsSelf and LastSeen are local-only and never cross the wire (§6).
	IsSelf   bool
	LastSeen time.Time
}

func (p *PeerContext) Equal(o *PeerContext) bool { return o != nil && p.MeshID == o.MeshID }

// MightHandle tests the peer's routing filter for topic h; an absent table
// means "accepts any topic" (§4.1).
func (p *PeerContext) MightHandle(h uint64) bool {
	return prob.MightContainBytes(p.RoutingTable, h)
}

// the field order below is the wire contract (§6): MessagePack array with
// fixed positions 0..7, IsSelf/LastSeen excluded. Hand-written rather than
// msgp-codegen'd so the exact position assignment is visible at the call
// site, the way aistore's own ext/dsort types implement msgp.Marshaler by
// hand for its small, stable structs.
const peerWireFields = 8

var _ msgp.Marshaler = (*PeerContext)(nil)
var _ msgp.Unmarshaler = (*PeerContext)(nil)

func (p *PeerContext) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, peerWireFields)
	o = msgp.AppendUint64(o, p.MeshID)
	o = msgp.AppendString(o, p.ApplicationName)
	o = msgp.AppendString(o, p.WorkstationName)
	o = msgp.AppendString(o, p.ClusterName)
	o = msgp.AppendString(o, p.Address)
	o = msgp.AppendUint16(o, p.RPCPort)
	o = msgp.AppendUint16(o, p.PubPort)
	o = msgp.AppendBytes(o, p.RoutingTable)
	return o, nil
}

func (p *PeerContext) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if sz != peerWireFields {
		return b, msgp.ArrayError{Wanted: peerWireFields, Got: sz}
	}
	if p.MeshID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return b, err
	}
	if p.ApplicationName, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, err
	}
	if p.WorkstationName, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, err
	}
	if p.ClusterName, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, err
	}
	if p.Address, b, err = msgp.ReadStringBytes(b); err != nil {
		return b, err
	}
	if p.RPCPort, b, err = msgp.ReadUint16Bytes(b); err != nil {
		return b, err
	}
	if p.PubPort, b, err = msgp.ReadUint16Bytes(b); err != nil {
		return b, err
	}
	if p.RoutingTable, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return b, err
	}
	return b, nil
}
