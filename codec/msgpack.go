// Package codec defines the abstract serializer (C1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/fastbus/fastbus/cmn/cos"
)

// Msgpack is the default codec: command and response types implement
// msgp.Marshaler/msgp.Unmarshaler (hand- or codegen-produced, as aistore's
// own wire types do), giving zero-reflection encode/decode and the exact
// fixed-key array layout §6 mandates for PeerContext interop.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(v any) ([]byte, error) {
	m, ok := v.(msgp.Marshaler)
	if !ok {
		return nil, cos.WrapEncode("%T does not implement msgp.Marshaler", v)
	}
	b, err := m.MarshalMsg(nil)
	if err != nil {
		return nil, cos.WrapEncode("%v", err)
	}
	return b, nil
}

func (Msgpack) Decode(b []byte, v any) error {
	u, ok := v.(msgp.Unmarshaler)
	if !ok {
		return cos.WrapDecode("%T does not implement msgp.Unmarshaler", v)
	}
	leftover, err := u.UnmarshalMsg(b)
	if err != nil {
		return cos.WrapDecode("%v", err)
	}
	if len(leftover) != 0 {
		return cos.WrapDecode("%d trailing byte(s) after decoding %T", len(leftover), v)
	}
	return nil
}

var _ Codec = Msgpack{}
