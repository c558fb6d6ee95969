// Package codec defines the abstract serializer (C1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/fastbus/fastbus/cmn/cos"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON is a reflection-based fallback codec for command/response types that
// don't carry hand-written msgp marshalers, e.g. during early development or
// for handlers imported from non-codegen packages. It satisfies the same
// round-trip contract as Msgpack at the cost of a reflective encode/decode.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(v any) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, cos.WrapEncode("%v", err)
	}
	return b, nil
}

func (JSON) Decode(b []byte, v any) error {
	if err := jsonAPI.Unmarshal(b, v); err != nil {
		return cos.WrapDecode("%v", err)
	}
	return nil
}

var _ Codec = JSON{}
