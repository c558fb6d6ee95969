// Package codec defines the abstract serializer (C1) the rest of fastbus is
// built against. The wire frame layout (§3) is fixed, but the payload
// encoding is pluggable: a deployment picks one Codec and every scope,
// handler registry, and command server shares it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

// Codec serializes/deserializes typed command and response payloads to/from
// byte buffers (§2 C1). Implementations must satisfy decode(encode(x)) == x
// for every registered type (§8 codec round-trip).
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte, v any) error
	Name() string
}
