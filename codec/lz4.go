// Package codec defines the abstract serializer (C1).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v3"

	"github.com/fastbus/fastbus/cmn/cos"
)

const (
	lz4FlagRaw        byte = 0
	lz4FlagCompressed byte = 1
	lz4HeaderLen            = 5 // flag(1) | uncompressed_len(4)
)

// LZ4 wraps another codec, compressing its encoded bytes with lz4 before
// they reach the wire. This sits entirely inside the command/reply payload
// a Codec produces - the mandatory 16/8-byte frame header (§3, §6) never
// sees it - so it composes with any transport. Tiny or already-dense
// payloads where compression doesn't shrink the buffer are stored raw
// rather than expanded, flagged by the header byte.
type LZ4 struct {
	Inner Codec
}

func (c LZ4) Name() string { return "lz4+" + c.Inner.Name() }

func (c LZ4) Encode(v any) ([]byte, error) {
	raw, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	bound := lz4.CompressBlockBound(len(raw))
	compressed := make([]byte, bound)
	var ht [1 << 16]int
	n, cerr := lz4.CompressBlock(raw, compressed, ht[:])
	if cerr != nil {
		return nil, cos.WrapEncode("lz4 compress: %v", cerr)
	}
	if n == 0 || n >= len(raw) {
		out := make([]byte, lz4HeaderLen+len(raw))
		out[0] = lz4FlagRaw
		binary.LittleEndian.PutUint32(out[1:lz4HeaderLen], uint32(len(raw)))
		copy(out[lz4HeaderLen:], raw)
		return out, nil
	}
	out := make([]byte, lz4HeaderLen+n)
	out[0] = lz4FlagCompressed
	binary.LittleEndian.PutUint32(out[1:lz4HeaderLen], uint32(len(raw)))
	copy(out[lz4HeaderLen:], compressed[:n])
	return out, nil
}

func (c LZ4) Decode(b []byte, v any) error {
	if len(b) < lz4HeaderLen {
		return cos.WrapDecode("lz4 frame too short: %d byte(s)", len(b))
	}
	flag := b[0]
	rawLen := binary.LittleEndian.Uint32(b[1:lz4HeaderLen])
	body := b[lz4HeaderLen:]

	var raw []byte
	switch flag {
	case lz4FlagRaw:
		raw = body
	case lz4FlagCompressed:
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return cos.WrapDecode("lz4 uncompress: %v", err)
		}
		raw = raw[:n]
	default:
		return cos.WrapDecode("lz4: unknown frame flag %d", flag)
	}
	return c.Inner.Decode(raw, v)
}

var _ Codec = LZ4{}
