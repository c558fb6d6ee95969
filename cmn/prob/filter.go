// Package prob implements the routing filter (C3): a fixed-k=2 Bloom-style
// probabilistic set over 64-bit topic hashes. Each peer publishes one of
// these, byte-encoded, as PeerContext.routing_table so that senders can skip
// peers that provably do not implement a given command.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package prob

import (
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/fastbus/fastbus/cmn/debug"
)

const (
	minBits       = 16
	defaultFPRate = 0.01
)

// Filter is not safe for concurrent `add` from multiple goroutines; the
// intended lifecycle is: build it locally (one goroutine, at startup or on
// handler-registry change), then publish Bytes() as an immutable blob. Only
// MightContain is meant to be called concurrently, and bitset.Test is
// read-only so that's safe.
type Filter struct {
	bs *bitset.BitSet
	m  uint64 // bit count, always a power of two
}

// NewFilter sizes a filter for `expected` items at the given false-positive
// rate, rounding the bit count up to the next power of two (minimum 16 bits)
// per §4.1: m = ceil(-n*ln(p) / (ln 2)^2).
func NewFilter(expected int, fpRate float64) *Filter {
	if fpRate <= 0 {
		fpRate = defaultFPRate
	}
	n := float64(expected)
	if n < 1 {
		n = 1
	}
	m := math.Ceil(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	bits := nextPow2(uint64(m))
	if bits < minBits {
		bits = minBits
	}
	return &Filter{bs: bitset.New(uint(bits)), m: bits}
}

func nextPow2(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return v
}

// Add sets the two bits addressed by h, idempotently.
func (f *Filter) Add(h uint64) {
	debug.Assert(f.m > 0, "add on uninitialized filter")
	i1, i2 := bitIndexes(h, f.m)
	f.bs.Set(uint(i1))
	f.bs.Set(uint(i2))
}

// MightContain reports whether both bits addressed by h are set. A false
// result is a proof of absence; a true result is probabilistic.
func (f *Filter) MightContain(h uint64) bool {
	if f == nil || f.m == 0 {
		// an unpublished/absent routing table means "accepts any topic" per §4.1.
		return true
	}
	i1, i2 := bitIndexes(h, f.m)
	return f.bs.Test(uint(i1)) && f.bs.Test(uint(i2))
}

// Bytes returns the underlying bit array, suitable for PeerContext.routing_table.
func (f *Filter) Bytes() []byte {
	buf := make([]byte, (f.m+7)/8)
	words := f.bs.Bytes()
	for i, w := range words {
		for b := 0; b < 8 && i*8+b < len(buf); b++ {
			buf[i*8+b] = byte(w >> (8 * b))
		}
	}
	return buf
}

// MightContainBytes performs the static membership test against a raw
// routing-table blob (e.g. one just received from peer discovery), using the
// same masking rule as Filter.MightContain. `table` length must be a power
// of two number of bits; nil/empty means "accepts any topic".
func MightContainBytes(table []byte, h uint64) bool {
	if len(table) == 0 {
		return true
	}
	m := uint64(len(table)) * 8
	debug.Assert(m&(m-1) == 0, "routing table length must encode a power-of-two bit count")
	i1, i2 := bitIndexes(h, m)
	return testBit(table, i1) && testBit(table, i2)
}

func bitIndexes(h, m uint64) (uint64, uint64) {
	mask := m - 1
	return h & mask, (h >> 32) & mask
}

func testBit(table []byte, i uint64) bool {
	byteIdx := i / 8
	bitIdx := i % 8
	if byteIdx >= uint64(len(table)) {
		return false
	}
	return table[byteIdx]&(1<<bitIdx) != 0
}
