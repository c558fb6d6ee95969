// Package cos provides low-level common types and utilities shared by every
// fastbus package: stop channels, a minimal runnable interface, and a few
// string/slice helpers that show up across the mesh, transport, and scope
// layers.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"strings"
	"sync"
)

// StopCh is a one-shot close-only signal, safe to call Close on multiple
// times. Workers `select` on Listen() instead of holding a raw channel so
// that a late or duplicate Close never panics.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh { return &StopCh{ch: make(chan struct{})} }

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() { s.once.Do(func() { close(s.ch) }) }

// Runner is the shape of the long-lived workers (socket manager I/O loop,
// housekeeper) that are brought up with Run and torn down with Stop.
type Runner interface {
	Name() string
	Run() error
	Stop(error)
}

// JoinWords joins non-empty path segments with "/", skipping empty ones so
// the result has no double slashes.
func JoinWords(words ...string) string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, "/")
}

// CryptoRandU64 returns a cryptographically random 64-bit value, used to mint
// mesh IDs and the default application name, which must not collide across
// processes, and to seed the trace-id generator.
func CryptoRandU64() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure on a live kernel is unrecoverable; fall back to
		// a big.Int draw rather than silently handing out a zero ID.
		n, _ := rand.Int(rand.Reader, big.NewInt(0).SetUint64(^uint64(0)))
		return n.Uint64()
	}
	return binary.LittleEndian.Uint64(b[:])
}
