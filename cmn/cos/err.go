// Package cos provides low-level common types and utilities shared by every
// fastbus package.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "github.com/pkg/errors"

// Error taxonomy (see §7): scatter-gather isolates per-peer failures so these
// are attached to individual responses, never to the scatter as a whole.
var (
	ErrTimedOut     = errors.New("timed out")
	ErrNoPeers      = errors.New("no peers")
	ErrUnknownPeer  = errors.New("unknown peer")
	ErrEncode       = errors.New("encode error")
	ErrDecode       = errors.New("decode error")
	ErrTransport    = errors.New("transport error")
	ErrHandlerGone  = errors.New("handler not found")
	ErrPoolExceeded = errors.New("pending-reply pool exhausted")
)

// WrapTimedOut and friends attach context (peer, topic) to a sentinel error
// without losing errors.Is compatibility.
func WrapTimedOut(format string, a ...any) error { return errors.Wrapf(ErrTimedOut, format, a...) }
func WrapDecode(format string, a ...any) error   { return errors.Wrapf(ErrDecode, format, a...) }
func WrapEncode(format string, a ...any) error   { return errors.Wrapf(ErrEncode, format, a...) }
func WrapTransport(format string, a ...any) error {
	return errors.Wrapf(ErrTransport, format, a...)
}
