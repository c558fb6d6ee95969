// Package transport implements the socket manager (C6): per-scope admission
// predicates, the three transport kinds (in-process, IPC, TCP), and the
// worker-owned connection set that schedules sends and feeds incoming reply
// frames to the reply router.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"encoding/binary"
	"io"

	"github.com/valyala/bytebufferpool"

	"github.com/fastbus/fastbus/cmn/cos"
)

// request/reply frame layout (§3, §6): all little-endian.
const (
	RequestHeaderLen = 16 // topic(8) | correlation_id(8)
	ReplyHeaderLen   = 8  // correlation_id(8)
)

// EncodeRequest lays out a request frame: topic | correlation_id | payload.
func EncodeRequest(topic, correlationID uint64, payload []byte) []byte {
	buf := make([]byte, RequestHeaderLen+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], topic)
	binary.LittleEndian.PutUint64(buf[8:16], correlationID)
	copy(buf[RequestHeaderLen:], payload)
	return buf
}

// DecodeRequest parses a request frame as the command server does (§4.7
// step 1): topic at 0..8, correlation_id at 8..16, payload is the rest.
func DecodeRequest(b []byte) (topic, correlationID uint64, payload []byte, err error) {
	if len(b) < RequestHeaderLen {
		return 0, 0, nil, cos.WrapDecode("request frame too short: %d byte(s)", len(b))
	}
	topic = binary.LittleEndian.Uint64(b[0:8])
	correlationID = binary.LittleEndian.Uint64(b[8:16])
	payload = b[RequestHeaderLen:]
	return
}

// EncodeReply lays out a reply frame: correlation_id | payload. An empty
// payload is valid and means "no handler" (§4.7, §8 ordering with empties).
func EncodeReply(correlationID uint64, payload []byte) []byte {
	buf := make([]byte, ReplyHeaderLen+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], correlationID)
	copy(buf[ReplyHeaderLen:], payload)
	return buf
}

// DecodeReply parses a reply frame as the reply router does (§4.3 on_frame).
func DecodeReply(b []byte) (correlationID uint64, payload []byte, err error) {
	if len(b) < ReplyHeaderLen {
		return 0, nil, cos.WrapDecode("reply frame too short: %d byte(s)", len(b))
	}
	correlationID = binary.LittleEndian.Uint64(b[0:8])
	payload = b[ReplyHeaderLen:]
	return
}

// lenPrefix is the byte-stream envelope (§9 design notes: "this spec
// mandates the byte-stream form for all non-legacy transports") that IPC and
// TCP wrap each frame in; the in-process transport needs no envelope since
// it hands the frame across a Go channel directly.
const lenPrefixLen = 4

// WriteFrame writes frame to w as one length-prefixed envelope, pooling the
// length+frame scratch buffer the way aistore's send path pools its headers.
// Used by both the socket manager's stream connections and the command
// server's IPC/TCP listeners.
func WriteFrame(w io.Writer, frame []byte) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	var lenBuf [lenPrefixLen]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	bb.Write(lenBuf[:])
	bb.Write(frame)
	_, err := w.Write(bb.B)
	if err != nil {
		return cos.WrapTransport("write framed: %v", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [lenPrefixLen]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
