// Package cos provides low-level common types and utilities shared by every
// fastbus package.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"strconv"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initShortID() {
	sid = shortid.MustNew(1 /*worker*/, uuidABC, CryptoRandU64())
}

// GenTraceID mints a short, human-loggable id used to tag one scatter/gather
// call across its log lines; it has no bearing on wire correlation ids.
func GenTraceID() string {
	sidOnce.Do(initShortID)
	return sid.MustGenerate()
}

// HashString is a fast, non-cryptographic string hash used internally to
// shard the socket manager's per-application index; it is never put on the
// wire and carries no interop requirement (contrast with topic.Hash).
func HashString(s string) uint64 {
	return xxhash.ChecksumString64(s)
}

// FormatMeshID renders a 64-bit mesh/application id the way the default
// (unconfigured) application_name is rendered: plain decimal text.
func FormatMeshID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
