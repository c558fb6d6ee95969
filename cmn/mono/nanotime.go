//go:build !mono

// Package mono provides low-level monotonic time, used for rate-limited
// logging and for timing housekeeping intervals without the allocation cost
// of time.Now().
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// NanoTime returns a monotonic nanosecond counter. The runtime.nanotime
// linkname trick (fast_nanotime.go, "mono" build tag) shaves an allocation
// off the hot logging path; this portable fallback is the default.
func NanoTime() int64 { return startNano + int64(time.Since(start)) }

// start carries the monotonic clock reading that time.Since measures from;
// startNano only offsets the counter to the wall-clock epoch at startup.
var (
	start     = time.Now()
	startNano = start.UnixNano()
)
