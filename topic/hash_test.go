/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package topic_test

import (
	"testing"

	"github.com/fastbus/fastbus/topic"
)

func TestDeterministic(t *testing.T) {
	h1 := topic.HashString("Ping")
	h2 := topic.HashString("Ping")
	if h1 != h2 {
		t.Fatalf("hash of the same type name must be deterministic: %x != %x", h1, h2)
	}
}

func TestDistinctTypesDiffer(t *testing.T) {
	if topic.HashString("Ping") == topic.HashString("Smile") {
		t.Fatalf("distinct type names should not collide in this small sample")
	}
}

func TestVariousLengths(t *testing.T) {
	// exercise every branch of the mix (<=16 short forms, >16, >48 bulk loop)
	names := []string{
		"", "a", "ab", "abc", "Ping", "ACommandWithAFairlyLongTypeName",
		"AVeryLongCommandTypeNameThatExceedsFortyEightBytesOfUtf8InputData",
	}
	seen := make(map[uint64]string)
	for _, n := range names {
		h := topic.HashString(n)
		if prev, ok := seen[h]; ok {
			t.Fatalf("unexpected collision between %q and %q", n, prev)
		}
		seen[h] = n
	}
}
