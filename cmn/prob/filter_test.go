/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package prob_test

import (
	"strconv"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/fastbus/fastbus/cmn/prob"
	"github.com/fastbus/fastbus/topic"
)

var _ = Describe("Filter", func() {
	It("admits every added topic with probability 1", func() {
		f := prob.NewFilter(64, 0.01)
		added := make([]uint64, 64)
		for i := range added {
			added[i] = uint64(i)*1000003 + 7
			f.Add(added[i])
		}
		for _, h := range added {
			Expect(f.MightContain(h)).To(BeTrue())
		}
	})

	It("keeps the false-positive rate low for topics never added", func() {
		// Keys are topic hashes of type names, as in production: the filter
		// indexes bits by the low and high 32 bits of the key, so keys from a
		// plain arithmetic sequence would share bit positions by construction.
		f := prob.NewFilter(1000, 0.01)
		for i := 0; i < 1000; i++ {
			f.Add(topic.HashString("added." + strconv.Itoa(i)))
		}
		fp := 0
		const trials = 5000
		for i := 0; i < trials; i++ {
			h := topic.HashString("probe." + strconv.Itoa(i)) // disjoint from the added names
			if f.MightContain(h) {
				fp++
			}
		}
		Expect(float64(fp) / trials).To(BeNumerically("<", 0.05))
	})

	It("is idempotent", func() {
		f := prob.NewFilter(16, 0.01)
		f.Add(42)
		before := f.Bytes()
		f.Add(42)
		Expect(f.Bytes()).To(Equal(before))
	})

	It("treats a nil/empty routing table as accept-any", func() {
		Expect(prob.MightContainBytes(nil, 12345)).To(BeTrue())
	})

	It("round-trips through the static byte-array test", func() {
		f := prob.NewFilter(32, 0.01)
		f.Add(99)
		Expect(prob.MightContainBytes(f.Bytes(), 99)).To(BeTrue())
	})

	It("rounds bit count up to a power of two with a 16-bit floor", func() {
		f := prob.NewFilter(1, 0.5)
		Expect(len(f.Bytes()) * 8).To(BeNumerically(">=", 16))
	})
})
