// Package topic computes the 64-bit WyHash v4 digest of a command's type
// name (§2 C2, §6). Every peer that wants to test "can I route to X"
// computes this same hash and asks the routing filter (cmn/prob) to test it;
// any divergence from the reference algorithm is an interop break, so this
// is a direct, unmodified port of the public-domain wyhash "final" mix.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package topic

import (
	"encoding/binary"
	"math/bits"
)

// default secret, per the reference wyhash implementation
var secret = [4]uint64{
	0xa0761d6478bd642f,
	0xe7037ed1a0b428db,
	0x8ebc6af09c88c6e3,
	0x589965cc75374cc3,
}

func mum(a, b uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi
}

func mix(a, b uint64) uint64 {
	lo, hi := mum(a, b)
	return lo ^ hi
}

func read8(p []byte) uint64 { return binary.LittleEndian.Uint64(p) }
func read4(p []byte) uint64 { return uint64(binary.LittleEndian.Uint32(p)) }

func read3(p []byte, k int) uint64 {
	return (uint64(p[0]) << 16) | (uint64(p[k>>1]) << 8) | uint64(p[k-1])
}

// Hash returns the 64-bit WyHash v4 digest of data, seeded with 0 as the
// reference implementation's default.
func Hash(data []byte) uint64 {
	return HashSeed(data, 0)
}

// HashString is a convenience wrapper: Hash(type_name) is what's put on the
// wire as the command topic (§3 Frame).
func HashString(s string) uint64 {
	return Hash([]byte(s))
}

// HashSeed is the reference wyhash_final4 mix, ported field-for-field from
// the public-domain C reference so independent implementations interop.
func HashSeed(data []byte, seed uint64) uint64 {
	p := data
	n := len(p)
	seed ^= mix(seed^secret[0], secret[1])

	var a, b uint64
	switch {
	case n <= 16:
		switch {
		case n >= 4:
			a = (read4(p) << 32) | read4(p[(n>>3)<<2:])
			b = (read4(p[n-4:]) << 32) | read4(p[n-4-((n>>3)<<2):])
		case n > 0:
			a = read3(p, n)
			b = 0
		default:
			a, b = 0, 0
		}
	default:
		i := n
		if i > 48 {
			see1, see2 := seed, seed
			for i > 48 {
				seed = mix(read8(p)^secret[1], read8(p[8:])^seed)
				see1 = mix(read8(p[16:])^secret[2], read8(p[24:])^see1)
				see2 = mix(read8(p[32:])^secret[3], read8(p[40:])^see2)
				p = p[48:]
				i -= 48
			}
			seed ^= see1 ^ see2
		}
		for i > 16 {
			seed = mix(read8(p)^secret[1], read8(p[8:])^seed)
			i -= 16
			p = p[16:]
		}
		// the reference reads 16 bytes back from the end of the input,
		// which may reach before p's current start when i < 16
		a = read8(data[n-16:])
		b = read8(data[n-8:])
	}

	a ^= secret[1]
	b ^= seed
	lo, hi := mum(a, b)
	return mix(lo^secret[0]^uint64(n), hi^secret[1])
}
