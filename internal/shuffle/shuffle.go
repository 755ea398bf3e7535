// Package shuffle implements the keyed per-chunk permutation. The seed
// is derived from the password alone, so every chunk of a given length
// receives the same permutation; confidentiality comes from the cipher
// envelope, the shuffle only decorrelates the packed layout.
package shuffle

import "github.com/duvitech/cryfa/internal/prng"

// Seed derivation constants.
const (
	seedMul = 20543
	seedAdd = 81647
)

// Seed derives the permutation seed from the password. Computed once
// per run; workers share the result read-only.
func Seed(password []byte) uint32 {
	m := uint64(1)
	for _, c := range password {
		m *= uint64(c)
	}
	r := prng.NewMinstd(uint32(seedMul*m + seedAdd))

	var seed uint64
	for _, c := range password {
		seed += uint64(c) * uint64(r.Next())
	}
	return uint32(seed)
}

// Apply permutes data in place with a Fisher-Yates pass driven by a
// Mersenne Twister seeded with seed.
func Apply(data []byte, seed uint32) {
	mt := prng.NewMT19937(seed)
	for i := len(data) - 1; i > 0; i-- {
		j := int(mt.Uint32() % uint32(i+1))
		data[i], data[j] = data[j], data[i]
	}
}

// Invert undoes Apply for the same seed and length.
func Invert(data []byte, seed uint32) {
	if len(data) < 2 {
		return
	}
	mt := prng.NewMT19937(seed)
	swaps := make([]int, len(data))
	for i := len(data) - 1; i > 0; i-- {
		swaps[i] = int(mt.Uint32() % uint32(i+1))
	}
	for i := 1; i < len(data); i++ {
		j := swaps[i]
		data[i], data[j] = data[j], data[i]
	}
}
