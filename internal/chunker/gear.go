package chunker

import (
	"math/bits"
	"math/rand/v2"
)

// MaskSeed seeds the boundary mask generator. Changing it moves every
// chunk boundary and invalidates existing chunk addresses.
const MaskSeed = 941568351

// gearSeed seeds the gear table. Same stability constraint as MaskSeed.
const gearSeed = 0x9e3779b97f4a7c15

// NormalizationLevel is the number of bits added to (removed from) the
// expected-size mask before (after) the normal size is reached.
const NormalizationLevel = 2

var gearTable = func() [256]uint64 {
	var t [256]uint64
	r := rand.New(rand.NewPCG(gearSeed, gearSeed>>1))
	for i := range t {
		t[i] = r.Uint64()
	}
	return t
}()

// masks returns the small-chunk (harder, more one-bits) and large-chunk
// (easier, fewer one-bits) boundary masks for an expected chunk size.
// One-bits are spread over the upper 48 bits so the gear hash has
// absorbed enough bytes to influence them.
func masks(expected int) (small, large uint64) {
	base := bits.Len(uint(expected)) - 1
	if expected-(1<<base) > (1<<(base+1))-expected {
		base++
	}
	r := rand.New(rand.NewPCG(MaskSeed, uint64(expected)))
	return randomMask(r, base+NormalizationLevel), randomMask(r, base-NormalizationLevel)
}

func randomMask(r *rand.Rand, ones int) uint64 {
	if ones < 1 {
		ones = 1
	}
	var m uint64
	for bits.OnesCount64(m) < ones {
		m |= 1 << (16 + r.IntN(48))
	}
	return m
}
