package sim

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// RNG is a deterministic, platform-independent pseudo-random source built
// as a BLAKE3 hash chain over (seed, counter), rather than a
// version-pinned math/rand algorithm whose output could silently change
// across Go releases and break run-to-run determinism (P7).
type RNG struct {
	seed    uint64
	counter uint64
}

// NewRNG creates a generator seeded deterministically.
func NewRNG(seed uint64) *RNG {
	return &RNG{seed: seed}
}

// Uint64 returns the next value in the chain.
func (r *RNG) Uint64() uint64 {
	var in [16]byte
	binary.LittleEndian.PutUint64(in[0:8], r.seed)
	binary.LittleEndian.PutUint64(in[8:16], r.counter)
	r.counter++
	sum := blake3.Sum256(in[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	const mantissaBits = 53
	return float64(r.Uint64()>>(64-mantissaBits)) / float64(uint64(1)<<mantissaBits)
}

// Intn returns a value in [0, n).
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Int63n returns a value in [0, n).
func (r *RNG) Int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return int64(r.Uint64() % uint64(n))
}
