// Package rng provides the deterministic random source that drives quest
// planning, event resolution and loot rolls.
package rng

import (
	"math/bits"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	golden = 0x9E3779B97F4A7C15
	// eventStride is odd and unrelated to golden, so per-event streams do not
	// overlap the splitmix sequence of neighbouring indices.
	eventStride = 0xD1B54A32D192ED03
)

// SplitMix64 is a splitmix64 generator. Instances share no state; reseed by
// constructing a new one.
type SplitMix64 struct {
	state uint64
}

// New creates a generator seeded with seed.
func New(seed int64) *SplitMix64 {
	return &SplitMix64{state: uint64(seed)}
}

// NextUint64 advances the generator and returns the next 64-bit value.
func (s *SplitMix64) NextUint64() uint64 {
	s.state += golden
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// NextDouble returns a float64 in [0, 1).
func (s *SplitMix64) NextDouble() float64 {
	return float64(s.NextUint64()>>11) / (1 << 53)
}

// NextInt returns an int in [0, bound). It panics if bound <= 0.
func (s *SplitMix64) NextInt(bound int) int {
	if bound <= 0 {
		panic("rng: invalid argument to NextInt")
	}
	return int(s.NextUint64() % uint64(bound))
}

// IntRange returns an int in [lo, hi], both inclusive.
func (s *SplitMix64) IntRange(lo, hi int) int {
	return lo + s.NextInt(hi-lo+1)
}

// DeriveSeed combines the quest start time and the hero and quest ids into the
// quest's base seed. Replaying the same quest yields the same seed.
func DeriveSeed(start time.Time, heroID, questID string) int64 {
	h := xxhash.Sum64String(heroID)
	q := bits.RotateLeft64(xxhash.Sum64String(questID), 31)
	return int64(h ^ q ^ uint64(start.UnixMilli()))
}

// EventSeed returns the seed for the event at idx. Adjacent indices land far
// apart in seed space.
func EventSeed(base int64, idx int) int64 {
	return int64(uint64(base) + uint64(idx)*eventStride)
}
