// Package entropy provides the random sources decisions draw from.
// Every stochastic branch takes a Source so tests can seed or script it.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
)

// Source yields uniform random numbers.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// Seeded is a deterministic Source.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source from a seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Crypto draws from crypto/rand. Used when no seed is configured.
type Crypto struct{}

func (Crypto) Float64() float64 {
	return cryptoRandFloat()
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Fixed replays a scripted sequence, then repeats its last value.
// An empty script always yields 0.
type Fixed struct {
	mu     sync.Mutex
	values []float64
	pos    int
}

// NewFixed creates a scripted source.
func NewFixed(values ...float64) *Fixed {
	return &Fixed{values: values}
}

func (f *Fixed) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0
	}
	if f.pos >= len(f.values) {
		return f.values[len(f.values)-1]
	}
	v := f.values[f.pos]
	f.pos++
	return v
}

// Chance reports whether an event with probability p fires.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Between returns a uniform integer in [lo, hi].
func Between(src Source, lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	span := hi - lo + 1
	off := uint64(src.Float64() * float64(span))
	if off >= span {
		off = span - 1
	}
	return lo + off
}

// Uniform returns a float in [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}
