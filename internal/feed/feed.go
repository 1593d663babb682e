// Package feed provides raw-mass sources for driving the scheduler.
//
// Every source is deterministic for a given construction. Noisy takes an
// explicit seed; nothing here reads global randomness.
package feed

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// MassSource yields the raw mass for a tick. Ticks start at 1.
// It satisfies engine.MassSource.
type MassSource interface {
	Next(tick int64) float64
}

// Constant returns the same mass every tick.
type Constant float64

// Next implements MassSource.
func (c Constant) Next(int64) float64 {
	return float64(c)
}

// Sequence cycles through a fixed list of masses, indexed by tick.
type Sequence struct {
	values []float64
}

// ErrEmptySequence is returned by NewSequence with no values.
var ErrEmptySequence = errors.New("feed: sequence needs at least one value")

// NewSequence copies values. Tick 1 maps to values[0].
func NewSequence(values ...float64) (*Sequence, error) {
	if len(values) == 0 {
		return nil, ErrEmptySequence
	}
	return &Sequence{values: append([]float64(nil), values...)}, nil
}

// Next implements MassSource.
func (s *Sequence) Next(tick int64) float64 {
	n := int64(len(s.values))
	i := ((tick-1)%n + n) % n
	return s.values[i]
}

// Noisy returns max(0, base + jitter*N(0,1)) from a seeded PCG stream.
//
// The stream is consumed once per call, so the value depends on call order,
// not on the tick argument. Not safe for concurrent use.
type Noisy struct {
	base   float64
	jitter float64
	rng    *rand.Rand
}

// NewNoisy seeds a PCG generator with seed.
func NewNoisy(base, jitter float64, seed uint64) *Noisy {
	return &Noisy{
		base:   base,
		jitter: jitter,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next implements MassSource.
func (n *Noisy) Next(int64) float64 {
	return math.Max(0, n.base+n.jitter*n.rng.NormFloat64())
}

// Parse builds a source from a compact spec used on the command line:
//
//	1000                constant
//	seq:1000,500,0      sequence
//	noise:1000,50,42    base, jitter, seed
func Parse(spec string) (MassSource, error) {
	kind, args, found := strings.Cut(spec, ":")
	if !found {
		v, err := strconv.ParseFloat(spec, 64)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", spec, err)
		}
		return Constant(v), nil
	}

	parts := strings.Split(args, ",")
	switch kind {
	case "seq":
		values, err := parseFloats(parts)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", spec, err)
		}
		return NewSequence(values...)
	case "noise":
		if len(parts) != 3 {
			return nil, fmt.Errorf("feed %q: noise wants base,jitter,seed", spec)
		}
		values, err := parseFloats(parts[:2])
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", spec, err)
		}
		seed, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("feed %q: seed: %w", spec, err)
		}
		return NewNoisy(values[0], values[1], seed), nil
	default:
		return nil, fmt.Errorf("feed %q: unknown kind %q", spec, kind)
	}
}

func parseFloats(parts []string) ([]float64, error) {
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
