package alloc

import (
	"fmt"
	"math"
)

// DefaultRatio is the reference ratio constant.
const DefaultRatio = 4.39

// WeightTolerance bounds how far a weight vector may drift from summing to 1.
const WeightTolerance = 1e-9

// Weights returns n positive weights derived from ratio r, summing to 1.
func Weights(r float64, n int) ([]float64, error) {
	if !isFinite(r) || r <= 0 {
		return nil, fmt.Errorf("weights: %w: %v", ErrInvalidRatio, r)
	}
	if n < 1 {
		return nil, fmt.Errorf("weights: %w: %d", ErrInvalidCount, n)
	}

	raw := make([]float64, n)
	for i := range raw {
		base := r
		if i%2 == 1 {
			base = 1 / r
		}
		raw[i] = base / float64(i/2+1)
	}
	return normalize(raw), nil
}

// ApplyBias multiplies weights by bias elementwise and renormalizes.
// A nil bias returns a copy of weights.
func ApplyBias(weights, bias []float64) ([]float64, error) {
	if bias == nil {
		return append([]float64(nil), weights...), nil
	}
	if err := ValidateBias(bias, len(weights)); err != nil {
		return nil, err
	}

	out := make([]float64, len(weights))
	sum := 0.0
	for i, w := range weights {
		out[i] = w * bias[i]
		sum += out[i]
	}
	if sum <= 0 {
		return nil, fmt.Errorf("apply bias: %w: biased weights sum to zero", ErrInvalidBias)
	}
	return normalize(out), nil
}

// ValidateBias checks a bias vector against a category count without
// applying it.
func ValidateBias(bias []float64, n int) error {
	if len(bias) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrBiasLength, len(bias), n)
	}
	nonZero := false
	for i, b := range bias {
		if !isFinite(b) || b < 0 {
			return fmt.Errorf("%w: bias[%d]=%v", ErrInvalidBias, i, b)
		}
		if b > 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return fmt.Errorf("%w: all entries are zero", ErrInvalidBias)
	}
	return nil
}

// Sum adds a vector. Used by callers checking the sum-to-1 invariant.
func Sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

func normalize(v []float64) []float64 {
	s := Sum(v)
	for i := range v {
		v[i] /= s
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
