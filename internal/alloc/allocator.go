package alloc

import (
	"fmt"
	"math"
)

// DefaultOverflowSlots is the number of overflow slots the residual is split
// across under ResidualOverflow.
const DefaultOverflowSlots = 3

// matrixRowTolerance bounds how far a matrix row may drift from summing to 1.
const matrixRowTolerance = 1e-6

// ResidualPolicy selects what happens to mass the categories did not absorb.
type ResidualPolicy int

const (
	// ResidualOverflow splits the residual evenly over overflow slots.
	// It never feeds back into category mass.
	ResidualOverflow ResidualPolicy = iota
	// ResidualRedistribute pushes the residual back into categories through
	// a row-stochastic matrix.
	ResidualRedistribute
)

// String returns the policy name used in configuration files.
func (p ResidualPolicy) String() string {
	switch p {
	case ResidualOverflow:
		return "overflow"
	case ResidualRedistribute:
		return "redistribute"
	default:
		return fmt.Sprintf("ResidualPolicy(%d)", int(p))
	}
}

// ParseResidualPolicy maps a configuration name to a policy.
// The empty string selects ResidualOverflow.
func ParseResidualPolicy(s string) (ResidualPolicy, error) {
	switch s {
	case "", "overflow":
		return ResidualOverflow, nil
	case "redistribute":
		return ResidualRedistribute, nil
	default:
		return 0, fmt.Errorf("unknown residual policy %q", s)
	}
}

// Allocation is the outcome of splitting one tick's raw mass.
type Allocation struct {
	// PerCategory is the mass assigned to each category, in declared order.
	PerCategory []float64
	// Residual is raw mass minus the sum of PerCategory before any
	// redistribution, clamped at zero.
	Residual float64
	// Overflow holds the residual split under ResidualOverflow; nil when the
	// residual was redistributed.
	Overflow []float64
}

// Allocate splits rawMass by weights, optionally reshaped by bias, and sends
// the residual to DefaultOverflowSlots overflow slots.
func Allocate(rawMass float64, weights, bias []float64) (Allocation, error) {
	if err := validateMass(rawMass); err != nil {
		return Allocation{}, err
	}
	w, err := ApplyBias(weights, bias)
	if err != nil {
		return Allocation{}, err
	}
	return split(rawMass, w, DefaultOverflowSlots), nil
}

// Allocator holds a validated ratio, category count, bias and residual
// policy. It is immutable after New.
type Allocator struct {
	ratio   float64
	weights []float64 // biased, normalized
	bias    []float64
	policy  ResidualPolicy
	slots   int
	matrix  [][]float64
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithBias reshapes weights by an elementwise bias vector.
func WithBias(bias []float64) Option {
	return func(a *Allocator) {
		if bias != nil {
			a.bias = append([]float64(nil), bias...)
		}
	}
}

// WithOverflowSlots sets the number of overflow slots.
func WithOverflowSlots(n int) Option {
	return func(a *Allocator) {
		a.slots = n
	}
}

// WithRedistribution selects ResidualRedistribute. A nil matrix means the
// identity: each category gets the residual back in proportion to its weight.
func WithRedistribution(matrix [][]float64) Option {
	return func(a *Allocator) {
		a.policy = ResidualRedistribute
		a.matrix = cloneMatrix(matrix)
	}
}

// New validates its inputs and returns an Allocator for n categories.
func New(ratio float64, n int, opts ...Option) (*Allocator, error) {
	a := &Allocator{
		ratio:  ratio,
		policy: ResidualOverflow,
		slots:  DefaultOverflowSlots,
	}
	for _, opt := range opts {
		opt(a)
	}

	base, err := Weights(ratio, n)
	if err != nil {
		return nil, err
	}
	a.weights, err = ApplyBias(base, a.bias)
	if err != nil {
		return nil, err
	}
	if a.slots < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlots, a.slots)
	}
	if a.matrix != nil {
		if err := ValidateMatrix(a.matrix, n); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Ratio returns the ratio constant.
func (a *Allocator) Ratio() float64 {
	return a.ratio
}

// Policy returns the residual policy.
func (a *Allocator) Policy() ResidualPolicy {
	return a.policy
}

// Weights returns a copy of the effective (biased, normalized) weights.
func (a *Allocator) Weights() []float64 {
	return append([]float64(nil), a.weights...)
}

// Allocate splits rawMass under the allocator's configuration.
// The only failure is an invalid rawMass.
func (a *Allocator) Allocate(rawMass float64) (Allocation, error) {
	if err := validateMass(rawMass); err != nil {
		return Allocation{}, err
	}
	out := split(rawMass, a.weights, a.slots)
	if a.policy == ResidualRedistribute {
		a.redistribute(&out)
	}
	return out, nil
}

func (a *Allocator) redistribute(out *Allocation) {
	out.Overflow = nil
	if out.Residual == 0 {
		return
	}
	for i, w := range a.weights {
		outflow := out.Residual * w
		if a.matrix == nil {
			out.PerCategory[i] += outflow
			continue
		}
		for j, share := range a.matrix[i] {
			out.PerCategory[j] += outflow * share
		}
	}
}

// ValidateMatrix checks that m is n x n, finite, non-negative and
// row-stochastic.
func ValidateMatrix(m [][]float64, n int) error {
	if len(m) != n {
		return fmt.Errorf("%w: got %d rows, want %d", ErrMatrixShape, len(m), n)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrMatrixShape, i, len(row), n)
		}
		sum := 0.0
		for j, v := range row {
			if !isFinite(v) || v < 0 {
				return fmt.Errorf("%w: m[%d][%d]=%v", ErrMatrixRow, i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > matrixRowTolerance {
			return fmt.Errorf("%w: row %d sums to %v", ErrMatrixRow, i, sum)
		}
	}
	return nil
}

func split(rawMass float64, weights []float64, slots int) Allocation {
	per := make([]float64, len(weights))
	allocated := 0.0
	for i, w := range weights {
		per[i] = rawMass * w
		allocated += per[i]
	}
	residual := math.Max(0, rawMass-allocated)

	overflow := make([]float64, slots)
	for i := range overflow {
		overflow[i] = residual / float64(slots)
	}
	return Allocation{PerCategory: per, Residual: residual, Overflow: overflow}
}

func validateMass(rawMass float64) error {
	if !isFinite(rawMass) || rawMass < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidMass, rawMass)
	}
	return nil
}

func cloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
