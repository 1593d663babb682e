package alloc

import "fmt"

// Named redistribution matrices for WithRedistribution.
const (
	// PresetNext sends each category's residual share to the next
	// category, wrapping at the end.
	PresetNext = "next"
	// PresetSpread splits each category's residual share evenly over every
	// other category.
	PresetSpread = "spread"
)

// NextMatrix returns the n x n cyclic shift: row i is 1 at column (i+1)%n.
func NextMatrix(n int) [][]float64 {
	m := zeroMatrix(n)
	for i := range m {
		m[i][(i+1)%n] = 1
	}
	return m
}

// SpreadMatrix returns the n x n matrix with 1/(n-1) everywhere off the
// diagonal. A single category keeps its own share.
func SpreadMatrix(n int) [][]float64 {
	m := zeroMatrix(n)
	if n == 1 {
		m[0][0] = 1
		return m
	}
	share := 1 / float64(n-1)
	for i := range m {
		for j := range m[i] {
			if i != j {
				m[i][j] = share
			}
		}
	}
	return m
}

// PresetMatrix resolves a preset name for n categories.
func PresetMatrix(name string, n int) ([][]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	switch name {
	case PresetNext:
		return NextMatrix(n), nil
	case PresetSpread:
		return SpreadMatrix(n), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}

func zeroMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
