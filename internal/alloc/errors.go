package alloc

import "errors"

// Validation failures. Callers wrap these; use errors.Is to match.
var (
	ErrInvalidRatio  = errors.New("ratio must be a positive finite number")
	ErrInvalidCount  = errors.New("category count must be at least 1")
	ErrBiasLength    = errors.New("bias vector length does not match category count")
	ErrInvalidBias   = errors.New("bias entries must be finite, non-negative and not all zero")
	ErrInvalidMass   = errors.New("raw mass must be a finite, non-negative number")
	ErrInvalidSlots  = errors.New("overflow slot count must be at least 1")
	ErrMatrixShape   = errors.New("redistribution matrix must be categories x categories")
	ErrMatrixRow     = errors.New("redistribution matrix rows must be non-negative and sum to 1")
	ErrUnknownPreset = errors.New("unknown redistribution preset")
)
