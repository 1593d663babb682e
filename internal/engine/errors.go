package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/quadlane/internal/alloc"
	"github.com/roach88/quadlane/internal/oscillator"
)

// ConfigurationError reports malformed construction parameters or malformed
// per-call inputs (raw mass, item weight, lane index).
//
// Configuration errors include:
//   - Bias vector length mismatch or unusable bias entries
//   - Redistribution matrix that is not n x n or not row-stochastic
//   - Invalid ratio, priority, floor or oscillator constants
//   - Empty, duplicate or unnamed categories
//   - Non-finite or negative raw mass and item weight
//
// ConfigurationError is always returned before any engine state changes.
type ConfigurationError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Field names the offending parameter, when there is one.
	Field string

	// Err is the underlying validation error, if any.
	Err error
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeBiasLength indicates the bias vector length differs from the
	// category count.
	ErrCodeBiasLength ConfigErrorCode = "BIAS_LENGTH"

	// ErrCodeInvalidBias indicates bias entries that cannot be normalized.
	ErrCodeInvalidBias ConfigErrorCode = "INVALID_BIAS"

	// ErrCodeInvalidMatrix indicates a malformed redistribution matrix.
	ErrCodeInvalidMatrix ConfigErrorCode = "INVALID_MATRIX"

	// ErrCodeInvalidRatio indicates a non-positive or non-finite ratio.
	ErrCodeInvalidRatio ConfigErrorCode = "INVALID_RATIO"

	// ErrCodeInvalidTopology indicates bad category or lane declarations.
	ErrCodeInvalidTopology ConfigErrorCode = "INVALID_TOPOLOGY"

	// ErrCodeInvalidParameter covers the remaining scalar constants.
	ErrCodeInvalidParameter ConfigErrorCode = "INVALID_PARAMETER"

	// ErrCodeInvalidMass indicates an unusable raw mass passed to Step.
	ErrCodeInvalidMass ConfigErrorCode = "INVALID_MASS"

	// ErrCodeInvalidItem indicates an unusable work item passed to Submit.
	ErrCodeInvalidItem ConfigErrorCode = "INVALID_ITEM"

	// ErrCodeLaneIndex indicates a lane index outside the category.
	ErrCodeLaneIndex ConfigErrorCode = "LANE_INDEX"
)

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Field != "" {
		fmt.Fprintf(&b, " (field=%s)", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying validation error for errors.Is.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UnknownCategoryError is returned when a category name is not configured.
type UnknownCategoryError struct {
	Category string
}

// Error implements the error interface.
func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q", e.Category)
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsUnknownCategoryError returns true if err is or wraps an
// UnknownCategoryError.
func IsUnknownCategoryError(err error) bool {
	var ue *UnknownCategoryError
	return errors.As(err, &ue)
}

// ConfigErrorCodeOf returns the code of a wrapped ConfigurationError, or "".
func ConfigErrorCodeOf(err error) ConfigErrorCode {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// NewConfigurationError creates a ConfigurationError without an underlying
// cause. Used by the config package for semantic checks.
func NewConfigurationError(code ConfigErrorCode, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// classify maps allocator and oscillator validation errors to codes.
func classify(field string, err error) *ConfigurationError {
	code := ErrCodeInvalidParameter
	switch {
	case errors.Is(err, alloc.ErrBiasLength):
		code = ErrCodeBiasLength
	case errors.Is(err, alloc.ErrInvalidBias):
		code = ErrCodeInvalidBias
	case errors.Is(err, alloc.ErrMatrixShape), errors.Is(err, alloc.ErrMatrixRow):
		code = ErrCodeInvalidMatrix
	case errors.Is(err, alloc.ErrInvalidRatio):
		code = ErrCodeInvalidRatio
	case errors.Is(err, alloc.ErrInvalidCount):
		code = ErrCodeInvalidTopology
	case errors.Is(err, alloc.ErrInvalidMass):
		code = ErrCodeInvalidMass
	case errors.Is(err, oscillator.ErrInvalidParams):
		code = ErrCodeInvalidParameter
	}
	return &ConfigurationError{
		Code:    code,
		Message: "invalid " + field,
		Field:   field,
		Err:     err,
	}
}
