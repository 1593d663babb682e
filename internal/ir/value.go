package ir

import (
	"math"
	"slices"
	"unicode/utf16"
)

// MicroScale is the fixed-point scale applied to reals before they enter the
// canonical form. Six decimals matches the rounding used by tick reports.
const MicroScale = 1_000_000

// IRValue is a sealed interface over the canonical value types.
// Only IRString, IRInt, IRBool, IRArray and IRObject implement it.
type IRValue interface {
	irValue()
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Reals are converted with Micro.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Micro converts a real into integer micro-units, rounding half away from
// zero. NaN maps to 0 and infinities saturate.
func Micro(v float64) IRInt {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64/MicroScale:
		return IRInt(math.MaxInt64)
	case v <= math.MinInt64/MicroScale:
		return IRInt(math.MinInt64)
	}
	return IRInt(math.Round(v * MicroScale))
}

// FromMicro converts micro-units back into a real.
func FromMicro(n int64) float64 {
	return float64(n) / MicroScale
}

// Strings builds an IRArray of IRString values.
func Strings(ss ...string) IRArray {
	arr := make(IRArray, len(ss))
	for i, s := range ss {
		arr[i] = IRString(s)
	}
	return arr
}

// Ints builds an IRArray of IRInt values.
func Ints(ns ...int64) IRArray {
	arr := make(IRArray, len(ns))
	for i, n := range ns {
		arr[i] = IRInt(n)
	}
	return arr
}

// Reals builds an IRArray of micro-unit IRInt values.
func Reals(vs ...float64) IRArray {
	arr := make(IRArray, len(vs))
	for i, v := range vs {
		arr[i] = Micro(v)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's native string ordering is UTF-8 and differs for supplementary planes.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
