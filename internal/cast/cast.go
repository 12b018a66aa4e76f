// Package cast provides integer conversions that panic instead of
// silently truncating or changing sign. They are meant for values that
// are already known to be in range; data read from untrusted input must
// be range checked explicitly instead.
package cast

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Int converts v to an int.
func Int[T constraints.Integer](v T) int {
	return convert[T, int](v)
}

// Int32 converts v to an int32.
func Int32[T constraints.Integer](v T) int32 {
	return convert[T, int32](v)
}

// Int64 converts v to an int64.
func Int64[T constraints.Integer](v T) int64 {
	return convert[T, int64](v)
}

// Uint converts v to a uint.
func Uint[T constraints.Integer](v T) uint {
	return convert[T, uint](v)
}

// Uint8 converts v to a uint8.
func Uint8[T constraints.Integer](v T) uint8 {
	return convert[T, uint8](v)
}

// Uint32 converts v to a uint32.
func Uint32[T constraints.Integer](v T) uint32 {
	return convert[T, uint32](v)
}

// Uint64 converts v to a uint64.
func Uint64[T constraints.Integer](v T) uint64 {
	return convert[T, uint64](v)
}

// convert panics if v does not round-trip through U with its sign
// intact.
func convert[T, U constraints.Integer](v T) U {
	converted := U(v)
	if T(converted) != v || (v < 0) != (converted < 0) {
		panic(fmt.Sprintf("cast failed: %d does not fit in %T", v, converted))
	}
	return converted
}
