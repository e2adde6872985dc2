package mathhelp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WrapShift returns the whole number of periods to add to v to bring it into [0,1).
// Used like a REPEAT texture wrap, where only whole periods may be added.
func WrapShift[T constraints.Float](v T) T {
	return -T(math.Floor(float64(v)))
}

func EuclidianMod(d, m int) int {
	r := d % m
	if (r < 0 && m > 0) || (r > 0 && m < 0) {
		return r + m
	}
	return r
}
