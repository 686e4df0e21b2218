// Package mathx holds small generic integer helpers used on the control-loop path.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Min returns the smaller of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// ScaleU32 maps x from [0, inSpan] onto [0, outSpan] with 64-bit intermediates.
// inSpan == 0 yields 0.
func ScaleU32(x, inSpan, outSpan uint32) uint32 {
	if inSpan == 0 {
		return 0
	}
	return uint32(uint64(x) * uint64(outSpan) / uint64(inSpan))
}
