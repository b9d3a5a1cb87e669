package sample

import "math"

// Scale is the number of native fixed-point units per 1.0 in float form.
//
// The converters deliver 12-bit signed values (Q11, full scale ±2048).
// 2000 maps ±1.0 slightly inside full scale.
const Scale = 2000

// ToFloat converts n complex elements from src into dst.
// Both slices must hold at least 2*n components.
func ToFloat(dst []float32, src []int16, n int) {
	src = src[:2*n]
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = float32(v) / Scale
	}
}

// ToFixed converts n complex elements from src into dst, truncating toward
// zero. Scaled values outside the int16 range are not clamped.
func ToFixed(dst []int16, src []float32, n int) {
	src = src[:2*n]
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = int16(v * Scale)
	}
}

// ToFixedSaturate is ToFixed with scaled values clamped to the int16 range.
// NaN converts to zero.
func ToFixedSaturate(dst []int16, src []float32, n int) {
	src = src[:2*n]
	dst = dst[:len(src)]
	for i, v := range src {
		s := float64(v) * Scale
		switch {
		case math.IsNaN(s):
			dst[i] = 0
		case s >= math.MaxInt16:
			dst[i] = math.MaxInt16
		case s <= math.MinInt16:
			dst[i] = math.MinInt16
		default:
			dst[i] = int16(s)
		}
	}
}
