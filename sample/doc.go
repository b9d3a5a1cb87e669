// Package sample defines the stream wire formats and converts between the
// device's native fixed-point representation and floating point.
//
// Samples are complex and interleaved: element i of a block occupies
// components 2*i (in-phase) and 2*i+1 (quadrature). Counts passed to the
// conversion functions are in elements, so a block of n elements covers
// 2*n scalar components.
//
// The native format, [FormatCS16], carries signed 12-bit converter values
// in 16-bit words (Q11). [FormatCF32] is the float32 representation scaled
// so that [Scale] fixed-point units map to 1.0.
//
//	buf := make(sample.CF32, 2*4096)
//	sample.ToFloat(buf, raw, 4096)
//
// Float to fixed conversion truncates toward zero. [ToFixed] does not clamp:
// values whose scaled magnitude exceeds the int16 range produce
// implementation-defined results. Use [ToFixedSaturate] when defined
// overflow behavior is required.
package sample
