package sample

import (
	"fmt"

	"github.com/ardnew/softrf/pkg"
)

// Format identifies a caller-side sample representation.
type Format uint8

// Supported formats.
const (
	FormatUnknown Format = iota
	FormatCS16           // Complex int16, device native
	FormatCF32           // Complex float32
)

// Format names as they appear in stream setup and configuration.
const (
	NameCS16 = "CS16"
	NameCF32 = "CF32"
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCS16:
		return NameCS16
	case FormatCF32:
		return NameCF32
	default:
		return "unknown"
	}
}

// Native reports whether the format matches the device representation, in
// which case no conversion is needed.
func (f Format) Native() bool {
	return f == FormatCS16
}

// ParseFormat returns the Format for name.
func ParseFormat(name string) (Format, error) {
	switch name {
	case NameCS16:
		return FormatCS16, nil
	case NameCF32:
		return FormatCF32, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", pkg.ErrUnsupportedFormat, name)
	}
}

// Buffer is a caller-provided block of interleaved complex samples.
type Buffer interface {
	// Format returns the sample representation of the buffer.
	Format() Format
	// Len returns the capacity of the buffer in complex elements.
	Len() int
}

// CS16 is a block of interleaved complex int16 samples.
type CS16 []int16

// Format returns FormatCS16.
func (CS16) Format() Format { return FormatCS16 }

// Len returns the number of complex elements.
func (b CS16) Len() int { return len(b) / 2 }

// CF32 is a block of interleaved complex float32 samples.
type CF32 []float32

// Format returns FormatCF32.
func (CF32) Format() Format { return FormatCF32 }

// Len returns the number of complex elements.
func (b CF32) Len() int { return len(b) / 2 }

// NewBuffer allocates a zeroed buffer of n complex elements in format f.
// It returns nil for an unknown format.
func NewBuffer(f Format, n int) Buffer {
	switch f {
	case FormatCS16:
		return make(CS16, 2*n)
	case FormatCF32:
		return make(CF32, 2*n)
	default:
		return nil
	}
}
