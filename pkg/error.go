package pkg

import "errors"

// Stream setup errors.
var (
	// ErrInvalidChannelSelection indicates a channel list other than {} or {0}.
	ErrInvalidChannelSelection = errors.New("invalid channel selection")

	// ErrUnsupportedFormat indicates a wire format the engine cannot negotiate.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrTransportConfig indicates the transport rejected configuration or
	// module enable/disable.
	ErrTransportConfig = errors.New("transport configuration failed")

	// ErrStreamActive indicates a stream is already set up for the direction.
	ErrStreamActive = errors.New("stream already active")

	// ErrInvalidHandle indicates a closed or foreign stream handle.
	ErrInvalidHandle = errors.New("invalid stream handle")
)

// Stream transfer errors.
var (
	// ErrTimeout indicates a transfer timeout. It is transient and retryable.
	ErrTimeout = errors.New("transfer timeout")

	// ErrStream indicates a transport-level transfer failure.
	ErrStream = errors.New("stream error")

	// ErrOverflow reports a receive overrun. It is advisory: the stream
	// remains usable and the next read proceeds normally.
	ErrOverflow = errors.New("stream overflow")

	// ErrUnderflow reports a transmit underrun. It is advisory.
	ErrUnderflow = errors.New("stream underflow")

	// ErrFormatMismatch indicates a caller buffer whose sample format differs
	// from the format negotiated at setup.
	ErrFormatMismatch = errors.New("buffer format mismatch")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// General errors.
var (
	// ErrNotSupported indicates an unsupported operation or flag combination.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotRunning indicates the transport module for a direction is not
	// enabled.
	ErrNotRunning = errors.New("not running")
)

// Status classifies the result of a stream operation.
type Status int

// Status values.
const (
	StatusOK           Status = iota // Operation completed successfully
	StatusTimeout                    // Transfer timed out; retryable
	StatusStreamError                // Transport-level failure
	StatusOverflow                   // Receive overflow reported
	StatusNotSupported               // Unsupported operation or flags
	StatusUnderflow                  // Transmit underflow reported
	StatusError                      // Any other failure
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusStreamError:
		return "stream error"
	case StatusOverflow:
		return "overflow"
	case StatusNotSupported:
		return "not supported"
	case StatusUnderflow:
		return "underflow"
	default:
		return "error"
	}
}

// Code returns the conventional integer result code for the status, as used
// by C-style SDR stream APIs (negative values are errors).
func (s Status) Code() int {
	switch s {
	case StatusOK:
		return 0
	case StatusTimeout:
		return -1
	case StatusStreamError:
		return -2
	case StatusOverflow:
		return -4
	case StatusNotSupported:
		return -5
	case StatusUnderflow:
		return -7
	default:
		return -2
	}
}

// StatusOf classifies err. A nil error is StatusOK.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrOverflow):
		return StatusOverflow
	case errors.Is(err, ErrUnderflow):
		return StatusUnderflow
	case errors.Is(err, ErrNotSupported):
		return StatusNotSupported
	case errors.Is(err, ErrStream):
		return StatusStreamError
	default:
		return StatusError
	}
}
