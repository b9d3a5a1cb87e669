package stream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ardnew/softrf/pkg"
)

// Args are stream setup options as key/value strings.
type Args map[string]string

// Recognized setup keys.
const (
	ArgBuffers   = "buffers"   // Number of transport buffers
	ArgBufferLen = "buflen"    // Samples per buffer
	ArgTransfers = "transfers" // Transfers in flight
)

// Tunable defaults and limits.
const (
	DefaultBuffers   = 32
	DefaultBufferLen = 4096
	BufferLenQuantum = 1024
	MaxTransfers     = 32 // Transport limit on in-flight transfers

	// TransportTimeout is the transport's internal transfer timeout.
	TransportTimeout = time.Second
)

// Tunables are the normalized transport pool parameters.
type Tunables struct {
	Buffers   int
	BufferLen int
	Transfers int
}

// ResolveTunables reads the pool parameters from args, applying defaults and
// normalization:
//
//   - buffers defaults to [DefaultBuffers]; 1 becomes 2, since a single
//     buffer cannot pipeline
//   - buflen defaults to [DefaultBufferLen] and is rounded up to a multiple
//     of [BufferLenQuantum]
//   - transfers defaults to half the buffers and is clamped to the buffer
//     count and to [MaxTransfers]
//
// Missing or empty values, and zero, select the default.
func ResolveTunables(args Args) (Tunables, error) {
	buffers, err := args.intArg(ArgBuffers)
	if err != nil {
		return Tunables{}, err
	}
	if buffers == 0 {
		buffers = DefaultBuffers
	}
	if buffers == 1 {
		buffers++
	}

	buflen, err := args.intArg(ArgBufferLen)
	if err != nil {
		return Tunables{}, err
	}
	if buflen == 0 {
		buflen = DefaultBufferLen
	}
	if buflen%BufferLenQuantum != 0 {
		buflen = (buflen/BufferLenQuantum + 1) * BufferLenQuantum
	}

	transfers, err := args.intArg(ArgTransfers)
	if err != nil {
		return Tunables{}, err
	}
	if transfers == 0 {
		transfers = buffers / 2
	}
	if transfers > buffers {
		transfers = buffers
	}
	if transfers > MaxTransfers {
		transfers = MaxTransfers
	}

	return Tunables{Buffers: buffers, BufferLen: buflen, Transfers: transfers}, nil
}

func (a Args) intArg(key string) (int, error) {
	v := strings.TrimSpace(a[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", pkg.ErrInvalidParameter, key, a[key])
	}
	return n, nil
}
