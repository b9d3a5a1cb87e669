package hal

import (
	"context"
	"time"
)

// Direction selects the receive or transmit module of the front-end.
type Direction uint8

// Stream directions.
const (
	DirectionRX Direction = iota // Device to host
	DirectionTX                  // Host to device
)

// String returns a short direction name.
func (d Direction) String() string {
	switch d {
	case DirectionRX:
		return "rx"
	case DirectionTX:
		return "tx"
	default:
		return "unknown"
	}
}

// Valid reports whether d is DirectionRX or DirectionTX.
func (d Direction) Valid() bool {
	return d == DirectionRX || d == DirectionTX
}

// WireFormat is the sample encoding exchanged with the transport.
type WireFormat uint8

// Wire formats.
const (
	// FormatSC16Q11Meta is interleaved int16 I/Q in Q11 with a metadata
	// record (timestamp, flags, status) attached to every transfer.
	FormatSC16Q11Meta WireFormat = iota
)

// String returns the wire format name.
func (f WireFormat) String() string {
	switch f {
	case FormatSC16Q11Meta:
		return "SC16_Q11_META"
	default:
		return "unknown"
	}
}

// Config holds the per-direction transport configuration negotiated at
// stream setup.
type Config struct {
	Format    WireFormat    // Sample encoding
	Buffers   int           // Number of buffers in the transport pool
	BufferLen int           // Samples per buffer
	Transfers int           // Transfers in flight
	Timeout   time.Duration // Internal transfer timeout
}

// MetaFlags annotate a transfer request.
type MetaFlags uint32

// Metadata flags.
const (
	// MetaFlagTxBurstStart marks the first transfer of a burst.
	MetaFlagTxBurstStart MetaFlags = 1 << 0
	// MetaFlagTxBurstEnd marks the final transfer of a burst.
	MetaFlagTxBurstEnd MetaFlags = 1 << 1
	// MetaFlagTxNow transmits immediately, ignoring the timestamp.
	MetaFlagTxNow MetaFlags = 1 << 2
	// MetaFlagRxNow receives immediately, ignoring the timestamp.
	MetaFlagRxNow MetaFlags = 1 << 31
)

// MetaStatus reports conditions observed by the transport during a transfer.
type MetaStatus uint32

// Metadata status bits.
const (
	// MetaStatusOverrun reports samples lost on the receive path before the
	// returned block.
	MetaStatusOverrun MetaStatus = 1 << 0
	// MetaStatusUnderrun reports the transmit path ran out of samples.
	MetaStatusUnderrun MetaStatus = 1 << 1
)

// Metadata accompanies every synchronous transfer. Timestamp and Flags are
// inputs; the transport fills Status, ActualCount and, for receive, the
// Timestamp of the first returned sample.
type Metadata struct {
	Timestamp   uint64     // Hardware tick of the first sample
	Flags       MetaFlags  // Request flags
	Status      MetaStatus // Reported conditions
	ActualCount int        // Samples actually transferred
}

// Transport is the synchronous block-transfer primitive that drives the
// front-end.
//
// Implementations report an expired timeout with an error matching
// pkg.ErrTimeout; any other non-nil error is a transfer failure. A transport
// is used by at most one caller per direction at a time.
type Transport interface {
	// Configure prepares the direction's transfer pool.
	Configure(dir Direction, cfg Config) error

	// EnableModule powers the physical module for the direction on or off.
	EnableModule(dir Direction, enable bool) error

	// SyncRX receives up to count complex samples into samples, which holds
	// at least 2*count components.
	SyncRX(ctx context.Context, samples []int16, count int, md *Metadata, timeout time.Duration) error

	// SyncTX transmits count complex samples from samples.
	SyncTX(ctx context.Context, samples []int16, count int, md *Metadata, timeout time.Duration) error
}
