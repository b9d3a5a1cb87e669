package stream

// Flags annotate stream calls and results.
type Flags uint32

// Stream flags.
const (
	// FlagEndBurst closes the transmit burst after this write.
	FlagEndBurst Flags = 1 << 1
	// FlagHasTime marks a valid timestamp: the requested start time on
	// activate and write, the time of the first sample on read.
	FlagHasTime Flags = 1 << 2
)

// ReadResult describes the outcome of [Engine.ReadStream].
type ReadResult struct {
	N      int   // Elements received
	Flags  Flags // FlagHasTime when TimeNs is valid
	TimeNs int64 // Host time of the first element, or of the overflow
}
