package hal

// Timeline places transmit blocks on the hardware tick axis.
//
// A block flagged MetaFlagTxNow, or carrying a timestamp at or before the
// next free tick, continues contiguously after the previous block. A later
// timestamp moves the timeline forward; inside an open burst that leaves a
// gap the hardware would have filled with nothing, which is an underrun.
// The zero value starts at tick 0 with no burst open.
type Timeline struct {
	next    uint64
	inBurst bool
}

// Place positions a block of count samples described by md and returns its
// first tick. gap reports a timestamp discontinuity inside an open burst.
func (t *Timeline) Place(md *Metadata, count int) (tick uint64, gap bool) {
	tick = t.next
	if md.Flags&MetaFlagTxNow == 0 && md.Timestamp > tick {
		gap = t.inBurst && md.Flags&MetaFlagTxBurstStart == 0
		tick = md.Timestamp
	}
	if md.Flags&MetaFlagTxBurstStart != 0 {
		t.inBurst = true
	}
	t.next = tick + uint64(max(count, 0))
	if md.Flags&MetaFlagTxBurstEnd != 0 {
		t.inBurst = false
	}
	return tick, gap
}

// Next returns the tick following the last placed block.
func (t *Timeline) Next() uint64 { return t.next }

// InBurst reports whether a burst is open.
func (t *Timeline) InBurst() bool { return t.inBurst }

// Reset closes any open burst, keeping the tick position.
func (t *Timeline) Reset() { t.inBurst = false }
