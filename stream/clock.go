package stream

import "math"

// Clock converts between host nanoseconds and hardware ticks at a fixed
// sample rate. Conversions round to the nearest unit.
type Clock struct {
	rate float64
}

// NewClock returns a clock ticking at rate samples per second.
func NewClock(rate float64) Clock {
	return Clock{rate: rate}
}

// Rate returns the sample rate.
func (c Clock) Rate() float64 {
	return c.rate
}

// Ticks converts host time ns to ticks. Negative times map to tick 0.
func (c Clock) Ticks(ns int64) uint64 {
	if ns <= 0 || c.rate <= 0 {
		return 0
	}
	return uint64(math.Round(float64(ns) * c.rate / 1e9))
}

// Nanos converts ticks to host nanoseconds.
func (c Clock) Nanos(ticks uint64) int64 {
	if c.rate <= 0 {
		return 0
	}
	return int64(math.Round(float64(ticks) * 1e9 / c.rate))
}
