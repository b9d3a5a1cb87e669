package stream

import (
	"fmt"
	"sync"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/pkg/metrics"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream/hal"
)

// DefaultSampleRate is the sample rate assumed for a direction until one is
// set, in samples per second.
const DefaultSampleRate = 1e6

// Direction aliases for callers that only import this package.
const (
	RX = hal.DirectionRX
	TX = hal.DirectionTX
)

// Engine streams sample blocks to and from a transport.
//
// Each direction holds at most one stream. Calls on the same direction are
// serialized; receive and transmit proceed independently.
type Engine struct {
	transport hal.Transport
	metrics   *metrics.Metrics

	// Burst end attempts before giving up on timeouts (0 = unbounded)
	burstEndRetries int

	// Float to fixed conversion used on the transmit path
	toFixed func(dst []int16, src []float32, n int)

	rx rxState
	tx txState
}

// side holds the state common to both directions. Fields are guarded by mu.
type side struct {
	mu     sync.Mutex
	handle *Handle
	clock  Clock
	conv   []int16 // Scratch buffer for non-native formats
}

type rxState struct {
	side
	cmds      commandQueue
	overflow  bool
	nextTicks uint64 // Tick following the block that reported overrun
}

type txState struct {
	side
	inBurst   bool
	underflow bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSampleRate sets the initial sample rate for dir. Non-positive rates
// are ignored.
func WithSampleRate(dir hal.Direction, rate float64) Option {
	return func(e *Engine) {
		if s := e.side(dir); s != nil && rate > 0 {
			s.clock = NewClock(rate)
		}
	}
}

// WithMetrics records engine activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithBurstEndRetries bounds the number of burst end attempts made while the
// transport keeps timing out. Zero retries until success, a hard error or
// context cancellation.
func WithBurstEndRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.burstEndRetries = n
		}
	}
}

// WithSaturation selects clamping float to fixed conversion on transmit
// instead of plain truncation.
func WithSaturation(enable bool) Option {
	return func(e *Engine) {
		if enable {
			e.toFixed = sample.ToFixedSaturate
		} else {
			e.toFixed = sample.ToFixed
		}
	}
}

// New creates an engine driving t.
func New(t hal.Transport, opts ...Option) *Engine {
	e := &Engine{
		transport: t,
		toFixed:   sample.ToFixed,
	}
	e.rx.clock = NewClock(DefaultSampleRate)
	e.tx.clock = NewClock(DefaultSampleRate)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSampleRate sets the rate used to translate between host nanoseconds and
// hardware ticks for dir.
func (e *Engine) SetSampleRate(dir hal.Direction, rate float64) error {
	s := e.side(dir)
	if s == nil {
		return fmt.Errorf("%w: direction %d", pkg.ErrInvalidParameter, dir)
	}
	if !(rate > 0) {
		return fmt.Errorf("%w: sample rate %v", pkg.ErrInvalidParameter, rate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = NewClock(rate)
	return nil
}

// SampleRate returns the sample rate for dir, or 0 for an invalid direction.
func (e *Engine) SampleRate(dir hal.Direction) float64 {
	s := e.side(dir)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Rate()
}

func (e *Engine) side(dir hal.Direction) *side {
	switch dir {
	case hal.DirectionRX:
		return &e.rx.side
	case hal.DirectionTX:
		return &e.tx.side
	default:
		return nil
	}
}

// acquire locks the side owning h. On success the caller must unlock.
func (e *Engine) acquire(h *Handle) (*side, error) {
	if h == nil {
		return nil, pkg.ErrInvalidHandle
	}
	s := e.side(h.dir)
	if s == nil {
		return nil, pkg.ErrInvalidHandle
	}
	s.mu.Lock()
	if s.handle != h || h.closed {
		s.mu.Unlock()
		return nil, pkg.ErrInvalidHandle
	}
	return s, nil
}
