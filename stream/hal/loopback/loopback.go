package loopback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/stream/hal"
)

// DefaultCapacity is the queue capacity in samples used until the receive
// direction is configured.
const DefaultCapacity = 32 * 4096

// defaultTimeout applies when neither the caller nor the configuration
// supplies one.
const defaultTimeout = time.Second

// EventKind classifies a recorded transport event.
type EventKind uint8

// Event kinds.
const (
	EventBurstStart EventKind = iota
	EventBurstEnd
	EventOverrun
	EventUnderrun
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventBurstStart:
		return "burst-start"
	case EventBurstEnd:
		return "burst-end"
	case EventOverrun:
		return "overrun"
	case EventUnderrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// Event is a transport occurrence at a tick.
type Event struct {
	Kind EventKind
	Tick uint64
}

// segment is a tick-contiguous run of queued samples.
type segment struct {
	tick uint64
	data []int16 // Interleaved I/Q, 2 components per sample
}

func (s segment) len() int { return len(s.data) / 2 }

// Transport is an in-process loopback transport. It is safe for concurrent
// use; RX and TX callers may run on separate goroutines.
type Transport struct {
	mu sync.Mutex

	cfg        [2]hal.Config
	configured [2]bool
	enabled    [2]bool

	segs   []segment
	queued int // Samples across segs

	timeline hal.Timeline

	overrun  bool // Report overrun on the next receive
	underrun bool // Report underrun on the next transmit

	fail   [2][]error
	calls  [2]int
	events []Event

	// Closed and replaced whenever samples are queued
	notify chan struct{}
}

// New creates a loopback transport with nothing configured or enabled.
func New() *Transport {
	return &Transport{notify: make(chan struct{})}
}

// Configure records the direction's configuration. The receive buffer pool
// size sets the queue capacity.
func (t *Transport) Configure(dir hal.Direction, cfg hal.Config) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: direction %d", pkg.ErrInvalidParameter, dir)
	}
	if cfg.Format != hal.FormatSC16Q11Meta {
		return fmt.Errorf("%w: wire format %s", pkg.ErrUnsupportedFormat, cfg.Format)
	}
	if cfg.Buffers <= 0 || cfg.BufferLen <= 0 {
		return fmt.Errorf("%w: buffers=%d buflen=%d", pkg.ErrInvalidParameter, cfg.Buffers, cfg.BufferLen)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg[dir] = cfg
	t.configured[dir] = true
	pkg.LogDebug(pkg.ComponentHAL, "loopback configured",
		"direction", dir,
		"buffers", cfg.Buffers,
		"buflen", cfg.BufferLen)
	return nil
}

// EnableModule turns a direction on or off. Disabling receive discards the
// queue; disabling transmit closes any open burst.
func (t *Transport) EnableModule(dir hal.Direction, enable bool) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: direction %d", pkg.ErrInvalidParameter, dir)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if enable && !t.configured[dir] {
		return fmt.Errorf("%w: %s not configured", pkg.ErrTransportConfig, dir)
	}
	t.enabled[dir] = enable
	if !enable {
		switch dir {
		case hal.DirectionRX:
			clear(t.segs)
			t.segs = t.segs[:0]
			t.queued = 0
			t.overrun = false
		case hal.DirectionTX:
			t.timeline.Reset()
		}
	}
	pkg.LogDebug(pkg.ComponentHAL, "loopback module", "direction", dir, "enable", enable)
	return nil
}

// SyncTX queues count samples at the tick chosen by the timeline.
func (t *Transport) SyncTX(ctx context.Context, samples []int16, count int, md *hal.Metadata, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.begin(hal.DirectionTX, samples, count); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tick, gap := t.timeline.Place(md, count)
	md.Timestamp = tick
	md.Status = 0
	if gap || t.underrun {
		t.underrun = false
		md.Status |= hal.MetaStatusUnderrun
		t.events = append(t.events, Event{Kind: EventUnderrun, Tick: tick})
	}
	if md.Flags&hal.MetaFlagTxBurstStart != 0 {
		t.events = append(t.events, Event{Kind: EventBurstStart, Tick: tick})
	}

	t.push(tick, samples[:2*count])

	if md.Flags&hal.MetaFlagTxBurstEnd != 0 {
		t.events = append(t.events, Event{Kind: EventBurstEnd, Tick: tick})
	}
	md.ActualCount = count
	return nil
}

// SyncRX returns up to count samples from the head of the queue, waiting
// for data until the timeout expires or ctx is done.
func (t *Transport) SyncRX(ctx context.Context, samples []int16, count int, md *hal.Metadata, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.begin(hal.DirectionRX, samples, count); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = t.cfg[hal.DirectionRX].Timeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	timed := md.Flags&hal.MetaFlagRxNow == 0
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if !t.enabled[hal.DirectionRX] {
			return fmt.Errorf("%w: rx disabled", pkg.ErrNotRunning)
		}
		if timed {
			t.discardBefore(md.Timestamp)
		}
		if t.queued > 0 {
			break
		}

		notify := t.notify
		t.mu.Unlock()
		var err error
		select {
		case <-notify:
		case <-timer.C:
			err = fmt.Errorf("%w: loopback rx after %v", pkg.ErrTimeout, timeout)
		case <-ctx.Done():
			err = ctx.Err()
		}
		t.mu.Lock()
		if err != nil {
			return err
		}
	}

	md.Timestamp = t.segs[0].tick
	md.ActualCount = t.pop(samples, count)
	md.Status = 0
	if t.overrun {
		t.overrun = false
		md.Status |= hal.MetaStatusOverrun
	}
	return nil
}

// begin validates a transfer request and applies scripted failures. The
// caller holds t.mu.
func (t *Transport) begin(dir hal.Direction, samples []int16, count int) error {
	t.calls[dir]++
	if !t.enabled[dir] {
		return fmt.Errorf("%w: %s disabled", pkg.ErrNotRunning, dir)
	}
	if count <= 0 || len(samples) < 2*count {
		return fmt.Errorf("%w: count %d with %d components", pkg.ErrInvalidParameter, count, len(samples))
	}
	if len(t.fail[dir]) > 0 {
		err := t.fail[dir][0]
		t.fail[dir] = t.fail[dir][1:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) capacity() int {
	if t.configured[hal.DirectionRX] {
		c := t.cfg[hal.DirectionRX]
		return c.Buffers * c.BufferLen
	}
	return DefaultCapacity
}

// push appends interleaved samples at tick, merging with the last segment
// when contiguous, and drops the oldest samples beyond capacity.
func (t *Transport) push(tick uint64, data []int16) {
	n := len(data) / 2
	if last := len(t.segs) - 1; last >= 0 && t.segs[last].tick+uint64(t.segs[last].len()) == tick {
		t.segs[last].data = append(t.segs[last].data, data...)
	} else {
		t.segs = append(t.segs, segment{tick: tick, data: append([]int16(nil), data...)})
	}
	t.queued += n

	if excess := t.queued - t.capacity(); excess > 0 {
		t.drop(excess)
		t.overrun = true
		t.events = append(t.events, Event{Kind: EventOverrun, Tick: t.segs[0].tick})
		pkg.LogDebug(pkg.ComponentHAL, "loopback overrun", "dropped", excess)
	}

	close(t.notify)
	t.notify = make(chan struct{})
}

// drop removes n samples from the head of the queue.
func (t *Transport) drop(n int) {
	for n > 0 && len(t.segs) > 0 {
		s := &t.segs[0]
		if s.len() <= n {
			n -= s.len()
			t.queued -= s.len()
			t.segs[0] = segment{}
			t.segs = t.segs[1:]
			continue
		}
		s.data = s.data[2*n:]
		s.tick += uint64(n)
		t.queued -= n
		n = 0
	}
}

// discardBefore drops queued samples earlier than tick.
func (t *Transport) discardBefore(tick uint64) {
	for len(t.segs) > 0 {
		s := t.segs[0]
		if s.tick >= tick {
			return
		}
		n := s.len()
		if d := tick - s.tick; d < uint64(n) {
			n = int(d)
		}
		t.drop(n)
	}
}

// pop copies up to count samples of the head segment into dst and returns
// the number copied.
func (t *Transport) pop(dst []int16, count int) int {
	s := &t.segs[0]
	n := min(count, s.len())
	copy(dst, s.data[:2*n])
	t.drop(n)
	return n
}

// FailNext makes the next transfers on dir fail with errs, in order. A nil
// entry lets that transfer proceed.
func (t *Transport) FailNext(dir hal.Direction, errs ...error) {
	if !dir.Valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[dir] = append(t.fail[dir], errs...)
}

// InjectOverrun reports overrun on the next successful receive.
func (t *Transport) InjectOverrun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrun = true
	t.events = append(t.events, Event{Kind: EventOverrun, Tick: t.timeline.Next()})
}

// InjectUnderrun reports underrun on the next successful transmit.
func (t *Transport) InjectUnderrun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.underrun = true
}

// Events returns a copy of the recorded events.
func (t *Transport) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Calls returns the number of transfer requests made on dir.
func (t *Transport) Calls(dir hal.Direction) int {
	if !dir.Valid() {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[dir]
}

// Queued returns the number of samples waiting to be received.
func (t *Transport) Queued() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queued
}

var _ hal.Transport = (*Transport)(nil)
