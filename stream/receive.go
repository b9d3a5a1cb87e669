package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/pkg/metrics"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream/hal"
)

// ReadStream receives up to buf.Len() elements on a receive stream, serving
// the command at the head of the queue.
//
// With no command queued the receiver is unarmed and ReadStream returns
// pkg.ErrTimeout without touching the transport. A pending overflow is
// reported once as pkg.ErrOverflow, with the result carrying the time at
// which samples were lost. Transport timeouts return pkg.ErrTimeout and
// leave the command in place; other transport failures return pkg.ErrStream
// and retire a finite command.
//
// For CF32 streams at most one MTU of samples is converted per call.
func (e *Engine) ReadStream(ctx context.Context, h *Handle, buf sample.Buffer, timeout time.Duration) (ReadResult, error) {
	s, err := e.acquire(h)
	if err != nil {
		return ReadResult{}, err
	}
	defer s.mu.Unlock()

	if h.dir != hal.DirectionRX {
		return ReadResult{}, fmt.Errorf("%w: read on %s stream", pkg.ErrNotSupported, h.dir)
	}
	native, floats, err := split(buf, h.format)
	if err != nil {
		return ReadResult{}, err
	}
	count := buf.Len()
	if count == 0 {
		return ReadResult{}, pkg.ErrBufferTooSmall
	}

	rx := &e.rx
	cmd := rx.cmds.front()
	if cmd == nil {
		e.metrics.Transfer(h.dir.String(), metrics.ResultOf(pkg.ErrTimeout), 0)
		return ReadResult{}, pkg.ErrTimeout
	}

	if rx.overflow {
		rx.overflow = false
		e.metrics.Transfer(h.dir.String(), metrics.ResultOf(pkg.ErrOverflow), 0)
		return ReadResult{Flags: FlagHasTime, TimeNs: rx.clock.Nanos(rx.nextTicks)}, pkg.ErrOverflow
	}

	var md hal.Metadata
	if cmd.Flags&FlagHasTime == 0 {
		md.Flags |= hal.MetaFlagRxNow
	} else {
		md.Timestamp = rx.clock.Ticks(cmd.TimeNs)
	}
	if cmd.Finite() && cmd.Remaining < count {
		count = cmd.Remaining
	}

	dst := []int16(native)
	if floats != nil {
		dst = rx.conv
		count = min(count, h.MTU())
	}

	err = e.transport.SyncRX(ctx, dst, count, &md, timeout)
	if errors.Is(err, pkg.ErrTimeout) {
		// Untouched, so a retry keeps the start time.
		e.metrics.Transfer(h.dir.String(), metrics.ResultOf(err), 0)
		return ReadResult{}, pkg.ErrTimeout
	}
	cmd.Flags = 0
	if err != nil {
		// A failed finite burst is abandoned rather than retried.
		if cmd.Finite() {
			rx.cmds.popFront()
			e.metrics.RXCommands(rx.cmds.size())
		}
		err = fmt.Errorf("%w: %w", pkg.ErrStream, err)
		e.metrics.Transfer(h.dir.String(), metrics.ResultOf(err), 0)
		pkg.LogError(pkg.ComponentRX, "transport receive failed",
			"stream", h,
			"error", err)
		return ReadResult{}, err
	}

	n := min(max(md.ActualCount, 0), count)
	if floats != nil {
		sample.ToFloat(floats, dst, n)
	}

	res := ReadResult{
		N:      n,
		Flags:  FlagHasTime,
		TimeNs: rx.clock.Nanos(md.Timestamp),
	}

	if md.Status&hal.MetaStatusOverrun != 0 {
		pkg.LogMarker(pkg.ComponentRX, pkg.MarkerOverrun, "tick", md.Timestamp)
		rx.nextTicks = md.Timestamp + uint64(n)
		rx.overflow = true
		e.metrics.Overflow()
	}

	if cmd.Finite() {
		cmd.Remaining -= n
		if cmd.Remaining <= 0 {
			rx.cmds.popFront()
			e.metrics.RXCommands(rx.cmds.size())
		}
	}

	e.metrics.Transfer(h.dir.String(), metrics.ResultOf(nil), n)
	return res, nil
}

// split unpacks buf into its concrete slice, checking it matches want.
func split(buf sample.Buffer, want sample.Format) (sample.CS16, sample.CF32, error) {
	switch b := buf.(type) {
	case sample.CS16:
		if want == sample.FormatCS16 {
			return b, nil, nil
		}
	case sample.CF32:
		if want == sample.FormatCF32 {
			return nil, b, nil
		}
	}
	got := "nil"
	if buf != nil {
		got = buf.Format().String()
	}
	return nil, nil, fmt.Errorf("%w: %s buffer on %s stream", pkg.ErrFormatMismatch, got, want)
}
