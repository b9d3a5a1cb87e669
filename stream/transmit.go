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

// WriteStream transmits buf on a transmit stream and returns the number of
// elements the transport accepted.
//
// The first successful write after setup or after a burst end opens a new
// burst. With FlagHasTime the block is scheduled at timeNs, otherwise it is
// sent as soon as possible. FlagEndBurst closes the burst before returning;
// if that fails the accepted count is returned together with the error and
// the burst stays open.
//
// A failed write, timeout included, leaves the burst state unchanged. For
// CF32 streams at most one MTU of samples is converted per call.
func (e *Engine) WriteStream(ctx context.Context, h *Handle, buf sample.Buffer, flags Flags, timeNs int64, timeout time.Duration) (int, error) {
	s, err := e.acquire(h)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	if h.dir != hal.DirectionTX {
		return 0, fmt.Errorf("%w: write on %s stream", pkg.ErrNotSupported, h.dir)
	}
	native, floats, err := split(buf, h.format)
	if err != nil {
		return 0, err
	}
	count := buf.Len()
	if count == 0 {
		return 0, pkg.ErrBufferTooSmall
	}

	tx := &e.tx

	var md hal.Metadata
	if flags&FlagHasTime != 0 {
		md.Timestamp = tx.clock.Ticks(timeNs)
	} else {
		md.Flags |= hal.MetaFlagTxNow
	}

	src := []int16(native)
	if floats != nil {
		count = min(count, h.MTU())
		e.toFixed(tx.conv, floats, count)
		src = tx.conv
	}

	starting := !tx.inBurst
	if starting {
		md.Flags |= hal.MetaFlagTxBurstStart
	}

	if err := e.transport.SyncTX(ctx, src, count, &md, timeout); err != nil {
		if errors.Is(err, pkg.ErrTimeout) {
			e.metrics.Transfer(h.dir.String(), metrics.ResultOf(err), 0)
			return 0, pkg.ErrTimeout
		}
		err = fmt.Errorf("%w: %w", pkg.ErrStream, err)
		e.metrics.Transfer(h.dir.String(), metrics.ResultOf(err), 0)
		pkg.LogError(pkg.ComponentTX, "transport transmit failed",
			"stream", h,
			"error", err)
		return 0, err
	}

	if starting {
		e.metrics.Burst(metrics.BurstStart)
	}
	tx.inBurst = true

	n := min(max(md.ActualCount, 0), count)

	var burstErr error
	if flags&FlagEndBurst != 0 {
		burstErr = e.endBurst(ctx)
	}

	if md.Status&hal.MetaStatusUnderrun != 0 {
		pkg.LogMarker(pkg.ComponentTX, pkg.MarkerUnderrun, "tick", md.Timestamp)
		tx.underflow = true
		e.metrics.Underflow()
	}

	// The samples went out even if closing the burst failed.
	e.metrics.Transfer(h.dir.String(), metrics.ResultOf(nil), n)
	return n, burstErr
}
