package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/pkg/metrics"
	"github.com/ardnew/softrf/stream/hal"
)

// burstEndTimeout bounds each burst end attempt.
const burstEndTimeout = time.Second

// endBurst sends the burst end marker: a single zero sample flagged
// MetaFlagTxBurstEnd. Timeouts mean the device is busy and are retried.
// The burst closes only when the marker is accepted; any other outcome
// leaves it open and is returned. The caller holds e.tx.mu.
func (e *Engine) endBurst(ctx context.Context) error {
	var marker [2]int16

	for attempt := 1; ; attempt++ {
		md := hal.Metadata{Flags: hal.MetaFlagTxBurstEnd}
		err := e.transport.SyncTX(ctx, marker[:], 1, &md, burstEndTimeout)
		if err == nil {
			e.tx.inBurst = false
			e.metrics.Burst(metrics.BurstEnd)
			pkg.LogDebug(pkg.ComponentBurst, "burst ended", "attempts", attempt)
			return nil
		}

		if !errors.Is(err, pkg.ErrTimeout) {
			pkg.LogError(pkg.ComponentBurst, "burst end failed",
				"attempt", attempt,
				"error", err)
			return fmt.Errorf("%w: burst end: %w", pkg.ErrStream, err)
		}
		if e.burstEndRetries > 0 && attempt >= e.burstEndRetries {
			pkg.LogError(pkg.ComponentBurst, "burst end timed out",
				"attempts", attempt)
			return fmt.Errorf("%w: burst end: %d attempts timed out", pkg.ErrStream, attempt)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: burst end: %w", pkg.ErrStream, ctxErr)
		}

		e.metrics.BurstEndRetry()
		pkg.LogDebug(pkg.ComponentBurst, "burst end busy, retrying", "attempt", attempt)
	}
}
