package stream

import (
	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/stream/hal"
)

// ReadStreamStatus reports a pending transmit underflow once, as
// pkg.ErrUnderflow, and returns nil when nothing is pending. It never
// blocks or touches the transport. Receive streams have no status to
// report; overflows surface through ReadStream.
func (e *Engine) ReadStreamStatus(h *Handle) error {
	s, err := e.acquire(h)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if h.dir == hal.DirectionTX && e.tx.underflow {
		e.tx.underflow = false
		return pkg.ErrUnderflow
	}
	return nil
}
