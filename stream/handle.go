package stream

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream/hal"
)

// Handle identifies a stream returned by [Engine.SetupStream]. It is only
// valid with the engine that created it, until [Engine.CloseStream].
type Handle struct {
	id       uuid.UUID
	dir      hal.Direction
	format   sample.Format
	tunables Tunables

	closed bool // guarded by the owning side's mutex
}

// ID returns the stream's unique identifier.
func (h *Handle) ID() uuid.UUID { return h.id }

// Direction returns the stream direction.
func (h *Handle) Direction() hal.Direction { return h.dir }

// Format returns the negotiated caller-side sample format.
func (h *Handle) Format() sample.Format { return h.format }

// Tunables returns the transport tunables negotiated at setup.
func (h *Handle) Tunables() Tunables { return h.tunables }

// MTU returns the negotiated block size in samples.
func (h *Handle) MTU() int { return h.tunables.BufferLen }

// String returns a short description for logs.
func (h *Handle) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%s/%s", h.dir, h.format, h.id.String()[:8])
}
