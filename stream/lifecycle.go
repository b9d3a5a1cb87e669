package stream

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream/hal"
)

// SetupStream configures the transport for dir and enables its module.
//
// The only supported channel selection is the single channel 0, given as an
// empty or one-element list. format is "CS16" (native) or "CF32". args sets
// the transport tunables, see [ResolveTunables].
func (e *Engine) SetupStream(dir hal.Direction, format string, channels []int, args Args) (*Handle, error) {
	s := e.side(dir)
	if s == nil {
		return nil, fmt.Errorf("%w: direction %d", pkg.ErrInvalidParameter, dir)
	}
	if len(channels) > 1 || (len(channels) == 1 && channels[0] != 0) {
		return nil, fmt.Errorf("%w: %v", pkg.ErrInvalidChannelSelection, channels)
	}
	f, err := sample.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	tun, err := ResolveTunables(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrStreamActive, dir)
	}

	cfg := hal.Config{
		Format:    hal.FormatSC16Q11Meta,
		Buffers:   tun.Buffers,
		BufferLen: tun.BufferLen,
		Transfers: tun.Transfers,
		Timeout:   TransportTimeout,
	}
	if err := e.transport.Configure(dir, cfg); err != nil {
		pkg.LogError(pkg.ComponentStream, "transport configure failed",
			"direction", dir,
			"error", err)
		return nil, fmt.Errorf("%w: configure %s: %w", pkg.ErrTransportConfig, dir, err)
	}

	// Enable here and only here; the module stays on until CloseStream.
	if err := e.transport.EnableModule(dir, true); err != nil {
		pkg.LogError(pkg.ComponentStream, "transport enable failed",
			"direction", dir,
			"error", err)
		return nil, fmt.Errorf("%w: enable %s: %w", pkg.ErrTransportConfig, dir, err)
	}

	h := &Handle{
		id:       uuid.New(),
		dir:      dir,
		format:   f,
		tunables: tun,
	}
	s.handle = h
	s.conv = nil
	if !f.Native() {
		s.conv = make([]int16, 2*tun.BufferLen)
	}

	switch dir {
	case hal.DirectionRX:
		e.rx.overflow = false
		e.rx.nextTicks = 0
		e.rx.cmds.reset()
		e.metrics.RXCommands(0)
	case hal.DirectionTX:
		e.tx.underflow = false
		e.tx.inBurst = false
	}

	pkg.LogInfo(pkg.ComponentStream, "stream setup",
		"stream", h,
		"buffers", tun.Buffers,
		"buflen", tun.BufferLen,
		"transfers", tun.Transfers)
	return h, nil
}

// CloseStream disables the module for the handle's direction and releases
// the handle. If the transport fails to disable the module the handle stays
// valid and the close may be retried.
func (e *Engine) CloseStream(h *Handle) error {
	s, err := e.acquire(h)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if err := e.transport.EnableModule(h.dir, false); err != nil {
		pkg.LogError(pkg.ComponentStream, "transport disable failed",
			"stream", h,
			"error", err)
		return fmt.Errorf("%w: disable %s: %w", pkg.ErrTransportConfig, h.dir, err)
	}

	if h.dir == hal.DirectionRX {
		e.rx.cmds.reset()
		e.metrics.RXCommands(0)
	}
	h.closed = true
	s.handle = nil
	s.conv = nil

	pkg.LogInfo(pkg.ComponentStream, "stream closed", "stream", h)
	return nil
}

// StreamMTU returns the block size in samples negotiated for h, or 0 for a
// nil handle.
func (e *Engine) StreamMTU(h *Handle) int {
	if h == nil {
		return 0
	}
	return h.MTU()
}

// ActivateStream arms the stream.
//
// On receive it queues a command: reception starts at timeNs when flags has
// FlagHasTime, immediately otherwise, and delivers numElems elements before
// the command retires (0 streams until deactivated). Transmit accepts no
// flags; bursts start implicitly with the first write.
func (e *Engine) ActivateStream(h *Handle, flags Flags, timeNs int64, numElems int) error {
	s, err := e.acquire(h)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if numElems < 0 {
		return fmt.Errorf("%w: numElems %d", pkg.ErrInvalidParameter, numElems)
	}

	switch h.dir {
	case hal.DirectionRX:
		e.rx.cmds.push(Command{
			Flags:     flags,
			TimeNs:    timeNs,
			NumElems:  numElems,
			Remaining: numElems,
		})
		e.metrics.RXCommands(e.rx.cmds.size())
		pkg.LogDebug(pkg.ComponentRX, "command queued",
			"stream", h,
			"flags", flags,
			"timeNs", timeNs,
			"numElems", numElems)
	case hal.DirectionTX:
		if flags != 0 {
			return fmt.Errorf("%w: activate flags 0x%x", pkg.ErrNotSupported, uint32(flags))
		}
	}
	return nil
}

// DeactivateStream disarms the stream. Receive drops every queued command;
// transmit closes an open burst, returning the burst end error if it fails.
// No flags are supported.
func (e *Engine) DeactivateStream(ctx context.Context, h *Handle, flags Flags, timeNs int64) error {
	s, err := e.acquire(h)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if flags != 0 {
		return fmt.Errorf("%w: deactivate flags 0x%x", pkg.ErrNotSupported, uint32(flags))
	}

	switch h.dir {
	case hal.DirectionRX:
		e.rx.cmds.reset()
		e.metrics.RXCommands(0)
	case hal.DirectionTX:
		if e.tx.inBurst {
			return e.endBurst(ctx)
		}
	}
	return nil
}
