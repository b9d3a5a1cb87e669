// Package loopback implements an in-process transport for the stream
// engine.
//
// Samples written on the transmit direction are queued with their tick
// position and returned by later receives, so a single process can exercise
// the full timed receive and burst-framed transmit paths without hardware.
//
// # Timing
//
// Transmit blocks are placed with [hal.Timeline]: "now" blocks continue at
// the tick after the previous block, timed blocks start at their timestamp.
// A timestamp that leaves a gap inside an open burst reports underrun.
// Receive blocks return the longest tick-contiguous run available at the
// head of the queue; a timed receive first discards samples before the
// requested tick.
//
// # Capacity
//
// The queue holds Buffers*BufferLen samples of the receive configuration
// (or [DefaultCapacity] before the receive side is configured). Writing past
// capacity drops the oldest samples and reports overrun on the next receive.
//
// # Fault injection
//
//	t := loopback.New()
//	t.FailNext(hal.DirectionTX, pkg.ErrTimeout, pkg.ErrTimeout)
//	t.InjectOverrun()
//	t.InjectUnderrun()
//
// Burst markers, overruns and underruns are recorded and returned by
// [Transport.Events]; [Transport.Calls] counts transfer requests.
package loopback
