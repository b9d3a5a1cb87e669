// Package hal defines the transport abstraction beneath the stream engine.
//
// A transport performs blocking, fixed-format block transfers for each
// direction of a radio front-end and annotates every transfer with a
// [Metadata] record: the hardware tick of the first sample, request flags
// (receive or transmit "now", burst start and end markers) and reported
// status (overrun, underrun). The engine in package stream treats the
// transport as opaque; it never sees USB, DMA or socket details.
//
// # Lifecycle
//
//	t.Configure(hal.DirectionRX, hal.Config{
//	    Format:    hal.FormatSC16Q11Meta,
//	    Buffers:   32,
//	    BufferLen: 4096,
//	    Transfers: 16,
//	    Timeout:   time.Second,
//	})
//	t.EnableModule(hal.DirectionRX, true)
//
//	md := hal.Metadata{Flags: hal.MetaFlagRxNow}
//	err := t.SyncRX(ctx, buf, 4096, &md, 100*time.Millisecond)
//
// # Implementations
//
// Two transports are provided:
//
//   - [github.com/ardnew/softrf/stream/hal/loopback]: in-process, samples
//     transmitted are received back; supports fault injection
//   - [github.com/ardnew/softrf/stream/hal/rtp]: sample blocks carried as
//     RTP over UDP, unicast or multicast
package hal
