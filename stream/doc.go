// Package stream implements a timestamped sample streaming engine for a
// single-channel radio front-end.
//
// It sits between an application and a synchronous block-transfer
// transport ([hal.Transport]) and reconciles the transport's hardware tick
// domain with host nanoseconds, frames transmit bursts, and keeps exact
// accounting of finite receive requests across partial transfers.
//
// # Architecture
//
// The engine is organized into several parts:
//
//   - Lifecycle: SetupStream, CloseStream, ActivateStream, DeactivateStream
//   - Receive: a FIFO of commands, each a start time and element count,
//     served by ReadStream
//   - Transmit: a burst state machine driven by WriteStream, with burst end
//     markers on request or on deactivation
//   - Status: one-shot overflow (receive) and underflow (transmit) latches
//
// Samples pass through the converters in package sample only when the
// caller's format is CF32; CS16 buffers are handed to the transport as is.
//
// # Timestamps
//
// Host time in nanoseconds and hardware ticks are related by each
// direction's sample rate:
//
//	ticks = ns * rate / 1e9
//	ns    = ticks * 1e9 / rate
//
// # Receive
//
//	h, err := eng.SetupStream(stream.RX, "CF32", nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.CloseStream(h)
//
//	// Receive 100000 samples starting at t=1s
//	eng.ActivateStream(h, stream.FlagHasTime, 1e9, 100000)
//
//	buf := make(sample.CF32, 2*eng.StreamMTU(h))
//	for {
//	    res, err := eng.ReadStream(ctx, h, buf, 100*time.Millisecond)
//	    switch {
//	    case errors.Is(err, pkg.ErrOverflow):
//	        // samples lost at res.TimeNs; keep reading
//	    case errors.Is(err, pkg.ErrTimeout):
//	        // command complete, or nothing yet
//	    case err != nil:
//	        return err
//	    }
//	    process(buf[:2*res.N])
//	}
//
// # Transmit
//
//	h, _ := eng.SetupStream(stream.TX, "CS16", nil, stream.Args{"buflen": "8192"})
//	n, err := eng.WriteStream(ctx, h, block, stream.FlagEndBurst, 0, time.Second)
//
// # Concurrency
//
// Calls block for up to the caller's timeout while the transport performs
// the exchange. There are no background goroutines. Calls on the same
// direction are serialized by the engine.
package stream
