// Package rtp implements a transport that carries sample blocks as RTP over
// UDP, unicast or multicast.
//
// # Framing
//
// Each transfer is split into packets of at most SamplesPerPacket complex
// samples (360 by default, which keeps a packet inside a 1500 byte MTU).
// Every packet carries:
//
//   - RTP version 2, dynamic payload type 96 unless configured otherwise
//   - an incrementing sequence number
//   - the low 32 bits of the hardware tick as the RTP timestamp
//   - the marker bit on the first packet of a burst
//   - a one-byte header extension, id 1, holding a flag byte (bit 0 burst
//     start, bit 1 burst end) followed by the full 64-bit tick, big-endian
//
// The payload is interleaved little-endian int16 I/Q.
//
// # Receive
//
// The receiver listens on ListenAddr; a multicast address joins the group
// on Interface (or the default interface). A sequence gap reports overrun.
// A receive fills the request from consecutive packets, stopping early at a
// tick discontinuity or when the timeout expires after some samples have
// arrived. A timed receive discards samples before the requested tick.
//
// # Transmit
//
// The transmitter sends to DestAddr with multicast loopback enabled, so a
// receiver in the same host sees its own traffic. Block placement follows
// [hal.Timeline]; a timestamp gap inside an open burst reports underrun.
package rtp
