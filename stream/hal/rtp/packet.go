package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// Framing constants.
const (
	DefaultPayloadType      = 96
	DefaultSamplesPerPacket = 360

	// MaxSamplesPerPacket keeps a packet within a UDP datagram.
	MaxSamplesPerPacket = 16000

	extensionID  = 1
	extensionLen = 9 // Flag byte and 64-bit tick

	flagBurstStart = 1 << 0
	flagBurstEnd   = 1 << 1

	bytesPerSample = 4
)

// ErrMalformed reports a datagram that is not a sample packet.
var ErrMalformed = errors.New("malformed sample packet")

// Packet is one datagram worth of samples.
type Packet struct {
	PayloadType uint8
	SSRC        uint32
	Sequence    uint16
	Tick        uint64
	BurstStart  bool
	BurstEnd    bool
	Samples     []int16 // Interleaved I/Q
}

// Len returns the number of complex samples.
func (p *Packet) Len() int { return len(p.Samples) / 2 }

// Marshal encodes the packet as an RTP datagram.
func (p *Packet) Marshal() ([]byte, error) {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         p.BurstStart,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.Sequence,
			Timestamp:      uint32(p.Tick),
			SSRC:           p.SSRC,
		},
		Payload: make([]byte, 2*len(p.Samples)),
	}
	for i, v := range p.Samples {
		binary.LittleEndian.PutUint16(pkt.Payload[2*i:], uint16(v))
	}

	var ext [extensionLen]byte
	if p.BurstStart {
		ext[0] |= flagBurstStart
	}
	if p.BurstEnd {
		ext[0] |= flagBurstEnd
	}
	binary.BigEndian.PutUint64(ext[1:], p.Tick)
	if err := pkt.Header.SetExtension(extensionID, ext[:]); err != nil {
		return nil, fmt.Errorf("rtp extension: %w", err)
	}
	return pkt.Marshal()
}

// Unmarshal decodes an RTP datagram into p, reusing p.Samples. A packet
// without the tick extension takes its tick from the RTP timestamp.
func (p *Packet) Unmarshal(buf []byte) error {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(pkt.Payload)%bytesPerSample != 0 {
		return fmt.Errorf("%w: payload of %d bytes", ErrMalformed, len(pkt.Payload))
	}

	p.PayloadType = pkt.PayloadType
	p.SSRC = pkt.SSRC
	p.Sequence = pkt.SequenceNumber
	p.BurstStart = pkt.Marker
	p.BurstEnd = false
	p.Tick = uint64(pkt.Timestamp)
	if pkt.Extension {
		if ext := pkt.GetExtension(extensionID); len(ext) == extensionLen {
			p.BurstStart = ext[0]&flagBurstStart != 0
			p.BurstEnd = ext[0]&flagBurstEnd != 0
			p.Tick = binary.BigEndian.Uint64(ext[1:])
		}
	}

	n := len(pkt.Payload) / 2
	if cap(p.Samples) < n {
		p.Samples = make([]int16, n)
	}
	p.Samples = p.Samples[:n]
	for i := range p.Samples {
		p.Samples[i] = int16(binary.LittleEndian.Uint16(pkt.Payload[2*i:]))
	}
	return nil
}
