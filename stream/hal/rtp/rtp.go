package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/ipv4"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/stream/hal"
)

// Socket parameters.
const (
	readBufferSize = 1024 * 1024 // Kernel receive buffer
	datagramSize   = 65536
	defaultTimeout = time.Second
	multicastTTL   = 1
)

// Config describes the sockets used by a Transport.
type Config struct {
	ListenAddr       string // Receive address, host:port; multicast joins the group
	Interface        string // Multicast interface name; empty selects the default
	DestAddr         string // Transmit destination, host:port
	PayloadType      uint8  // RTP payload type; 0 selects DefaultPayloadType
	SSRC             uint32 // Stream source; 0 picks a random one. Receive filters on it when set
	SamplesPerPacket int    // 0 selects DefaultSamplesPerPacket
}

// Transport carries sample blocks over RTP/UDP.
type Transport struct {
	cfg   Config
	ssrc  uint32
	iface *net.Interface

	rx rxSide
	tx txSide
}

type rxSide struct {
	mu     sync.Mutex
	hcfg   hal.Config
	ready  bool // Configured
	conn   *net.UDPConn
	buf    []byte
	cur    Packet // Last decoded packet
	curOff int    // Samples of cur already delivered
	has    bool   // cur holds undelivered samples

	lastSeq uint16
	seqOK   bool
	overrun bool
	err     error // Read failure held back by a partial receive
}

type txSide struct {
	mu       sync.Mutex
	hcfg     hal.Config
	ready    bool
	conn     *net.UDPConn
	seq      uint16
	timeline hal.Timeline
}

// New validates cfg and returns a transport with no sockets open. Sockets
// are opened by EnableModule.
func New(cfg Config) (*Transport, error) {
	if cfg.PayloadType == 0 {
		cfg.PayloadType = DefaultPayloadType
	}
	if cfg.PayloadType > 127 {
		return nil, fmt.Errorf("%w: payload type %d", pkg.ErrTransportConfig, cfg.PayloadType)
	}
	if cfg.SamplesPerPacket == 0 {
		cfg.SamplesPerPacket = DefaultSamplesPerPacket
	}
	if cfg.SamplesPerPacket < 0 || cfg.SamplesPerPacket > MaxSamplesPerPacket {
		return nil, fmt.Errorf("%w: samples per packet %d", pkg.ErrTransportConfig, cfg.SamplesPerPacket)
	}

	t := &Transport{cfg: cfg, ssrc: cfg.SSRC}
	if t.ssrc == 0 {
		t.ssrc = uuid.New().ID()
	}
	if cfg.Interface != "" {
		iface, err := net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("%w: interface %q: %w", pkg.ErrTransportConfig, cfg.Interface, err)
		}
		t.iface = iface
	}
	return t, nil
}

// SSRC returns the source identifier used on transmit.
func (t *Transport) SSRC() uint32 { return t.ssrc }

// LocalAddr returns the receive socket address, or nil when receive is not
// enabled.
func (t *Transport) LocalAddr() net.Addr {
	t.rx.mu.Lock()
	defer t.rx.mu.Unlock()
	if t.rx.conn == nil {
		return nil
	}
	return t.rx.conn.LocalAddr()
}

// Configure records the direction's configuration.
func (t *Transport) Configure(dir hal.Direction, cfg hal.Config) error {
	if cfg.Format != hal.FormatSC16Q11Meta {
		return fmt.Errorf("%w: wire format %s", pkg.ErrUnsupportedFormat, cfg.Format)
	}
	if cfg.Buffers <= 0 || cfg.BufferLen <= 0 {
		return fmt.Errorf("%w: buffers=%d buflen=%d", pkg.ErrInvalidParameter, cfg.Buffers, cfg.BufferLen)
	}
	switch dir {
	case hal.DirectionRX:
		t.rx.mu.Lock()
		defer t.rx.mu.Unlock()
		t.rx.hcfg, t.rx.ready = cfg, true
	case hal.DirectionTX:
		t.tx.mu.Lock()
		defer t.tx.mu.Unlock()
		t.tx.hcfg, t.tx.ready = cfg, true
	default:
		return fmt.Errorf("%w: direction %d", pkg.ErrInvalidParameter, dir)
	}
	return nil
}

// EnableModule opens or closes the direction's socket.
func (t *Transport) EnableModule(dir hal.Direction, enable bool) error {
	switch dir {
	case hal.DirectionRX:
		t.rx.mu.Lock()
		defer t.rx.mu.Unlock()
		if !enable {
			return t.rx.close()
		}
		if !t.rx.ready {
			return fmt.Errorf("%w: rx not configured", pkg.ErrTransportConfig)
		}
		return t.openRX()
	case hal.DirectionTX:
		t.tx.mu.Lock()
		defer t.tx.mu.Unlock()
		if !enable {
			return t.tx.close()
		}
		if !t.tx.ready {
			return fmt.Errorf("%w: tx not configured", pkg.ErrTransportConfig)
		}
		return t.openTX()
	default:
		return fmt.Errorf("%w: direction %d", pkg.ErrInvalidParameter, dir)
	}
}

// Close closes both sockets.
func (t *Transport) Close() error {
	t.rx.mu.Lock()
	rxErr := t.rx.close()
	t.rx.mu.Unlock()
	t.tx.mu.Lock()
	txErr := t.tx.close()
	t.tx.mu.Unlock()
	return errors.Join(rxErr, txErr)
}

// openRX binds the receive socket. The caller holds t.rx.mu.
func (t *Transport) openRX() error {
	if t.rx.conn != nil {
		return nil
	}
	if t.cfg.ListenAddr == "" {
		return fmt.Errorf("%w: no listen address", pkg.ErrTransportConfig)
	}
	addr, err := net.ResolveUDPAddr("udp4", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: listen %q: %w", pkg.ErrTransportConfig, t.cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", pkg.ErrTransportConfig, addr, err)
	}
	if err := conn.SetReadBuffer(readBufferSize); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "rtp read buffer not set", "error", err)
	}

	if addr.IP.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(t.iface, &net.UDPAddr{IP: addr.IP}); err != nil {
			conn.Close()
			return fmt.Errorf("%w: join %s: %w", pkg.ErrTransportConfig, addr.IP, err)
		}
	}

	t.rx.conn = conn
	if t.rx.buf == nil {
		t.rx.buf = make([]byte, datagramSize)
	}
	t.rx.has = false
	t.rx.seqOK = false
	t.rx.overrun = false
	t.rx.err = nil
	pkg.LogInfo(pkg.ComponentHAL, "rtp receive open", "addr", conn.LocalAddr())
	return nil
}

// openTX connects the transmit socket. The caller holds t.tx.mu.
func (t *Transport) openTX() error {
	if t.tx.conn != nil {
		return nil
	}
	if t.cfg.DestAddr == "" {
		return fmt.Errorf("%w: no destination address", pkg.ErrTransportConfig)
	}
	addr, err := net.ResolveUDPAddr("udp4", t.cfg.DestAddr)
	if err != nil {
		return fmt.Errorf("%w: dest %q: %w", pkg.ErrTransportConfig, t.cfg.DestAddr, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", pkg.ErrTransportConfig, addr, err)
	}

	if addr.IP.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		if err := p.SetMulticastLoopback(true); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "rtp multicast loopback not set", "error", err)
		}
		if err := p.SetMulticastTTL(multicastTTL); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "rtp multicast ttl not set", "error", err)
		}
		if t.iface != nil {
			if err := p.SetMulticastInterface(t.iface); err != nil {
				conn.Close()
				return fmt.Errorf("%w: multicast interface %s: %w", pkg.ErrTransportConfig, t.iface.Name, err)
			}
		}
	}

	t.tx.conn = conn
	t.tx.timeline.Reset()
	pkg.LogInfo(pkg.ComponentHAL, "rtp transmit open", "dest", addr, "ssrc", t.ssrc)
	return nil
}

func (s *rxSide) close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.has = false
	return err
}

func (s *txSide) close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.timeline.Reset()
	return err
}

// SyncTX sends count samples as consecutive packets.
func (t *Transport) SyncTX(ctx context.Context, samples []int16, count int, md *hal.Metadata, timeout time.Duration) error {
	tx := &t.tx
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.conn == nil {
		return fmt.Errorf("%w: tx disabled", pkg.ErrNotRunning)
	}
	if count <= 0 || len(samples) < 2*count {
		return fmt.Errorf("%w: count %d with %d components", pkg.ErrInvalidParameter, count, len(samples))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.conn.SetWriteDeadline(time.Now().Add(resolveTimeout(timeout, tx.hcfg))); err != nil {
		return fmt.Errorf("rtp deadline: %w", err)
	}

	// Place on a copy so a failed send leaves the timeline untouched.
	timeline := tx.timeline
	tick, gap := timeline.Place(md, count)

	spp := t.cfg.SamplesPerPacket
	for off := 0; off < count; off += spp {
		n := min(spp, count-off)
		p := Packet{
			PayloadType: t.cfg.PayloadType,
			SSRC:        t.ssrc,
			Sequence:    tx.seq,
			Tick:        tick + uint64(off),
			BurstStart:  off == 0 && md.Flags&hal.MetaFlagTxBurstStart != 0,
			BurstEnd:    off+n == count && md.Flags&hal.MetaFlagTxBurstEnd != 0,
			Samples:     samples[2*off : 2*(off+n)],
		}
		b, err := p.Marshal()
		if err != nil {
			return err
		}
		if _, err := tx.conn.Write(b); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("%w: rtp send", pkg.ErrTimeout)
			}
			return fmt.Errorf("rtp send: %w", err)
		}
		tx.seq++
	}

	tx.timeline = timeline
	md.Timestamp = tick
	md.ActualCount = count
	md.Status = 0
	if gap {
		md.Status |= hal.MetaStatusUnderrun
	}
	return nil
}

// SyncRX receives up to count samples. A socket failure after some samples
// arrived returns those samples and is reported by the next call.
func (t *Transport) SyncRX(ctx context.Context, samples []int16, count int, md *hal.Metadata, timeout time.Duration) error {
	rx := &t.rx
	rx.mu.Lock()
	defer rx.mu.Unlock()

	if rx.conn == nil {
		return fmt.Errorf("%w: rx disabled", pkg.ErrNotRunning)
	}
	if count <= 0 || len(samples) < 2*count {
		return fmt.Errorf("%w: count %d with %d components", pkg.ErrInvalidParameter, count, len(samples))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rx.err; err != nil {
		rx.err = nil
		return err
	}

	conn := rx.conn
	if err := conn.SetReadDeadline(time.Now().Add(resolveTimeout(timeout, rx.hcfg))); err != nil {
		return fmt.Errorf("rtp deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	timed := md.Flags&hal.MetaFlagRxNow == 0
	var (
		n     int
		start uint64
	)
	for n < count {
		if !rx.has {
			if err := rx.next(t.cfg.SSRC); err != nil {
				if n > 0 {
					// Deliver what arrived; the next call reports the failure.
					if !errors.Is(err, pkg.ErrTimeout) {
						pkg.LogWarn(pkg.ComponentHAL, "rtp receive failed after partial block",
							"samples", n,
							"error", err)
						rx.err = err
					}
					break
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}
		}

		avail := rx.cur.Len() - rx.curOff
		tick := rx.cur.Tick + uint64(rx.curOff)

		if timed && n == 0 && tick < md.Timestamp {
			skip := md.Timestamp - tick
			if skip >= uint64(avail) {
				rx.has = false
				continue
			}
			rx.curOff += int(skip)
			avail -= int(skip)
			tick = md.Timestamp
		}

		if n == 0 {
			start = tick
		} else if tick != start+uint64(n) {
			break // Discontinuity; keep the packet for the next call
		}

		take := min(avail, count-n)
		copy(samples[2*n:], rx.cur.Samples[2*rx.curOff:2*(rx.curOff+take)])
		n += take
		rx.curOff += take
		if rx.curOff >= rx.cur.Len() {
			rx.has = false
		}
	}

	md.Timestamp = start
	md.ActualCount = n
	md.Status = 0
	if rx.overrun {
		rx.overrun = false
		md.Status |= hal.MetaStatusOverrun
	}
	return nil
}

// next reads until a sample packet from the wanted source arrives. The
// caller holds rx.mu.
func (s *rxSide) next(ssrc uint32) error {
	for {
		nr, err := s.conn.Read(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("%w: rtp receive", pkg.ErrTimeout)
			}
			return fmt.Errorf("rtp receive: %w", err)
		}
		if err := s.cur.Unmarshal(s.buf[:nr]); err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "rtp packet dropped", "error", err)
			continue
		}
		if ssrc != 0 && s.cur.SSRC != ssrc {
			continue
		}
		if s.seqOK && s.cur.Sequence != s.lastSeq+1 {
			s.overrun = true
			pkg.LogDebug(pkg.ComponentHAL, "rtp sequence gap",
				"expected", s.lastSeq+1,
				"got", s.cur.Sequence)
		}
		s.lastSeq, s.seqOK = s.cur.Sequence, true
		if s.cur.Len() == 0 {
			continue
		}
		s.curOff = 0
		s.has = true
		return nil
	}
}

func resolveTimeout(timeout time.Duration, cfg hal.Config) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return defaultTimeout
}

var _ hal.Transport = (*Transport)(nil)
