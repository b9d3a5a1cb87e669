package stream

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/stream/hal"
)

// =============================================================================
// Mock Transport for Testing
// =============================================================================

// rxResult scripts one SyncRX outcome. n < 0 transfers the full count.
type rxResult struct {
	n      int
	tick   uint64
	status hal.MetaStatus
	err    error
}

// txResult scripts one SyncTX outcome. n < 0 accepts the full count.
type txResult struct {
	n      int
	status hal.MetaStatus
	err    error
}

// call records one transfer request as the engine issued it.
type call struct {
	count     int
	flags     hal.MetaFlags
	timestamp uint64
	timeout   time.Duration
	samples   []int16
}

// mockTransport implements hal.Transport for testing.
type mockTransport struct {
	mu sync.Mutex

	configErr  error
	enableErr  error
	disableErr error

	configs     map[hal.Direction]hal.Config
	enabled     map[hal.Direction]bool
	enableCalls map[hal.Direction]int

	// Scripted results; an empty RX script times out, an empty TX script
	// accepts everything.
	rxResults []rxResult
	txResults []txResult

	// Value written to every received component
	rxValue int16

	rxCalls []call
	txCalls []call
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		configs:     make(map[hal.Direction]hal.Config),
		enabled:     make(map[hal.Direction]bool),
		enableCalls: make(map[hal.Direction]int),
	}
}

func (m *mockTransport) Configure(dir hal.Direction, cfg hal.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configErr != nil {
		return m.configErr
	}
	m.configs[dir] = cfg
	return nil
}

func (m *mockTransport) EnableModule(dir hal.Direction, enable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enable && m.enableErr != nil {
		return m.enableErr
	}
	if !enable && m.disableErr != nil {
		return m.disableErr
	}
	if enable {
		m.enableCalls[dir]++
	}
	m.enabled[dir] = enable
	return nil
}

func (m *mockTransport) SyncRX(ctx context.Context, samples []int16, count int, md *hal.Metadata, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rxCalls = append(m.rxCalls, call{
		count:     count,
		flags:     md.Flags,
		timestamp: md.Timestamp,
		timeout:   timeout,
	})

	if len(m.rxResults) == 0 {
		return pkg.ErrTimeout
	}
	res := m.rxResults[0]
	m.rxResults = m.rxResults[1:]
	if res.err != nil {
		return res.err
	}

	n := res.n
	if n < 0 || n > count {
		n = count
	}
	for i := 0; i < 2*n; i++ {
		samples[i] = m.rxValue
	}
	md.Timestamp = res.tick
	md.ActualCount = n
	md.Status = res.status
	return nil
}

func (m *mockTransport) SyncTX(ctx context.Context, samples []int16, count int, md *hal.Metadata, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCalls = append(m.txCalls, call{
		count:     count,
		flags:     md.Flags,
		timestamp: md.Timestamp,
		timeout:   timeout,
		samples:   append([]int16(nil), samples[:2*count]...),
	})

	res := txResult{n: -1}
	if len(m.txResults) > 0 {
		res = m.txResults[0]
		m.txResults = m.txResults[1:]
	}
	if res.err != nil {
		return res.err
	}

	n := res.n
	if n < 0 || n > count {
		n = count
	}
	md.ActualCount = n
	md.Status = res.status
	return nil
}

func (m *mockTransport) rxCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rxCalls)
}

func (m *mockTransport) txCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txCalls)
}

func (m *mockTransport) lastTX() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCalls[len(m.txCalls)-1]
}

func (m *mockTransport) lastRX() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rxCalls[len(m.rxCalls)-1]
}
