package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/pkg/metrics"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream/hal"
)

// isMarker reports whether c is a burst end marker transfer.
func isMarker(c call) bool {
	return c.flags&hal.MetaFlagTxBurstEnd != 0 &&
		c.count == 1 &&
		len(c.samples) == 2 && c.samples[0] == 0 && c.samples[1] == 0
}

// =============================================================================
// WriteStream Tests
// =============================================================================

func TestWriteStream_BurstStart(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	buf := make(sample.CS16, 32)

	for i, wantStart := range []bool{true, false, false} {
		n, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0)
		if err != nil {
			t.Fatalf("write %d: error = %v", i, err)
		}
		if n != 16 {
			t.Errorf("write %d: n = %d, want 16", i, n)
		}
		gotStart := m.lastTX().flags&hal.MetaFlagTxBurstStart != 0
		if gotStart != wantStart {
			t.Errorf("write %d: burst start = %v, want %v", i, gotStart, wantStart)
		}
	}
}

func TestWriteStream_EndBurst(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	buf := make(sample.CS16, 32)

	if _, err := e.WriteStream(context.Background(), h, buf, FlagEndBurst, 0, 0); err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}
	if m.txCallCount() != 2 {
		t.Fatalf("transport calls = %d, want 2", m.txCallCount())
	}
	marker := m.lastTX()
	if !isMarker(marker) {
		t.Errorf("last call = %+v, want burst end marker", marker)
	}
	if marker.timeout != time.Second {
		t.Errorf("marker timeout = %v, want 1s", marker.timeout)
	}
	if marker.flags&hal.MetaFlagTxBurstStart != 0 {
		t.Error("marker carries burst start")
	}

	// The next write opens a new burst.
	if _, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if m.lastTX().flags&hal.MetaFlagTxBurstStart == 0 {
		t.Error("write after burst end did not start a burst")
	}
}

func TestWriteStream_Timing(t *testing.T) {
	tests := []struct {
		name     string
		flags    Flags
		timeNs   int64
		wantNow  bool
		wantTick uint64
	}{
		{"immediate", 0, 5_000_000, true, 0},
		{"timed", FlagHasTime, 5_000_000, false, 5000},
		{"timed negative", FlagHasTime, -1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m, h := setup(t, TX, "CS16", nil)
			if _, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), tt.flags, tt.timeNs, 0); err != nil {
				t.Fatal(err)
			}
			c := m.lastTX()
			if got := c.flags&hal.MetaFlagTxNow != 0; got != tt.wantNow {
				t.Errorf("TxNow = %v, want %v", got, tt.wantNow)
			}
			if c.timestamp != tt.wantTick {
				t.Errorf("timestamp = %d, want %d", c.timestamp, tt.wantTick)
			}
		})
	}
}

func TestWriteStream_FailureKeepsBurstState(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"timeout", pkg.ErrTimeout, pkg.ErrTimeout},
		{"hard error", errors.New("pipe"), pkg.ErrStream},
	}

	for _, tt := range tests {
		t.Run(tt.name+" before burst", func(t *testing.T) {
			e, m, h := setup(t, TX, "CS16", nil)
			m.txResults = []txResult{{err: tt.err}}
			buf := make(sample.CS16, 8)

			n, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0)
			if !errors.Is(err, tt.wantErr) || n != 0 {
				t.Fatalf("WriteStream() = %d, %v, want 0, %v", n, err, tt.wantErr)
			}
			if _, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0); err != nil {
				t.Fatal(err)
			}
			if m.lastTX().flags&hal.MetaFlagTxBurstStart == 0 {
				t.Error("retry after failure did not start the burst")
			}
		})

		t.Run(tt.name+" inside burst", func(t *testing.T) {
			e, m, h := setup(t, TX, "CS16", nil)
			m.txResults = []txResult{{n: -1}, {err: tt.err}}
			buf := make(sample.CS16, 8)

			if _, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0); err != nil {
				t.Fatal(err)
			}
			if _, err := e.WriteStream(context.Background(), h, buf, FlagEndBurst, 0, 0); !errors.Is(err, tt.wantErr) {
				t.Fatalf("WriteStream() error = %v, want %v", err, tt.wantErr)
			}
			// A failed write does not attempt the burst end.
			if m.txCallCount() != 2 {
				t.Errorf("transport calls = %d, want 2", m.txCallCount())
			}
			if _, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0); err != nil {
				t.Fatal(err)
			}
			if m.lastTX().flags&hal.MetaFlagTxBurstStart != 0 {
				t.Error("burst restarted after failure inside burst")
			}
		})
	}
}

func TestWriteStream_ActualCount(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	m.txResults = []txResult{{n: 10}}

	n, err := e.WriteStream(context.Background(), h, make(sample.CS16, 64), 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}
}

func TestWriteStream_CF32(t *testing.T) {
	e, m, h := setup(t, TX, "CF32", Args{"buflen": "1024"})

	buf := make(sample.CF32, 2*1500)
	for i := range buf {
		buf[i] = 0.5
	}
	n, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1024 {
		t.Errorf("n = %d, want MTU 1024", n)
	}
	c := m.lastTX()
	if c.count != 1024 {
		t.Errorf("count = %d, want 1024", c.count)
	}
	if c.samples[0] != 1000 || c.samples[len(c.samples)-1] != 1000 {
		t.Errorf("converted samples = %d, %d, want 1000", c.samples[0], c.samples[len(c.samples)-1])
	}
}

func TestWriteStream_Saturation(t *testing.T) {
	e, m, h := setup(t, TX, "CF32", nil, WithSaturation(true))

	buf := sample.CF32{20, -20, 0.25, -0.25}
	if _, err := e.WriteStream(context.Background(), h, buf, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	want := []int16{32767, -32768, 500, -500}
	got := m.lastTX().samples
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("samples[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWriteStream_BufferErrors(t *testing.T) {
	e, _, h := setup(t, TX, "CF32", nil)

	if _, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), 0, 0, 0); !errors.Is(err, pkg.ErrFormatMismatch) {
		t.Errorf("WriteStream(CS16 on CF32) error = %v, want ErrFormatMismatch", err)
	}
	if _, err := e.WriteStream(context.Background(), h, sample.CF32{}, 0, 0, 0); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("WriteStream(empty) error = %v, want ErrBufferTooSmall", err)
	}
}

func TestWriteStream_WrongDirection(t *testing.T) {
	e, _, h := setup(t, RX, "CS16", nil)
	if _, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), 0, 0, 0); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("WriteStream() on RX error = %v, want ErrNotSupported", err)
	}
}

// =============================================================================
// Underflow Tests
// =============================================================================

func TestReadStreamStatus_Underflow(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	m.txResults = []txResult{{n: -1, status: hal.MetaStatusUnderrun}}

	if err := e.ReadStreamStatus(h); err != nil {
		t.Fatalf("ReadStreamStatus() before write = %v, want nil", err)
	}
	if _, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), 0, 0, 0); err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}
	calls := m.txCallCount()

	if err := e.ReadStreamStatus(h); !errors.Is(err, pkg.ErrUnderflow) {
		t.Errorf("ReadStreamStatus() = %v, want ErrUnderflow", err)
	}
	if err := e.ReadStreamStatus(h); err != nil {
		t.Errorf("second ReadStreamStatus() = %v, want nil", err)
	}
	if m.txCallCount() != calls {
		t.Error("ReadStreamStatus touched the transport")
	}
}

// =============================================================================
// Burst End Tests
// =============================================================================

func TestDeactivateStream_EndsBurst(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)

	// No burst open: nothing to send.
	if err := e.DeactivateStream(context.Background(), h, 0, 0); err != nil {
		t.Fatal(err)
	}
	if m.txCallCount() != 0 {
		t.Fatalf("transport calls = %d, want 0", m.txCallCount())
	}

	if _, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.DeactivateStream(context.Background(), h, 0, 0); err != nil {
		t.Fatalf("DeactivateStream() error = %v", err)
	}
	if !isMarker(m.lastTX()) {
		t.Errorf("deactivate did not send burst end marker: %+v", m.lastTX())
	}
	if err := e.DeactivateStream(context.Background(), h, 0, 0); err != nil {
		t.Fatal(err)
	}
	if m.txCallCount() != 2 {
		t.Errorf("transport calls = %d, want 2", m.txCallCount())
	}
}

func TestEndBurst_RetriesTimeouts(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	m.txResults = []txResult{
		{n: -1},
		{err: pkg.ErrTimeout},
		{err: pkg.ErrTimeout},
		{err: pkg.ErrTimeout},
		{n: -1},
	}

	n, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), FlagEndBurst, 0, 0)
	if err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
	if m.txCallCount() != 5 {
		t.Errorf("transport calls = %d, want 5", m.txCallCount())
	}
	if e.tx.inBurst {
		t.Error("burst still open after marker accepted")
	}
}

func TestEndBurst_HardError(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	m.txResults = []txResult{{n: -1}, {err: errors.New("device gone")}}

	n, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), FlagEndBurst, 0, 0)
	if !errors.Is(err, pkg.ErrStream) {
		t.Fatalf("WriteStream() error = %v, want ErrStream", err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4 accepted before burst end failed", n)
	}
	if m.txCallCount() != 2 {
		t.Errorf("transport calls = %d, want 2 (no retry on hard error)", m.txCallCount())
	}
	if !e.tx.inBurst {
		t.Fatal("burst closed despite failed marker")
	}

	// Deactivation retries the burst end.
	if err := e.DeactivateStream(context.Background(), h, 0, 0); err != nil {
		t.Fatalf("DeactivateStream() error = %v", err)
	}
	if !isMarker(m.lastTX()) || e.tx.inBurst {
		t.Error("deactivate did not close the burst")
	}
}

func TestEndBurst_BoundedRetries(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil, WithBurstEndRetries(3))
	m.txResults = []txResult{
		{n: -1},
		{err: pkg.ErrTimeout},
		{err: pkg.ErrTimeout},
		{err: pkg.ErrTimeout},
		{n: -1},
	}

	_, err := e.WriteStream(context.Background(), h, make(sample.CS16, 8), FlagEndBurst, 0, 0)
	if !errors.Is(err, pkg.ErrStream) {
		t.Fatalf("WriteStream() error = %v, want ErrStream", err)
	}
	if errors.Is(err, pkg.ErrTimeout) {
		t.Error("exhausted burst end reported as a plain timeout")
	}
	if m.txCallCount() != 4 {
		t.Errorf("transport calls = %d, want 4", m.txCallCount())
	}
	if !e.tx.inBurst {
		t.Error("burst closed after retries exhausted")
	}
}

func TestEndBurst_ContextCanceled(t *testing.T) {
	e, m, h := setup(t, TX, "CS16", nil)
	m.txResults = []txResult{{n: -1}, {err: pkg.ErrTimeout}, {err: pkg.ErrTimeout}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.WriteStream(ctx, h, make(sample.CS16, 8), FlagEndBurst, 0, 0)
	if !errors.Is(err, pkg.ErrStream) || !errors.Is(err, context.Canceled) {
		t.Fatalf("WriteStream() error = %v, want ErrStream wrapping context.Canceled", err)
	}
	if m.txCallCount() != 2 {
		t.Errorf("transport calls = %d, want 2", m.txCallCount())
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, m, h := setup(t, TX, "CS16", nil, WithMetrics(metrics.New(reg)))
	m.txResults = []txResult{
		{n: -1, status: hal.MetaStatusUnderrun},
		{err: pkg.ErrTimeout},
		{n: -1},
	}

	buf := make(sample.CS16, 20)
	if _, err := e.WriteStream(context.Background(), h, buf, FlagEndBurst, 0, 0); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP softrf_stream_bursts_total Transmit burst markers sent
# TYPE softrf_stream_bursts_total counter
softrf_stream_bursts_total{event="end"} 1
softrf_stream_bursts_total{event="start"} 1
# HELP softrf_stream_burst_end_retries_total Burst end transfers retried after a transport timeout
# TYPE softrf_stream_burst_end_retries_total counter
softrf_stream_burst_end_retries_total 1
# HELP softrf_stream_samples_total Complex samples transferred
# TYPE softrf_stream_samples_total counter
softrf_stream_samples_total{direction="tx"} 10
# HELP softrf_stream_underflows_total Transmit underruns reported by the transport
# TYPE softrf_stream_underflows_total counter
softrf_stream_underflows_total 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"softrf_stream_bursts_total",
		"softrf_stream_burst_end_retries_total",
		"softrf_stream_samples_total",
		"softrf_stream_underflows_total",
	)
	if err != nil {
		t.Error(err)
	}
}
