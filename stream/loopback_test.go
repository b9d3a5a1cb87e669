package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal/loopback"
)

// =============================================================================
// Engine over Loopback Tests
// =============================================================================

func open(t *testing.T, e *stream.Engine, args stream.Args, rx, tx string) (*stream.Handle, *stream.Handle) {
	t.Helper()
	rh, err := e.SetupStream(stream.RX, rx, nil, args)
	if err != nil {
		t.Fatalf("SetupStream(rx) error = %v", err)
	}
	th, err := e.SetupStream(stream.TX, tx, []int{0}, args)
	if err != nil {
		t.Fatalf("SetupStream(tx) error = %v", err)
	}
	t.Cleanup(func() {
		e.CloseStream(rh)
		e.CloseStream(th)
	})
	return rh, th
}

func TestLoopback_TimedBurst(t *testing.T) {
	lb := loopback.New()
	e := stream.New(lb)
	rh, th := open(t, e, stream.Args{"buflen": "1024"}, "CS16", "CF32")
	ctx := context.Background()

	burst := make(sample.CF32, 2*300)
	for i := 0; i < 300; i++ {
		burst[2*i] = float32(i) / 1024
		burst[2*i+1] = -float32(i) / 1024
	}
	// Scheduled at 1 ms, i.e. tick 1000 at the default rate.
	n, err := e.WriteStream(ctx, th, burst, stream.FlagHasTime|stream.FlagEndBurst, 1_000_000, time.Second)
	if err != nil {
		t.Fatalf("WriteStream() error = %v", err)
	}
	if n != 300 {
		t.Fatalf("WriteStream() = %d, want 300", n)
	}

	// Receive 100 samples starting 0.1 ms into the burst.
	if err := e.ActivateStream(rh, stream.FlagHasTime, 1_100_000, 100); err != nil {
		t.Fatal(err)
	}
	buf := make(sample.CS16, 2*64)
	var got []int16
	var first int64 = -1
	for len(got) < 200 {
		res, err := e.ReadStream(ctx, rh, buf, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("ReadStream() error = %v", err)
		}
		if first < 0 {
			first = res.TimeNs
		}
		got = append(got, buf[:2*res.N]...)
	}
	if first != 1_100_000 {
		t.Errorf("first TimeNs = %d, want 1100000", first)
	}
	// Element k of the receive is burst element 100+k, scaled by 2000/1024.
	for k := 0; k < 100; k++ {
		if want := int16((100 + k) * sample.Scale / 1024); got[2*k] != want {
			t.Fatalf("element %d I = %d, want %d", k, got[2*k], want)
		}
	}

	// The finite command retired.
	if _, err := e.ReadStream(ctx, rh, buf, 0); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("ReadStream() after command error = %v, want ErrTimeout", err)
	}

	evs := lb.Events()
	if len(evs) != 2 || evs[0].Kind != loopback.EventBurstStart || evs[0].Tick != 1000 ||
		evs[1].Kind != loopback.EventBurstEnd || evs[1].Tick != 1300 {
		t.Errorf("Events() = %+v", evs)
	}
}

func TestLoopback_OverflowRecovery(t *testing.T) {
	lb := loopback.New()
	e := stream.New(lb)
	rh, th := open(t, e, stream.Args{"buffers": "2", "buflen": "1024"}, "CS16", "CS16") // capacity 2048
	ctx := context.Background()

	block := make(sample.CS16, 2*1024)
	for i := 0; i < 3; i++ {
		if _, err := e.WriteStream(ctx, th, block, 0, 0, time.Second); err != nil {
			t.Fatal(err)
		}
	}

	if err := e.ActivateStream(rh, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	res, err := e.ReadStream(ctx, rh, block, time.Second)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	if res.N != 1024 || res.TimeNs != 1_024_000 {
		t.Errorf("ReadStream() = {n %d t %d}, want {1024 1024000}", res.N, res.TimeNs)
	}

	res, err = e.ReadStream(ctx, rh, block, time.Second)
	if !errors.Is(err, pkg.ErrOverflow) {
		t.Fatalf("ReadStream() error = %v, want ErrOverflow", err)
	}
	if res.TimeNs != 2_048_000 {
		t.Errorf("overflow TimeNs = %d, want 2048000", res.TimeNs)
	}
	if lb.Calls(stream.RX) != 1 {
		t.Errorf("rx calls = %d, want 1", lb.Calls(stream.RX))
	}

	res, err = e.ReadStream(ctx, rh, block, time.Second)
	if err != nil || res.N != 1024 {
		t.Errorf("ReadStream() after overflow = {n %d}, %v", res.N, err)
	}
}

func TestLoopback_UnderflowAndBurstRetry(t *testing.T) {
	lb := loopback.New()
	e := stream.New(lb, stream.WithBurstEndRetries(5))
	_, th := open(t, e, nil, "CS16", "CS16")
	ctx := context.Background()

	block := make(sample.CS16, 2*16)
	if _, err := e.WriteStream(ctx, th, block, stream.FlagHasTime, 1_000, time.Second); err != nil {
		t.Fatal(err)
	}
	// Leaves a gap after the first block inside the open burst.
	if _, err := e.WriteStream(ctx, th, block, stream.FlagHasTime, 100_000, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := e.ReadStreamStatus(th); !errors.Is(err, pkg.ErrUnderflow) {
		t.Errorf("ReadStreamStatus() = %v, want ErrUnderflow", err)
	}
	if err := e.ReadStreamStatus(th); err != nil {
		t.Errorf("second ReadStreamStatus() = %v, want nil", err)
	}

	lb.FailNext(stream.TX, pkg.ErrTimeout, pkg.ErrTimeout)
	if err := e.DeactivateStream(ctx, th, 0, 0); err != nil {
		t.Fatalf("DeactivateStream() error = %v", err)
	}
	if lb.Calls(stream.TX) != 5 {
		t.Errorf("tx calls = %d, want 5", lb.Calls(stream.TX))
	}
}
