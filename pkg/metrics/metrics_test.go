package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softrf/pkg"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.Transfer("rx", ResultOK, 10)
	m.Overflow()
	m.Underflow()
	m.Burst(BurstStart)
	m.BurstEndRetry()
	m.RXCommands(1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"softrf_stream_samples_total",
		"softrf_stream_transfers_total",
		"softrf_stream_overflows_total",
		"softrf_stream_underflows_total",
		"softrf_stream_bursts_total",
		"softrf_stream_burst_end_retries_total",
		"softrf_stream_rx_commands",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestTransfer_Counts(t *testing.T) {
	m := New(nil)

	m.Transfer("rx", ResultOK, 40)
	m.Transfer("rx", ResultOK, 35)
	m.Transfer("rx", ResultTimeout, 0)
	m.Transfer("tx", ResultOK, 100)

	assert.Equal(t, 75.0, testutil.ToFloat64(m.samples.WithLabelValues("rx")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.samples.WithLabelValues("tx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfers.WithLabelValues("rx", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("rx", ResultTimeout)))
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ResultOK},
		{"timeout", pkg.ErrTimeout, ResultTimeout},
		{"wrapped timeout", fmt.Errorf("rx: %w", pkg.ErrTimeout), ResultTimeout},
		{"overflow", pkg.ErrOverflow, ResultOverflow},
		{"stream", fmt.Errorf("%w: socket closed", pkg.ErrStream), ResultError},
		{"underflow", pkg.ErrUnderflow, ResultError},
		{"other", errors.New("boom"), ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultOf(tt.err))
		})
	}
}

func TestConditions_Counts(t *testing.T) {
	m := New(nil)

	m.Overflow()
	m.Overflow()
	m.Underflow()
	m.Burst(BurstStart)
	m.Burst(BurstEnd)
	m.Burst(BurstEnd)
	m.BurstEndRetry()
	m.RXCommands(3)
	m.RXCommands(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.overflows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.underflows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bursts.WithLabelValues(BurstStart)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bursts.WithLabelValues(BurstEnd)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.burstEndRetries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rxCommands))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transfer("rx", ResultOK, 1)
		m.Overflow()
		m.Underflow()
		m.Burst(BurstEnd)
		m.BurstEndRetry()
		m.RXCommands(0)
	})
}
