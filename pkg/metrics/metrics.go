// Package metrics exposes stream engine counters as Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so the engine can call it
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardnew/softrf/pkg"
)

const namespace = "softrf"

// Transfer results used as the "result" label.
const (
	ResultOK       = "ok"
	ResultTimeout  = "timeout"
	ResultError    = "error"
	ResultOverflow = "overflow"
)

// ResultOf returns the result label for a transfer that ended with err.
// Statuses without a label of their own count as ResultError.
func ResultOf(err error) string {
	switch pkg.StatusOf(err) {
	case pkg.StatusOK:
		return ResultOK
	case pkg.StatusTimeout:
		return ResultTimeout
	case pkg.StatusOverflow:
		return ResultOverflow
	default:
		return ResultError
	}
}

// Burst events used as the "event" label.
const (
	BurstStart = "start"
	BurstEnd   = "end"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	samples         *prometheus.CounterVec // Samples moved, by direction
	transfers       *prometheus.CounterVec // Transfer calls, by direction and result
	overflows       prometheus.Counter     // Receive overruns reported by the transport
	underflows      prometheus.Counter     // Transmit underruns reported by the transport
	bursts          *prometheus.CounterVec // Burst start/end markers sent
	burstEndRetries prometheus.Counter     // Burst end attempts retried after timeout
	rxCommands      prometheus.Gauge       // Receive commands queued
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "samples_total",
				Help:      "Complex samples transferred",
			},
			[]string{"direction"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "transfers_total",
				Help:      "Stream transfer calls by outcome",
			},
			[]string{"direction", "result"},
		),
		overflows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "overflows_total",
				Help:      "Receive overruns reported by the transport",
			},
		),
		underflows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "underflows_total",
				Help:      "Transmit underruns reported by the transport",
			},
		),
		bursts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "bursts_total",
				Help:      "Transmit burst markers sent",
			},
			[]string{"event"},
		),
		burstEndRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "burst_end_retries_total",
				Help:      "Burst end transfers retried after a transport timeout",
			},
		),
		rxCommands: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "rx_commands",
				Help:      "Receive commands waiting in the queue",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.samples,
			m.transfers,
			m.overflows,
			m.underflows,
			m.bursts,
			m.burstEndRetries,
			m.rxCommands,
		)
	}
	return m
}

// Transfer records one transfer call for direction with its result and the
// number of samples moved.
func (m *Metrics) Transfer(direction, result string, n int) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(direction, result).Inc()
	if n > 0 {
		m.samples.WithLabelValues(direction).Add(float64(n))
	}
}

// Overflow records a transport-reported receive overrun.
func (m *Metrics) Overflow() {
	if m == nil {
		return
	}
	m.overflows.Inc()
}

// Underflow records a transport-reported transmit underrun.
func (m *Metrics) Underflow() {
	if m == nil {
		return
	}
	m.underflows.Inc()
}

// Burst records a burst marker event (BurstStart or BurstEnd).
func (m *Metrics) Burst(event string) {
	if m == nil {
		return
	}
	m.bursts.WithLabelValues(event).Inc()
}

// BurstEndRetry records a burst end attempt that timed out and is retried.
func (m *Metrics) BurstEndRetry() {
	if m == nil {
		return
	}
	m.burstEndRetries.Inc()
}

// RXCommands sets the current receive command queue depth.
func (m *Metrics) RXCommands(n int) {
	if m == nil {
		return
	}
	m.rxCommands.Set(float64(n))
}
