package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ardnew/softrf/config"
	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/pkg/metrics"
	"github.com/ardnew/softrf/pkg/prof"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal"
	"github.com/ardnew/softrf/stream/hal/loopback"
	"github.com/ardnew/softrf/stream/hal/rtp"
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	CPUProfile  string
}

// app is the runtime shared by subcommands, built before each one runs.
type app struct {
	cfg       *config.Config
	transport hal.Transport
	engine    *stream.Engine
	closers   []func() error
}

// NewRootCommand creates the softrf command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "softrf",
		Short: "Software-defined radio streaming engine",
		Long: `softrf receives and transmits timed IQ sample streams over a loopback or RTP/UDP transport.
Settings come from an optional YAML file; flags override the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !streams(cmd) {
				return nil
			}
			if err := a.init(cmd.Context(), opts, cmd); err != nil {
				return errors.Join(err, a.close())
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics and pprof on host:port")
	flags.StringVar(&opts.CPUProfile, "cpuprofile", "", "Write a CPU profile to path")

	cmd.AddCommand(NewRXCommand(a))
	cmd.AddCommand(NewTXCommand(a))
	cmd.AddCommand(NewLoopbackCommand(a))

	return cmd
}

// streams reports whether cmd runs the engine, as opposed to help and
// completion.
func streams(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case rxCommandName, txCommandName, loopbackCommandName:
		return true
	}
	return false
}

// init loads the configuration, applies flag overrides and builds the
// engine.
func (a *app) init(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return err
		}
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.Log.SlogLevel()
	pkg.SetLogFormat(cfg.Log.LogFormat())
	pkg.SetLogLevel(level)

	if opts.CPUProfile != "" {
		if err := prof.StartCPU(opts.CPUProfile); err != nil {
			return err
		}
		a.onClose(func() error { prof.StopCPU(); return nil })
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		if err := a.serve(ctx, cfg.Metrics.Listen, reg); err != nil {
			return err
		}
	}

	// The loopback self-test always runs in process.
	kind := cfg.Transport.Kind
	if cmd.Name() == loopbackCommandName {
		kind = config.KindLoopback
	}
	switch kind {
	case config.KindRTP:
		t, err := rtp.New(cfg.Transport.RTP.TransportConfig())
		if err != nil {
			return err
		}
		a.onClose(t.Close)
		a.transport = t
	default:
		a.transport = loopback.New()
	}

	a.engine = stream.New(a.transport,
		stream.WithSampleRate(hal.DirectionRX, cfg.Stream(hal.DirectionRX).SampleRate),
		stream.WithSampleRate(hal.DirectionTX, cfg.Stream(hal.DirectionTX).SampleRate),
		stream.WithMetrics(m),
		stream.WithBurstEndRetries(cfg.BurstEnd.MaxRetries),
		stream.WithSaturation(cfg.Saturate))

	pkg.LogInfo(pkg.ComponentCLI, "engine ready",
		"transport", kind,
		"rxRate", a.engine.SampleRate(hal.DirectionRX),
		"txRate", a.engine.SampleRate(hal.DirectionTX),
		"metrics", cfg.Metrics.Enabled)
	return nil
}

// serve exposes metrics and pprof on addr until the command finishes.
func (a *app) serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	prof.Register(mux)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pkg.LogError(pkg.ComponentCLI, "metrics server failed", "error", err)
		}
	}()
	pkg.LogInfo(pkg.ComponentCLI, "metrics listening", "addr", ln.Addr().String())

	a.onClose(func() error {
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
	return nil
}

// onClose registers fn to run, in reverse order, when the command finishes.
func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases everything registered with onClose.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// run adapts fn into a RunE that releases the runtime afterwards, whether or
// not fn succeeds.
func (a *app) run(fn func(ctx context.Context, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd.Context(), cmd)
		status := pkg.StatusOf(err)
		pkg.LogInfo(pkg.ComponentCLI, "command finished",
			"command", cmd.Name(),
			"status", status,
			"code", status.Code())
		return errors.Join(err, a.close())
	}
}
