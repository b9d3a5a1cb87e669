package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/softrf/internal/iqfile"
	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal"
)

const rxCommandName = "rx"

// RXOptions holds rx command options.
type RXOptions struct {
	Count  int
	Out    string
	Format string
	Zstd   bool
	TimeNs int64
}

// RXSummary reports what a capture received.
type RXSummary struct {
	Samples   int64
	Overflows int
}

// NewRXCommand creates the rx command.
func NewRXCommand(a *app) *cobra.Command {
	opts := &RXOptions{}

	cmd := &cobra.Command{
		Use:   rxCommandName,
		Short: "Capture received samples to a file",
		Long: `Capture samples from the receive stream into a raw interleaved little-endian file.
With --count 0 the capture runs until interrupted.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, cmd *cobra.Command) error {
		timed := cmd.Flags().Changed("time-ns")
		sum, err := a.receive(ctx, opts, timed)
		fmt.Fprintf(cmd.OutOrStdout(), "received %d samples to %s (%d overflows)\n", sum.Samples, opts.Out, sum.Overflows)
		return err
	})

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "Number of samples to capture, 0 for unbounded")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Capture file path")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Sample format: CS16 or CF32 (default from config)")
	cmd.Flags().BoolVar(&opts.Zstd, "zstd", false, "Compress the capture with zstd")
	cmd.Flags().Int64Var(&opts.TimeNs, "time-ns", 0, "Start the capture at this device time in nanoseconds")

	return cmd
}

// receive captures opts.Count samples, or until ctx is done when the count
// is zero. Overflows are counted and the capture continues.
func (a *app) receive(ctx context.Context, opts *RXOptions, timed bool) (RXSummary, error) {
	var sum RXSummary
	if opts.Out == "" {
		return sum, fmt.Errorf("%w: --out is required", pkg.ErrInvalidParameter)
	}
	if opts.Count < 0 {
		return sum, fmt.Errorf("%w: count %d", pkg.ErrInvalidParameter, opts.Count)
	}
	if err := a.cfg.CheckDirection(hal.DirectionRX); err != nil {
		return sum, err
	}
	f, err := a.format(hal.DirectionRX, opts.Format)
	if err != nil {
		return sum, err
	}

	out, err := iqfile.Create(opts.Out, f, opts.Zstd)
	if err != nil {
		return sum, err
	}
	err = a.capture(ctx, out, f, opts, timed, &sum)
	return sum, errors.Join(err, out.Close())
}

func (a *app) capture(ctx context.Context, out *iqfile.Writer, f sample.Format, opts *RXOptions, timed bool, sum *RXSummary) (err error) {
	h, err := a.setup(hal.DirectionRX, f)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.engine.CloseStream(h)) }()

	var flags stream.Flags
	if timed {
		flags |= stream.FlagHasTime
	}
	if err := a.engine.ActivateStream(h, flags, opts.TimeNs, opts.Count); err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.engine.DeactivateStream(context.Background(), h, 0, 0)) }()

	buf := sample.NewBuffer(f, h.MTU())
	for opts.Count == 0 || sum.Samples < int64(opts.Count) {
		res, err := a.engine.ReadStream(ctx, h, buf, 0)
		if ctx.Err() != nil {
			pkg.LogInfo(pkg.ComponentCLI, "capture interrupted", "samples", sum.Samples)
			return nil
		}
		switch {
		case errors.Is(err, pkg.ErrOverflow):
			sum.Overflows++
			pkg.LogWarn(pkg.ComponentCLI, "samples lost", "timeNs", res.TimeNs)
			continue
		case errors.Is(err, pkg.ErrTimeout):
			continue
		case err != nil:
			return err
		}
		if err := out.Write(buf, res.N); err != nil {
			return err
		}
		sum.Samples += int64(res.N)
	}
	return nil
}
