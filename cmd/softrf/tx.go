package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ardnew/softrf/internal/iqfile"
	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal"
)

const txCommandName = "tx"

// TXOptions holds tx command options.
type TXOptions struct {
	In     string
	Format string
	Zstd   bool
	TimeNs int64
}

// TXSummary reports what a playback sent.
type TXSummary struct {
	Samples    int64
	Underflows int
}

// NewTXCommand creates the tx command.
func NewTXCommand(a *app) *cobra.Command {
	opts := &TXOptions{}

	cmd := &cobra.Command{
		Use:   txCommandName,
		Short: "Transmit samples from a file as one burst",
		Long: `Transmit a raw interleaved little-endian capture file as a single burst.
The burst starts at --time-ns when given and closes at the end of the file.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, cmd *cobra.Command) error {
		timed := cmd.Flags().Changed("time-ns")
		sum, err := a.transmit(ctx, opts, timed)
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d samples from %s (%d underflows)\n", sum.Samples, opts.In, sum.Underflows)
		return err
	})

	cmd.Flags().StringVarP(&opts.In, "in", "i", "", "Sample file path")
	cmd.Flags().StringVar(&opts.Format, "format", "", "Sample format: CS16 or CF32 (default from config)")
	cmd.Flags().BoolVar(&opts.Zstd, "zstd", false, "Decompress the file with zstd")
	cmd.Flags().Int64Var(&opts.TimeNs, "time-ns", 0, "Start the burst at this device time in nanoseconds")

	return cmd
}

// transmit sends the file as one burst.
func (a *app) transmit(ctx context.Context, opts *TXOptions, timed bool) (TXSummary, error) {
	var sum TXSummary
	if opts.In == "" {
		return sum, fmt.Errorf("%w: --in is required", pkg.ErrInvalidParameter)
	}
	if err := a.cfg.CheckDirection(hal.DirectionTX); err != nil {
		return sum, err
	}
	f, err := a.format(hal.DirectionTX, opts.Format)
	if err != nil {
		return sum, err
	}

	in, err := iqfile.Open(opts.In, f, opts.Zstd)
	if err != nil {
		return sum, err
	}
	err = a.play(ctx, in, f, opts, timed, &sum)
	return sum, errors.Join(err, in.Close())
}

// play reads one block ahead so the last block carries FlagEndBurst.
func (a *app) play(ctx context.Context, in *iqfile.Reader, f sample.Format, opts *TXOptions, timed bool, sum *TXSummary) (err error) {
	h, err := a.setup(hal.DirectionTX, f)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.engine.CloseStream(h)) }()

	if err := a.engine.ActivateStream(h, 0, 0, 0); err != nil {
		return err
	}
	// Closes the burst if playback stopped early.
	defer func() { err = errors.Join(err, a.engine.DeactivateStream(ctx, h, 0, 0)) }()

	cur := sample.NewBuffer(f, h.MTU())
	next := sample.NewBuffer(f, h.MTU())
	n, err := in.Read(cur)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	var flags stream.Flags
	if timed {
		flags |= stream.FlagHasTime
	}
	for {
		m, rerr := in.Read(next)
		last := errors.Is(rerr, io.EOF)
		if rerr != nil && !last {
			return rerr
		}
		if last {
			flags |= stream.FlagEndBurst
		}
		if err := a.send(ctx, h, window(cur, 0, n), flags, opts.TimeNs, sum); err != nil {
			return err
		}
		if last {
			return nil
		}
		flags &^= stream.FlagHasTime
		cur, next, n = next, cur, m
	}
}

// send writes the whole of buf, continuing partial writes contiguously and
// retrying timeouts until ctx is done. A requested FlagEndBurst rides on a
// final single-sample write, which cannot be split, so the burst never
// closes with samples of the block still unsent.
func (a *app) send(ctx context.Context, h *stream.Handle, buf sample.Buffer, flags stream.Flags, timeNs int64, sum *TXSummary) error {
	end := flags & stream.FlagEndBurst
	flags &^= stream.FlagEndBurst
	total := buf.Len()

	for off := 0; off < total; {
		to, f := total, flags
		if end != 0 {
			if off == total-1 {
				f |= end
			} else {
				to = total - 1
			}
		}

		k, err := a.engine.WriteStream(ctx, h, window(buf, off, to), f, timeNs, 0)
		off += k
		sum.Samples += int64(k)
		if errors.Is(a.engine.ReadStreamStatus(h), pkg.ErrUnderflow) {
			sum.Underflows++
		}
		switch {
		case err == nil && k == 0:
			return fmt.Errorf("%w: write accepted no samples at offset %d", pkg.ErrStream, off)
		case err == nil:
		case errors.Is(err, pkg.ErrTimeout) && ctx.Err() == nil:
			pkg.LogDebug(pkg.ComponentCLI, "write timed out, retrying", "offset", off)
		default:
			return err
		}
		if k > 0 {
			flags &^= stream.FlagHasTime
		}
	}
	return nil
}
