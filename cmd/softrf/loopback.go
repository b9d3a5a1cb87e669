package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
	"github.com/ardnew/softrf/stream"
	"github.com/ardnew/softrf/stream/hal"
)

const loopbackCommandName = "loopback"

// Tone parameters for the self-test signal.
const (
	tonePeriod    = 64  // Samples per cycle
	toneAmplitude = 0.5 // Relative to full scale

	// Fixed-point conversion loses less than one unit per component.
	toneTolerance = 1.5 / sample.Scale
)

// LoopbackOptions holds loopback command options.
type LoopbackOptions struct {
	Count  int
	TimeNs int64
}

// LoopbackSummary reports a self-test run.
type LoopbackSummary struct {
	Samples    int
	MaxError   float64
	Overflows  int
	Underflows int
}

// ErrLoopbackMismatch reports received samples that differ from those sent.
var ErrLoopbackMismatch = errors.New("loopback mismatch")

// NewLoopbackCommand creates the loopback self-test command.
func NewLoopbackCommand(a *app) *cobra.Command {
	opts := &LoopbackOptions{}

	cmd := &cobra.Command{
		Use:   loopbackCommandName,
		Short: "Run a transmit/receive self-test in process",
		Long: `Transmit a tone as one timed burst over the in-process loopback transport,
receive it with a timed command and compare the samples.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, cmd *cobra.Command) error {
		sum, err := a.selfTest(ctx, opts)
		fmt.Fprintf(cmd.OutOrStdout(), "loopback %d samples, max error %.6f (%d overflows, %d underflows)\n",
			sum.Samples, sum.MaxError, sum.Overflows, sum.Underflows)
		return err
	})

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 65536, "Number of samples to loop back")
	cmd.Flags().Int64Var(&opts.TimeNs, "time-ns", 1_000_000, "Burst start time in nanoseconds")

	return cmd
}

// tone returns component c (0 for I, 1 for Q) of sample i.
func tone(i, c int) float32 {
	phase := 2 * math.Pi * float64(i%tonePeriod) / tonePeriod
	if c == 0 {
		return float32(toneAmplitude * math.Cos(phase))
	}
	return float32(toneAmplitude * math.Sin(phase))
}

// selfTest interleaves writes and reads so the loopback queue never holds
// more than one block.
func (a *app) selfTest(ctx context.Context, opts *LoopbackOptions) (sum LoopbackSummary, err error) {
	if opts.Count <= 0 {
		return sum, fmt.Errorf("%w: count %d", pkg.ErrInvalidParameter, opts.Count)
	}
	if a.cfg.Stream(hal.DirectionRX).SampleRate != a.cfg.Stream(hal.DirectionTX).SampleRate {
		return sum, fmt.Errorf("%w: rx and tx sample rates differ", pkg.ErrInvalidParameter)
	}

	rxh, err := a.setup(hal.DirectionRX, sample.FormatCF32)
	if err != nil {
		return sum, err
	}
	defer func() { err = errors.Join(err, a.engine.CloseStream(rxh)) }()
	txh, err := a.setup(hal.DirectionTX, sample.FormatCF32)
	if err != nil {
		return sum, err
	}
	defer func() { err = errors.Join(err, a.engine.CloseStream(txh)) }()

	if err := a.engine.ActivateStream(rxh, stream.FlagHasTime, opts.TimeNs, opts.Count); err != nil {
		return sum, err
	}
	if err := a.engine.ActivateStream(txh, 0, 0, 0); err != nil {
		return sum, err
	}

	out := make(sample.CF32, 2*txh.MTU())
	in := make(sample.CF32, 2*rxh.MTU())
	flags := stream.FlagHasTime
	sent := 0
	for sum.Samples < opts.Count {
		if sent < opts.Count {
			n := min(out.Len(), opts.Count-sent)
			for i := range n {
				out[2*i] = tone(sent+i, 0)
				out[2*i+1] = tone(sent+i, 1)
			}
			f := flags
			if sent+n == opts.Count {
				f |= stream.FlagEndBurst
			}
			k, err := a.engine.WriteStream(ctx, txh, out[:2*n], f, opts.TimeNs, 0)
			if err != nil {
				return sum, err
			}
			if errors.Is(a.engine.ReadStreamStatus(txh), pkg.ErrUnderflow) {
				sum.Underflows++
			}
			sent += k
			flags = 0
		}

		res, err := a.engine.ReadStream(ctx, rxh, in, 0)
		switch {
		case errors.Is(err, pkg.ErrOverflow):
			sum.Overflows++
			continue
		case errors.Is(err, pkg.ErrTimeout) && sent < opts.Count:
			continue
		case errors.Is(err, pkg.ErrTimeout):
			return sum, fmt.Errorf("%w: received %d of %d samples", pkg.ErrTimeout, sum.Samples, opts.Count)
		case err != nil:
			return sum, err
		}
		for i := range res.N {
			for c := range 2 {
				d := math.Abs(float64(in[2*i+c] - tone(sum.Samples+i, c)))
				sum.MaxError = max(sum.MaxError, d)
			}
		}
		sum.Samples += res.N
	}

	pkg.LogInfo(pkg.ComponentCLI, "loopback complete",
		"samples", sum.Samples,
		"maxError", sum.MaxError)
	if sum.MaxError > toneTolerance {
		return sum, fmt.Errorf("%w: max error %v", ErrLoopbackMismatch, sum.MaxError)
	}
	return sum, nil
}
