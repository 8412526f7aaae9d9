package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chosenoffset/measure/measure-example/internal/scenario"
)

type loadgenOptions struct {
	BaseURL  string
	Duration time.Duration
	Delay    time.Duration
	Seed     int64

	out    io.Writer
	logger logrus.FieldLogger
}

func main() {
	if err := newLoadgenCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newLoadgenCommand(out io.Writer) *cobra.Command {
	o := &loadgenOptions{out: out}
	cmd := &cobra.Command{
		Use:          "loadgen",
		Short:        "Send mixed-unit traffic to the depot server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			logger.SetOutput(o.out)
			o.logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.BaseURL, "base-url", "http://localhost:8080", "depot server address")
	flags.DurationVar(&o.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	flags.DurationVar(&o.Delay, "delay", 100*time.Millisecond, "pause between scenario runs")
	flags.Int64Var(&o.Seed, "seed", 0, "random seed (0 picks one from the clock)")
	return cmd
}

func (o *loadgenOptions) Run(ctx context.Context) error {
	if o.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Duration)
		defer cancel()
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(o.Seed))
	client := &http.Client{Timeout: 5 * time.Second}

	if err := scenario.Setup(ctx, client, o.BaseURL); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	counts := scenario.Result{}
	scenarios := []scenario.Scenario{
		&scenario.MixedFills{Rand: rng, Counts: counts},
		&scenario.Shuffle{Rand: rng, Counts: counts},
		&scenario.Mismatches{Rand: rng, Counts: counts},
	}

	for ctx.Err() == nil {
		// mostly well-formed traffic
		var sc scenario.Scenario
		if rng.Intn(10) < 8 {
			sc = scenarios[rng.Intn(2)]
		} else {
			sc = scenarios[2]
		}
		if err := sc.Run(ctx, client, o.BaseURL); err != nil && ctx.Err() == nil {
			o.logger.WithField("scenario", sc.Name()).WithError(err).Warn("scenario failed")
		}

		select {
		case <-ctx.Done():
		case <-time.After(o.Delay):
		}
	}

	o.report(counts)
	return nil
}

func (o *loadgenOptions) report(counts scenario.Result) {
	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(o.out, "%d %s: %d\n", code, http.StatusText(code), counts[code])
	}
}
