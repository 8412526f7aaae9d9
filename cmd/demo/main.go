package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chosenoffset/measure/pkg/units"
	"github.com/chosenoffset/measure/pkg/units/actions"
	"github.com/chosenoffset/measure/pkg/units/feed"
)

type demoOptions struct {
	Port       int
	Interval   time.Duration
	RejectRate float64
	LogLevel   string

	out io.Writer
}

func main() {
	if err := newDemoCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newDemoCommand(out io.Writer) *cobra.Command {
	o := &demoOptions{out: out}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a measure feed fed with synthetic readings",
		Long: `Starts a conversion feed with a few channels and publishes readings in
assorted units. Readings are converted into each channel's display unit and
broadcast on /ws. A share of readings uses an incompatible unit to show
rejections.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&o.Port, "port", feed.DefaultPort, "port to serve the feed on")
	flags.DurationVar(&o.Interval, "interval", 2*time.Second, "delay between reading batches")
	flags.Float64Var(&o.RejectRate, "reject-rate", 0.1, "share of readings sent in an incompatible unit")
	flags.StringVar(&o.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

// system is the handful of units the demo publishes in.
type system struct {
	m, kg, s     *units.Unit
	km, mi, ft   *units.Unit
	h, min       *units.Unit
	kmh, mph     *units.Unit
	w, kw, hp    *units.Unit
	channels     map[string]*units.Unit
	sources      map[string][]*units.Unit
	incompatible []*units.Unit
}

func newSystem() *system {
	m := units.NewBase("m")
	kg := units.NewBase("kg")
	s := units.NewBase("s")

	km := units.Must(m.MulScalar(1000)).Named("km")
	ft := units.Must(m.MulScalar(0.3048)).Named("ft")
	mi := units.Must(ft.MulScalar(5280)).Named("mi")
	min := units.Must(s.MulScalar(60)).Named("min")
	h := units.Must(min.MulScalar(60)).Named("h")

	w := kg.Mul(m).Mul(m).Div(s).Div(s).Div(s).Named("W")
	kw := units.Must(w.MulScalar(1000)).Named("kW")
	hp := units.Must(w.MulScalar(745.7)).Named("hp")

	sys := &system{
		m: m, kg: kg, s: s,
		km: km, mi: mi, ft: ft,
		h: h, min: min,
		kmh: km.Div(h).Named("km/h"),
		mph: mi.Div(h).Named("mph"),
		w:   w, kw: kw, hp: hp,
	}
	sys.channels = map[string]*units.Unit{
		"distance": km,
		"speed":    sys.kmh,
		"power":    kw,
	}
	sys.sources = map[string][]*units.Unit{
		"distance": {m, ft, mi, km},
		"speed":    {sys.mph, m.Div(s), ft.Div(s), sys.kmh},
		"power":    {w, hp, kw},
	}
	// none of these fit any channel
	sys.incompatible = []*units.Unit{kg, s.Mul(s), m.Mul(kg)}
	return sys
}

func (o *demoOptions) Run(ctx context.Context) error {
	level, err := logrus.ParseLevel(o.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(o.out)
	logger.SetLevel(level)

	registry := actions.NewActionRegistry()
	logHandler := actions.NewLogHandler(logger)
	registry.RegisterHandler(actions.ConvertedAction, logHandler)
	registry.RegisterHandler(actions.MismatchAction, logHandler)

	server := feed.NewServer(
		feed.WithPort(o.Port),
		feed.WithLogger(logger),
		feed.WithActions(registry),
	)

	sys := newSystem()
	for name, display := range sys.channels {
		if err := server.AddChannel(name, display); err != nil {
			return err
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	fmt.Fprintf(o.out, "Feed available at: http://localhost:%d\n", o.Port)
	fmt.Fprintln(o.out, "  - GET /api/channels")
	fmt.Fprintln(o.out, "  - GET /api/history?channel=speed")
	fmt.Fprintln(o.out, "  - GET /ws")
	fmt.Fprintln(o.out, "  - GET /metrics")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.publishBatch(server, sys, rng)
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("shutting down")
			return server.Stop()
		}
	}
}

func (o *demoOptions) publishBatch(server *feed.Server, sys *system, rng *rand.Rand) {
	for channel, candidates := range sys.sources {
		unit := candidates[rng.Intn(len(candidates))]
		if rng.Float64() < o.RejectRate {
			unit = sys.incompatible[rng.Intn(len(sys.incompatible))]
		}
		// errors are already reported through the action handlers
		server.Publish(channel, "demo", units.New(1+rng.Float64()*99, unit))
	}
}
