package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarchlab/rsim/examples/loop"
	"github.com/sarchlab/rsim/examples/ping"
	"github.com/sarchlab/rsim/sim"
	"github.com/sarchlab/rsim/simulation"
	"github.com/sarchlab/rsim/tracing"
)

type runOptions struct {
	root *rootOptions

	parallel    bool
	workers     int
	maxSteps    int
	maxPasses   int
	monitor     bool
	monitorPort int
	traceFile   string
	logEvents   bool
	openBrowser bool
}

// A network registers its components with a simulation and prints what it
// computed once the simulation ends.
type network interface {
	validate() error
	build(s *simulation.Simulation)
	report(w io.Writer)
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an example network.",
	}

	flags := runCmd.PersistentFlags()
	flags.BoolVar(&opts.parallel, "parallel", false,
		"poll the components in parallel")
	flags.IntVar(&opts.workers, "workers", 0,
		"number of parallel workers, 0 for one per CPU")
	flags.IntVar(&opts.maxSteps, "max-steps", 0,
		"stop after this many steps, 0 for no limit")
	flags.IntVar(&opts.maxPasses, "max-passes", 0,
		"fail a step after this many passes, 0 for no limit")
	flags.BoolVar(&opts.monitor, "monitor", false,
		"serve the monitoring page while running")
	flags.IntVar(&opts.monitorPort, "monitor-port", 0,
		"port of the monitoring page, 0 for a random port")
	flags.StringVar(&opts.traceFile, "trace", "",
		"record port events into this SQLite file (without extension)")
	flags.BoolVar(&opts.logEvents, "log-events", false,
		"log every port event at debug level")
	flags.BoolVar(&opts.openBrowser, "open-browser", false,
		"open the monitoring page in a browser")

	runCmd.AddCommand(newRunPingCmd(opts))
	runCmd.AddCommand(newRunLoopCmd(opts))

	return runCmd
}

func newRunPingCmd(opts *runOptions) *cobra.Command {
	n := &pingNetwork{}

	c := &cobra.Command{
		Use:   "ping",
		Short: "A clocked pinger and an echo agent.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, n)
		},
	}

	c.Flags().IntVar(&n.numPings, "pings", 3, "number of pings to send")
	c.Flags().Uint64Var(&n.interval, "interval", 1, "cycles between pings")
	c.Flags().Uint64Var(&n.latency, "latency", 2,
		"cycles the echo agent waits before answering")

	return c
}

func newRunLoopCmd(opts *runOptions) *cobra.Command {
	n := &loopNetwork{}

	c := &cobra.Command{
		Use:   "loop",
		Short: "A seed feeding a feedback ring of two components.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, n)
		},
	}

	c.Flags().IntVar(&n.seed, "seed", 10, "value sent by the first seed")
	c.Flags().IntVar(&n.numRings, "rings", 1,
		"number of independent rings, ring i is seeded with seed+i")

	return c
}

// config merges the dotenv files and the environment with the flags that
// were set explicitly.
func (o *runOptions) config(cmd *cobra.Command) (simulation.Config, error) {
	c, err := simulation.LoadConfig(o.root.envFiles...)
	if err != nil {
		return c, err
	}

	flags := cmd.Flags()

	if flags.Changed("parallel") {
		c.Parallel = o.parallel
	}

	if flags.Changed("workers") {
		c.Workers = o.workers
	}

	if flags.Changed("max-steps") {
		c.MaxSteps = o.maxSteps
	}

	if flags.Changed("max-passes") {
		c.MaxPassesPerStep = o.maxPasses
	}

	if flags.Changed("monitor") {
		c.Monitor = o.monitor
	}

	if flags.Changed("monitor-port") {
		c.MonitorPort = o.monitorPort
	}

	if flags.Changed("trace") {
		c.TraceFile = o.traceFile
	}

	return c, c.Validate()
}

func (o *runOptions) run(cmd *cobra.Command, n network) (err error) {
	c, err := o.config(cmd)
	if err != nil {
		return err
	}

	if err := n.validate(); err != nil {
		return err
	}

	b := simulation.MakeBuilder().WithConfig(c)
	if o.logEvents {
		b = b.WithEventLogging()
	}

	s := b.Build()
	defer func() {
		if termErr := s.Terminate(); err == nil {
			err = termErr
		}
	}()

	n.build(s)

	counter := tracing.NewObservationCounter(nil)
	tracing.CollectTraceAll(s.Manager(), counter)

	if err := s.Prepare(); err != nil {
		return err
	}

	if s.Monitor() != nil && o.openBrowser {
		if err := s.Monitor().OpenInBrowser(); err != nil {
			zap.L().Warn("cannot open browser", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stats, err := s.Run(ctx)

	out := cmd.OutOrStdout()
	printStats(out, s, stats, counter)
	n.report(out)

	return err
}

func printStats(
	w io.Writer,
	s *simulation.Simulation,
	stats sim.Stats,
	counter *tracing.ObservationCounter,
) {
	fmt.Fprintf(w, "run %s: %d steps, %d passes, %d observations\n",
		s.ID(), stats.Steps, stats.Passes, stats.Observations)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tSEND\tRECV\tACK\tSUPERSEDE")

	for _, port := range counter.Ports() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", port,
			counter.Count(port, tracing.KindSend),
			counter.Count(port, tracing.KindRecv),
			counter.Count(port, tracing.KindAck),
			counter.Count(port, tracing.KindSupersede),
		)
	}

	_ = tw.Flush()
}

type pingNetwork struct {
	numPings int
	interval uint64
	latency  uint64

	pinger *ping.Comp
}

func (n *pingNetwork) validate() error {
	if n.numPings < 0 {
		return errors.Errorf("--pings must not be negative, got %d", n.numPings)
	}

	if n.interval == 0 {
		return errors.New("--interval must be at least 1")
	}

	return nil
}

func (n *pingNetwork) build(s *simulation.Simulation) {
	b := ping.MakeBuilder().
		WithManager(s.Manager()).
		WithNumPings(n.numPings).
		WithInterval(n.interval).
		WithEchoLatency(n.latency)

	n.pinger = b.Build("Pinger")
	echo := b.BuildEcho("Echo")
	ping.Connect(n.pinger, echo)

	s.RegisterComponent(n.pinger)
	s.RegisterComponent(echo)
}

func (n *pingNetwork) report(w io.Writer) {
	for _, r := range n.pinger.Results() {
		fmt.Fprintf(w, "Ping %d, sent at cycle %d, %d cycles\n",
			r.SeqID, r.SendCycle, r.Latency())
	}
}

type loopNetwork struct {
	seed     int
	numRings int

	rings []loop.Ring
	names []string
}

func (n *loopNetwork) validate() error {
	if n.numRings < 1 {
		return errors.Errorf("--rings must be at least 1, got %d", n.numRings)
	}

	return nil
}

func (n *loopNetwork) build(s *simulation.Simulation) {
	b := loop.MakeBuilder().WithManager(s.Manager())

	for i := 0; i < n.numRings; i++ {
		name := sim.BuildNameWithIndex("", "Ring", i)
		ring := b.WithSeed(n.seed + i).Build(name)

		for _, c := range ring.Components() {
			s.RegisterComponent(c)
		}

		n.rings = append(n.rings, ring)
		n.names = append(n.names, name)
	}
}

func (n *loopNetwork) report(w io.Writer) {
	for i, ring := range n.rings {
		fmt.Fprintf(w, "%s: fixed point %d after %d adder evaluations\n",
			n.names[i], ring.Adder.Last(), ring.Adder.Evaluations())
	}
}
