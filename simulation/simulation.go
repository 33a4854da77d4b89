// Package simulation assembles the manager, the driver, and the optional
// monitor and trace recorder of a simulation.
package simulation

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sarchlab/rsim/datarecording"
	"github.com/sarchlab/rsim/monitoring"
	"github.com/sarchlab/rsim/sim"
	"github.com/sarchlab/rsim/tracing"
)

// A Simulation provides the services required to define and run a
// simulation.
type Simulation struct {
	manager *sim.Manager
	driver  sim.Driver

	dataRecorder datarecording.DataRecorder
	dbTracer     *tracing.DBTracer
	metricTracer *tracing.MetricTracer
	monitor      *monitoring.Monitor

	maxSteps  int
	logEvents bool
	prepared  bool
}

// ID returns the run id of the simulation.
func (s *Simulation) ID() string {
	return s.manager.ID()
}

// Manager returns the manager that components register with.
func (s *Simulation) Manager() *sim.Manager {
	return s.manager
}

// Driver returns the driver that runs the simulation.
func (s *Simulation) Driver() sim.Driver {
	return s.driver
}

// DataRecorder returns the recorder of the trace file, or nil if tracing is
// off.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Tracer returns the tracer that writes port events, or nil if tracing is
// off.
func (s *Simulation) Tracer() *tracing.DBTracer {
	return s.dbTracer
}

// Monitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// RegisterComponent registers a component with the simulation.
func (s *Simulation) RegisterComponent(c sim.Component) {
	s.driver.RegisterComponent(c)
}

// Components returns all the registered components.
func (s *Simulation) Components() []sim.Component {
	return s.driver.Components()
}

// GetComponentByName returns the component with the given name, or nil.
func (s *Simulation) GetComponentByName(name string) sim.Component {
	return s.driver.GetComponentByName(name)
}

// GetPortByName returns the port with the given name, or nil.
func (s *Simulation) GetPortByName(name string) sim.Port {
	return s.manager.GetPortByName(name)
}

// Prepare validates the port graph, initializes the components, and
// attaches the tracer, the event logger, and the monitor. Run calls it if
// it has not been called.
func (s *Simulation) Prepare() error {
	if s.prepared {
		return nil
	}

	if err := s.manager.Validate(); err != nil {
		return err
	}

	if err := s.driver.InitComponents(); err != nil {
		return err
	}

	if s.dbTracer != nil {
		tracing.CollectTraceAll(s.manager, s.dbTracer)
	}

	if s.metricTracer != nil {
		tracing.CollectTraceAll(s.manager, s.metricTracer)
	}

	if s.logEvents {
		s.attachEventLogger()
	}

	if s.monitor != nil {
		if _, err := s.monitor.StartServer(); err != nil {
			return err
		}
	}

	s.prepared = true

	return nil
}

func (s *Simulation) attachEventLogger() {
	logger := sim.NewEventLogger(sim.Logger())

	s.manager.AcceptHook(logger)
	s.driver.AcceptHook(logger)

	for _, p := range s.manager.Ports() {
		p.AcceptHook(logger)
	}
}

// Run prepares the simulation and runs it until it terminates. The
// statistics of the run are attached to the execution record of the trace
// file.
func (s *Simulation) Run(ctx context.Context) (sim.Stats, error) {
	if err := s.Prepare(); err != nil {
		return sim.Stats{}, err
	}

	var bar *monitoring.ProgressBar
	if s.monitor != nil && s.maxSteps > 0 {
		bar = s.monitor.CreateProgressBar("Steps", uint64(s.maxSteps))
		s.driver.AcceptHook(sim.NewHookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == sim.HookPosAfterStep {
				bar.IncrementFinished(1)
			}
		}))
	}

	stats, err := s.driver.Run(ctx)

	if bar != nil {
		s.monitor.CompleteProgressBar(bar)
	}

	s.recordRun(stats, err)

	return stats, err
}

func (s *Simulation) recordRun(stats sim.Stats, runErr error) {
	sim.Logger().Info("simulation ended",
		zap.String("run", s.ID()),
		zap.Uint64("steps", stats.Steps),
		zap.Uint64("passes", stats.Passes),
		zap.Uint64("observations", stats.Observations),
		zap.Error(runErr),
	)

	if s.dataRecorder == nil {
		return
	}

	result := "terminated"
	if runErr != nil {
		result = runErr.Error()
	}

	s.dataRecorder.RecordExecInfo("Run ID", s.ID())
	s.dataRecorder.RecordExecInfo("Steps", strconv.FormatUint(stats.Steps, 10))
	s.dataRecorder.RecordExecInfo("Passes",
		strconv.FormatUint(stats.Passes, 10))
	s.dataRecorder.RecordExecInfo("Observations",
		strconv.FormatUint(stats.Observations, 10))
	s.dataRecorder.RecordExecInfo("Result", result)
}

// Terminate stops the monitor and closes the trace file.
func (s *Simulation) Terminate() error {
	var err error

	if s.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err = multierr.Append(err, s.monitor.StopServer(ctx))
	}

	if s.dbTracer != nil {
		s.dbTracer.Terminate()
	}

	if s.dataRecorder != nil {
		err = multierr.Append(err, s.dataRecorder.Close())
	}

	return errors.Wrap(err, "terminating simulation")
}
