package simulation

import (
	"github.com/sarchlab/rsim/datarecording"
	"github.com/sarchlab/rsim/monitoring"
	"github.com/sarchlab/rsim/sim"
	"github.com/sarchlab/rsim/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	parallelDriver   bool
	workers          int
	monitorOn        bool
	monitorPort      int
	traceFile        string
	maxSteps         int
	maxPassesPerStep int
	logEvents        bool
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithConfig applies every option of the config.
func (b Builder) WithConfig(c Config) Builder {
	b.parallelDriver = c.Parallel
	b.workers = c.Workers
	b.monitorOn = c.Monitor
	b.monitorPort = c.MonitorPort
	b.traceFile = c.TraceFile
	b.maxSteps = c.MaxSteps
	b.maxPassesPerStep = c.MaxPassesPerStep

	return b
}

// WithParallelDriver sets the simulation to use a parallel driver with the
// given number of workers. Zero workers means one per CPU.
func (b Builder) WithParallelDriver(workers int) Builder {
	b.parallelDriver = true
	b.workers = workers

	return b
}

// WithMonitoring sets the simulation to start the HTTP monitor.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	b.monitorPort = 0

	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithTraceFile records every port event into the given SQLite file.
func (b Builder) WithTraceFile(name string) Builder {
	b.traceFile = name
	return b
}

// WithLimits bounds the number of steps of a run and the number of passes
// of a step. Zero means unbounded.
func (b Builder) WithLimits(maxSteps, maxPassesPerStep int) Builder {
	b.maxSteps = maxSteps
	b.maxPassesPerStep = maxPassesPerStep

	return b
}

// WithEventLogging logs every port event and step through the kernel
// logger at debug level.
func (b Builder) WithEventLogging() Builder {
	b.logEvents = true
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.workers < 0 || b.maxSteps < 0 || b.maxPassesPerStep < 0 {
		panic("workers and limits must not be negative")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		manager:   sim.NewManager(),
		logEvents: b.logEvents,
	}

	if b.parallelDriver {
		s.driver = sim.NewParallelDriver(s.manager, b.workers)
	} else {
		s.driver = sim.NewSerialDriver(s.manager)
	}

	s.driver.SetLimits(b.maxSteps, b.maxPassesPerStep)
	s.maxSteps = b.maxSteps

	if b.traceFile != "" {
		s.dataRecorder = datarecording.NewDataRecorder(b.traceFile)
		s.dbTracer = tracing.NewDBTracer(s.driver, s.dataRecorder)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithPortNumber(b.monitorPort)
		s.monitor.RegisterDriver(s.driver)

		s.metricTracer = tracing.NewMetricTracer(nil)
		if err := s.metricTracer.Register(s.monitor.Registry()); err != nil {
			panic(err)
		}
	}

	return s
}
