package simulation

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// The environment variables read by LoadConfig.
const (
	EnvParallel         = "RSIM_PARALLEL"
	EnvWorkers          = "RSIM_WORKERS"
	EnvMaxSteps         = "RSIM_MAX_STEPS"
	EnvMaxPassesPerStep = "RSIM_MAX_PASSES_PER_STEP"
	EnvMonitor          = "RSIM_MONITOR"
	EnvMonitorPort      = "RSIM_MONITOR_PORT"
	EnvTraceFile        = "RSIM_TRACE_FILE"
)

// Config collects the options that a simulation can be built with.
type Config struct {
	// Parallel selects the parallel driver.
	Parallel bool

	// Workers is the number of goroutines of the parallel driver. Zero means
	// one per CPU.
	Workers int

	// MaxSteps bounds the number of steps of a run. Zero means unbounded.
	MaxSteps int

	// MaxPassesPerStep bounds the number of passes of a step. Zero means
	// unbounded.
	MaxPassesPerStep int

	// Monitor starts the HTTP monitor.
	Monitor bool

	// MonitorPort is the port of the monitor. Zero picks a random port.
	MonitorPort int

	// TraceFile is the name of the SQLite file that receives the port
	// events, without extension. Empty disables tracing.
	TraceFile string
}

// DefaultConfig returns a config for a serial, unmonitored, untraced run.
func DefaultConfig() Config {
	return Config{}
}

// LoadConfig reads the configuration from the environment. The given files
// are read as dotenv files first; variables already set in the process
// environment take precedence over them.
func LoadConfig(files ...string) (Config, error) {
	fileEnv := map[string]string{}

	if len(files) > 0 {
		env, err := godotenv.Read(files...)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config files")
		}

		fileEnv = env
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := fileEnv[key]

		return v, ok
	}

	c := DefaultConfig()
	p := envParser{lookup: lookup}

	p.boolVar(&c.Parallel, EnvParallel)
	p.intVar(&c.Workers, EnvWorkers)
	p.intVar(&c.MaxSteps, EnvMaxSteps)
	p.intVar(&c.MaxPassesPerStep, EnvMaxPassesPerStep)
	p.boolVar(&c.Monitor, EnvMonitor)
	p.intVar(&c.MonitorPort, EnvMonitorPort)

	if v, ok := lookup(EnvTraceFile); ok {
		c.TraceFile = v
	}

	if p.err != nil {
		return Config{}, p.err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate reports the combinations that Builder.WithConfig would refuse.
func (c Config) Validate() error {
	if c.Workers < 0 || c.MaxSteps < 0 || c.MaxPassesPerStep < 0 {
		return errors.New("workers and limits must not be negative")
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return errors.Errorf("invalid monitor port %d", c.MonitorPort)
	}

	if c.MonitorPort != 0 && !c.Monitor {
		return errors.Errorf(
			"monitor port %d is set but monitoring is off", c.MonitorPort)
	}

	return nil
}

// envParser keeps the first parse error so that the variables can be read
// one after another.
type envParser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *envParser) boolVar(dst *bool, key string) {
	v, ok := p.lookup(key)
	if !ok || v == "" || p.err != nil {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = errors.Wrapf(err, "parsing %s", key)
		return
	}

	*dst = b
}

func (p *envParser) intVar(dst *int, key string) {
	v, ok := p.lookup(key)
	if !ok || v == "" || p.err != nil {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = errors.Wrapf(err, "parsing %s", key)
		return
	}

	if n < 0 {
		p.err = errors.Errorf("%s must not be negative, got %d", key, n)
		return
	}

	*dst = n
}
