package sim

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HookPosBeforeStep is a hook position that triggers before a step starts.
var HookPosBeforeStep = &HookPos{Name: "BeforeStep"}

// HookPosAfterStep is a hook position that triggers after a step ends. The
// item is the StepResult.
var HookPosAfterStep = &HookPos{Name: "AfterStep"}

// HookPosBeforePass is a hook position that triggers before a pass starts.
var HookPosBeforePass = &HookPos{Name: "BeforePass"}

// HookPosAfterPass is a hook position that triggers after a pass ends. The
// item is the PassResult.
var HookPosAfterPass = &HookPos{Name: "AfterPass"}

// PassResult summarizes one pass over all the components.
type PassResult struct {
	// Committed is the number of values made visible at the pass boundary.
	Committed int

	// Observations is the number of new values and ticks observed.
	Observations int
}

// StepResult summarizes one simulation step.
type StepResult struct {
	Cycle        uint64
	Ticks        int
	Passes       int
	Observations int

	// Terminated is set when the run reached its termination condition
	// during this step.
	Terminated bool
}

// Stats is the running total of a driver.
type Stats struct {
	Steps        uint64 `json:"steps"`
	Passes       uint64 `json:"passes"`
	Observations uint64 `json:"observations"`
	Cycle        uint64 `json:"cycle"`
}

// A Driver repeatedly polls the components of a simulation until it reaches
// quiescence.
type Driver interface {
	Hookable

	// Manager returns the manager that the components register with.
	Manager() *Manager

	// RegisterComponent adds a component to the set being polled.
	RegisterComponent(c Component)

	// Components returns the registered components in registration order.
	Components() []Component

	// GetComponentByName returns the component with the given name, or nil.
	GetComponentByName(name string) Component

	// SetLimits bounds a run. Zero means unbounded.
	SetLimits(maxSteps, maxPassesPerStep int)

	// InitComponents initializes the components that are not initialized.
	InitComponents() error

	// ResetComponents resets every component.
	ResetComponents() error

	// Pass commits the pass boundary and polls every component once.
	Pass() (PassResult, error)

	// Step broadcasts a tick and runs passes until the step settles.
	Step(ctx context.Context) (StepResult, error)

	// Run steps until the simulation terminates.
	Run(ctx context.Context) (Stats, error)

	// Stats returns the running totals.
	Stats() Stats

	// Pause blocks the driver before the next step until Continue is called.
	Pause()

	// Continue resumes a paused driver.
	Continue()
}

type pollFunc func(comps []Component) (int, error)

// driverBase holds everything but the polling strategy.
type driverBase struct {
	*HookableBase

	mgr  *Manager
	poll pollFunc

	compLock      sync.RWMutex
	components    []Component
	compNameIndex map[string]int

	maxSteps         int
	maxPassesPerStep int

	statsLock sync.RWMutex
	stats     Stats

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

func newDriverBase(mgr *Manager) *driverBase {
	return &driverBase{
		HookableBase:  NewHookableBase(),
		mgr:           mgr,
		compNameIndex: make(map[string]int),
	}
}

// Manager returns the manager.
func (d *driverBase) Manager() *Manager {
	return d.mgr
}

// RegisterComponent registers a component. Names must be unique.
func (d *driverBase) RegisterComponent(c Component) {
	d.compLock.Lock()
	defer d.compLock.Unlock()

	name := c.Name()
	if _, found := d.compNameIndex[name]; found {
		panic("component " + name + " already registered")
	}

	d.components = append(d.components, c)
	d.compNameIndex[name] = len(d.components) - 1
}

// Components returns the registered components.
func (d *driverBase) Components() []Component {
	d.compLock.RLock()
	defer d.compLock.RUnlock()

	comps := make([]Component, len(d.components))
	copy(comps, d.components)

	return comps
}

// GetComponentByName returns the component with the given name.
func (d *driverBase) GetComponentByName(name string) Component {
	d.compLock.RLock()
	defer d.compLock.RUnlock()

	i, found := d.compNameIndex[name]
	if !found {
		return nil
	}

	return d.components[i]
}

// SetLimits sets the maximum number of steps per run and passes per step.
func (d *driverBase) SetLimits(maxSteps, maxPassesPerStep int) {
	d.maxSteps = maxSteps
	d.maxPassesPerStep = maxPassesPerStep
}

// InitComponents initializes every component that is still uninitialized.
func (d *driverBase) InitComponents() error {
	for _, c := range d.Components() {
		if c.State() != StateUninitialized {
			continue
		}

		if err := c.Init(); err != nil {
			return err
		}
	}

	return nil
}

// ResetComponents resets every component.
func (d *driverBase) ResetComponents() error {
	for _, c := range d.Components() {
		if err := c.Reset(); err != nil {
			return err
		}
	}

	return nil
}

// Stats returns the running totals.
func (d *driverBase) Stats() Stats {
	d.statsLock.RLock()
	defer d.statsLock.RUnlock()

	s := d.stats
	s.Cycle = d.mgr.Cycle()

	return s
}

// Pass commits the pass boundary and polls every component once.
func (d *driverBase) Pass() (PassResult, error) {
	d.pauseLock.Lock()
	defer d.pauseLock.Unlock()

	return d.pass()
}

func (d *driverBase) pass() (PassResult, error) {
	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosBeforePass})

	res := PassResult{Committed: d.mgr.AdvancePass()}

	n, err := d.poll(d.Components())
	res.Observations = n

	d.statsLock.Lock()
	d.stats.Passes++
	d.stats.Observations += uint64(n)
	d.statsLock.Unlock()

	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosAfterPass, Item: res})

	return res, err
}

// Step broadcasts a tick and runs passes until a pass observes nothing and
// nothing is left to commit.
func (d *driverBase) Step(ctx context.Context) (StepResult, error) {
	d.pauseLock.Lock()
	defer d.pauseLock.Unlock()

	return d.step(ctx)
}

func (d *driverBase) step(ctx context.Context) (StepResult, error) {
	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosBeforeStep})

	res := StepResult{Ticks: d.mgr.BroadcastTick()}
	res.Cycle = d.mgr.Cycle()

	d.snapshotInputs()

	for {
		if d.maxPassesPerStep > 0 && res.Passes >= d.maxPassesPerStep {
			return res, errors.Wrapf(ErrPassLimit,
				"cycle %d, %d passes", res.Cycle, res.Passes)
		}

		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "step interrupted")
		}

		p, err := d.pass()
		res.Passes++
		res.Observations += p.Observations

		if err != nil {
			return res, err
		}

		if d.terminated() {
			res.Terminated = true
			break
		}

		if p.Observations == 0 && !d.mgr.HasCommittable() {
			break
		}
	}

	d.statsLock.Lock()
	d.stats.Steps++
	d.statsLock.Unlock()

	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosAfterStep, Item: res})

	return res, nil
}

func (d *driverBase) snapshotInputs() {
	for _, c := range d.Components() {
		c.SnapshotInputs()
	}
}

func (d *driverBase) terminated() bool {
	return d.mgr.NumDoNotEnd() > 0 && !d.mgr.Alive() && d.mgr.InFlight() == 0
}

// Run initializes the components and steps until no do-not-end component has
// work left and no event is in flight. Without any do-not-end registration
// the run is a single pass.
func (d *driverBase) Run(ctx context.Context) (Stats, error) {
	d.singleRunLock.Lock()
	defer d.singleRunLock.Unlock()

	if err := d.InitComponents(); err != nil {
		return d.Stats(), err
	}

	if d.mgr.NumDoNotEnd() == 0 {
		d.snapshotInputs()
		_, err := d.Pass()

		Logger().Debug("no do-not-end component, single pass run",
			zap.String("run", d.mgr.ID()))

		return d.Stats(), err
	}

	var steps int
	for {
		if d.maxSteps > 0 && steps >= d.maxSteps {
			stuck := d.mgr.StuckPorts()
			Logger().Warn("step limit reached",
				zap.Int("steps", steps),
				zap.Int("in_flight", d.mgr.InFlight()),
				zap.Int("stuck_ports", len(stuck)),
			)

			return d.Stats(), errors.Wrapf(ErrStepLimit,
				"%d steps, %d events in flight", steps, d.mgr.InFlight())
		}

		res, err := d.Step(ctx)
		steps++

		if err != nil {
			return d.Stats(), err
		}

		Logger().Debug("step done",
			zap.Uint64("cycle", res.Cycle),
			zap.Int("passes", res.Passes),
			zap.Int("observations", res.Observations),
		)

		if res.Terminated {
			stats := d.Stats()
			Logger().Info("simulation quiescent",
				zap.String("run", d.mgr.ID()),
				zap.Uint64("steps", stats.Steps),
				zap.Uint64("passes", stats.Passes),
			)

			return stats, nil
		}
	}
}

// Pause prevents the driver from starting more passes.
func (d *driverBase) Pause() {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	if d.isPaused {
		return
	}

	d.pauseLock.Lock()
	d.isPaused = true
}

// Continue allows the driver to run passes again.
func (d *driverBase) Continue() {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	if !d.isPaused {
		return
	}

	d.pauseLock.Unlock()
	d.isPaused = false
}
