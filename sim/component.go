package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HookPosBeforeClock marks when a component is about to run OnClock.
var HookPosBeforeClock = &HookPos{Name: "Before Clock"}

// HookPosBeforeComb marks when a component is about to run OnComb.
var HookPosBeforeComb = &HookPos{Name: "Before Comb"}

// HookPosComponentFailed marks when a callback of a component returns an
// error. The item is the error.
var HookPosComponentFailed = &HookPos{Name: "Component Failed"}

// A Named object is an object that has a name.
type Named interface {
	Name() string
}

// Spec is the declarative part of a component description.
type Spec struct {
	// Clock makes the component receive every clock tick.
	Clock bool `json:"clock"`

	// Primary marks the component as a liveness-critical driver, such as a
	// stimulus generator. The simulation does not end while a primary
	// component has work in flight.
	Primary bool `json:"is_primary"`
}

// ComponentState is the lifecycle state of a component.
type ComponentState int32

// The lifecycle states.
const (
	StateUninitialized ComponentState = iota
	StateInitialized
	StateIdle
	StateEvaluating
	StateFailed
)

func (s ComponentState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitialized:
		return "Initialized"
	case StateIdle:
		return "Idle"
	case StateEvaluating:
		return "Evaluating"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("ComponentState(%d)", int32(s))
	}
}

// Behavior is implemented by the user part of a component.
type Behavior interface {
	// InitImpl runs once, before the registrations with the manager.
	InitImpl() error

	// ResetImpl clears internal state. Ports are reset after it returns.
	ResetImpl() error

	// PollImpl runs at the beginning of every poll, before any port is
	// polled.
	PollImpl() error

	// OnComb recomputes outputs from the current input values.
	OnComb() error
}

// ClockedBehavior is implemented by components that are declared with a
// clock.
type ClockedBehavior interface {
	Behavior

	// OnClock runs once per tick, strictly before the OnComb of that tick.
	OnClock() error
}

// A Component is an element that is being simulated.
type Component interface {
	Named
	Hookable

	ID() ComponentID
	State() ComponentState

	// Init performs the one-time setup and the manager registrations.
	Init() error

	// Reset clears all the input ports and the internal state.
	Reset() error

	// PollRecv polls the clock and every input port once and returns the
	// number of new values and ticks observed.
	PollRecv() (int, error)

	// SnapshotInputs makes the current value of every input its previous
	// value. Drivers call it once at the start of each step.
	SnapshotInputs()
}

type input interface {
	Port
	snapshot()
	poll() RecvResult
	Ack() error
	reset()
}

// ComponentBase implements the Component lifecycle on top of a Behavior. User
// components embed it and declare their ports with AddInput and AddOutput.
type ComponentBase struct {
	*HookableBase

	name     string
	id       ComponentID
	mgr      *Manager
	spec     Spec
	behavior Behavior
	clocked  ClockedBehavior

	clockOut *Sender[Tick]
	clockIn  *Receiver[Tick]

	inputs  []input
	outputs []Port

	state atomic.Int32
}

// NewComponentBase creates a ComponentBase and assigns it an id. The name
// must be valid and a clocked spec requires the behavior to implement
// ClockedBehavior.
func NewComponentBase(
	name string,
	mgr *Manager,
	spec Spec,
	behavior Behavior,
) *ComponentBase {
	NameMustBeValid(name)

	c := &ComponentBase{
		HookableBase: NewHookableBase(),
		name:         name,
		id:           mgr.NewComponentID(),
		mgr:          mgr,
		spec:         spec,
		behavior:     behavior,
	}

	if spec.Clock {
		clocked, ok := behavior.(ClockedBehavior)
		if !ok {
			panic(fmt.Sprintf(
				"component %s is declared with a clock but has no OnClock",
				name,
			))
		}

		c.clocked = clocked
		c.clockOut, c.clockIn = newClockPair(mgr, c.id, name)
	}

	return c
}

// Name returns the name of the component.
func (c *ComponentBase) Name() string {
	return c.name
}

// ID returns the id assigned by the manager.
func (c *ComponentBase) ID() ComponentID {
	return c.id
}

// Manager returns the manager that the component registers with.
func (c *ComponentBase) Manager() *Manager {
	return c.mgr
}

// Spec returns the declarative description of the component.
func (c *ComponentBase) Spec() Spec {
	return c.spec
}

// State returns the lifecycle state.
func (c *ComponentBase) State() ComponentState {
	return ComponentState(c.state.Load())
}

func (c *ComponentBase) setState(s ComponentState) {
	c.state.Store(int32(s))
}

// Ports returns the input ports followed by the output ports.
func (c *ComponentBase) Ports() []Port {
	ports := make([]Port, 0, len(c.inputs)+len(c.outputs))
	for _, in := range c.inputs {
		ports = append(ports, in)
	}

	return append(ports, c.outputs...)
}

// Init runs InitImpl and performs the registrations required by the spec.
func (c *ComponentBase) Init() error {
	if c.State() != StateUninitialized {
		return errors.Wrapf(ErrAlreadyInitialized, "%s", c.name)
	}

	if err := c.behavior.InitImpl(); err != nil {
		return c.fail(err, "init")
	}

	if c.spec.Primary {
		c.mgr.RegisterDoNotEnd(c.id)
	}

	if c.spec.Clock {
		c.mgr.RegisterClockTick(c.clockOut)
	}

	c.setState(StateInitialized)

	return nil
}

// Reset runs ResetImpl and then resets the clock and every input port.
func (c *ComponentBase) Reset() error {
	if c.State() == StateUninitialized {
		return errors.Wrapf(ErrNotInitialized, "%s", c.name)
	}

	if err := c.behavior.ResetImpl(); err != nil {
		return c.fail(err, "reset")
	}

	if c.clockIn != nil {
		c.clockIn.Reset()
	}

	for _, in := range c.inputs {
		in.reset()
	}

	c.setState(StateInitialized)

	return nil
}

// SnapshotInputs makes the current value of every input its previous value.
func (c *ComponentBase) SnapshotInputs() {
	for _, in := range c.inputs {
		in.snapshot()
	}
}

// PollRecv runs PollImpl and then polls the clock and the inputs in
// declaration order.
func (c *ComponentBase) PollRecv() (int, error) {
	switch c.State() {
	case StateUninitialized:
		return 0, errors.Wrapf(ErrNotInitialized, "%s", c.name)
	case StateFailed:
		return 0, errors.Wrapf(ErrComponentFailed, "%s", c.name)
	}

	c.setState(StateEvaluating)

	if err := c.behavior.PollImpl(); err != nil {
		return 0, c.fail(err, "poll")
	}

	observed := 0

	n, err := c.pollClock()
	observed += n
	if err != nil {
		return observed, err
	}

	for _, in := range c.inputs {
		res := in.poll()

		if res == NewValue {
			observed++

			if err := c.comb(); err != nil {
				return observed, err
			}
		}

		if res != NoValue {
			if err := in.Ack(); err != nil {
				return observed, c.fail(err, "ack")
			}
		}
	}

	c.setState(StateIdle)

	return observed, nil
}

func (c *ComponentBase) pollClock() (int, error) {
	if c.clockIn == nil {
		return 0, nil
	}

	observed := 0

	tick, res := c.clockIn.TryRecv()
	if res == NewValue {
		observed++

		c.InvokeHook(HookCtx{Domain: c, Pos: HookPosBeforeClock, Item: tick})

		if err := c.clocked.OnClock(); err != nil {
			return observed, c.fail(err, "clock")
		}

		if err := c.comb(); err != nil {
			return observed, err
		}
	}

	if res != NoValue {
		if err := c.clockIn.Ack(); err != nil {
			return observed, c.fail(err, "ack")
		}
	}

	return observed, nil
}

func (c *ComponentBase) comb() error {
	c.InvokeHook(HookCtx{Domain: c, Pos: HookPosBeforeComb})

	if err := c.behavior.OnComb(); err != nil {
		return c.fail(err, "comb")
	}

	return nil
}

func (c *ComponentBase) fail(err error, stage string) error {
	c.setState(StateFailed)

	Logger().Error("component callback failed",
		zap.String("component", c.name),
		zap.String("stage", stage),
		zap.Error(err),
	)

	c.InvokeHook(HookCtx{
		Domain: c,
		Pos:    HookPosComponentFailed,
		Item:   err,
		Detail: stage,
	})

	return errors.Wrapf(err, "%s: %s", c.name, stage)
}
