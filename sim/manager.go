package sim

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HookPosClockTick marks when the manager broadcasts a clock tick. The item
// is the Tick.
var HookPosClockTick = &HookPos{Name: "Clock Tick"}

// A Manager is the coordination authority shared by all the components of a
// simulation. It owns the clock distribution, tracks which components keep
// the simulation alive, and accounts for every event in flight.
type Manager struct {
	*HookableBase

	lock sync.Mutex

	runID        string
	componentIDs IDGenerator
	eventIDs     IDGenerator

	doNotEnd      map[ComponentID]bool
	doNotEndOrder []ComponentID
	pendingWork   map[ComponentID]bool

	clocks []*Sender[Tick]
	cycle  uint64

	latches       []latch
	ports         []Port
	portNameIndex map[string]int

	outstanding map[ComponentID]int
	inFlight    int
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{
		HookableBase:  NewHookableBase(),
		runID:         NewRunID(),
		componentIDs:  NewIDGenerator(),
		eventIDs:      NewIDGenerator(),
		doNotEnd:      make(map[ComponentID]bool),
		pendingWork:   make(map[ComponentID]bool),
		portNameIndex: make(map[string]int),
		outstanding:   make(map[ComponentID]int),
	}
}

// ID returns the unique id of the simulation run.
func (m *Manager) ID() string {
	return m.runID
}

// NewComponentID assigns a fresh id to a component.
func (m *Manager) NewComponentID() ComponentID {
	return ComponentID(m.componentIDs.Generate())
}

// RegisterDoNotEnd marks a component as required for liveness. Registering
// the same component again has no effect.
func (m *Manager) RegisterDoNotEnd(id ComponentID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.doNotEnd[id] {
		return
	}

	m.doNotEnd[id] = true
	m.doNotEndOrder = append(m.doNotEndOrder, id)

	Logger().Debug("do-not-end registered", zap.Stringer("component", id))
}

// NumDoNotEnd returns the number of components registered as do-not-end.
func (m *Manager) NumDoNotEnd() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.doNotEndOrder)
}

// SetPendingWork lets a do-not-end component declare that it still has work
// to do even though none of its events are in flight, for example a
// stimulus generator between two sends.
func (m *Manager) SetPendingWork(id ComponentID, pending bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.pendingWork[id] = pending
}

// RegisterClockTick adds a clock sender to the broadcast set. Each sender can
// only be registered once.
func (m *Manager) RegisterClockTick(s *Sender[Tick]) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, c := range m.clocks {
		if c == s {
			panic(fmt.Sprintf("clock sender %s already registered", s.Name()))
		}
	}

	m.clocks = append(m.clocks, s)
}

// NumClocks returns the number of registered clock senders.
func (m *Manager) NumClocks() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.clocks)
}

// Cycle returns the number of ticks broadcast so far.
func (m *Manager) Cycle() uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.cycle
}

// BroadcastTick sends a new tick to every registered clock sender and
// returns the number of ticks sent. With no clock registered it only
// advances the cycle counter.
func (m *Manager) BroadcastTick() int {
	m.lock.Lock()
	m.cycle++
	tick := Tick{Cycle: m.cycle}
	clocks := make([]*Sender[Tick], len(m.clocks))
	copy(clocks, m.clocks)
	m.lock.Unlock()

	for _, c := range clocks {
		c.Send(tick)
	}

	m.InvokeHook(HookCtx{
		Domain: m,
		Pos:    HookPosClockTick,
		Item:   tick,
		Detail: len(clocks),
	})

	return len(clocks)
}

// AdvancePass moves the pass boundary: every receiver whose staged value can
// be committed makes it visible. It returns the number of values committed.
func (m *Manager) AdvancePass() int {
	latches := m.latchSnapshot()

	committed := 0
	for _, l := range latches {
		if l.commit() {
			committed++
		}
	}

	return committed
}

// HasCommittable tells if the next pass boundary would commit any value.
func (m *Manager) HasCommittable() bool {
	for _, l := range m.latchSnapshot() {
		if l.committable() {
			return true
		}
	}

	return false
}

// Alive tells if any do-not-end component still has events in flight or has
// declared pending work.
func (m *Manager) Alive() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, id := range m.doNotEndOrder {
		if m.outstanding[id] > 0 || m.pendingWork[id] {
			return true
		}
	}

	return false
}

// InFlight returns the number of events sent but not yet acknowledged or
// superseded.
func (m *Manager) InFlight() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.inFlight
}

// Outstanding returns the number of in-flight events sent by a component.
func (m *Manager) Outstanding(id ComponentID) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.outstanding[id]
}

// Ports returns all the ports created through this manager.
func (m *Manager) Ports() []Port {
	m.lock.Lock()
	defer m.lock.Unlock()

	ports := make([]Port, len(m.ports))
	copy(ports, m.ports)

	return ports
}

// GetPortByName returns the port with the given name, or nil.
func (m *Manager) GetPortByName(name string) Port {
	m.lock.Lock()
	defer m.lock.Unlock()

	i, found := m.portNameIndex[name]
	if !found {
		return nil
	}

	return m.ports[i]
}

// StuckPorts lists the receivers that hold a value waiting for their owner,
// sorted by name.
func (m *Manager) StuckPorts() []PortStatus {
	var stuck []PortStatus

	for _, l := range m.latchSnapshot() {
		s := l.status()
		if s.Stuck() {
			stuck = append(stuck, s)
		}
	}

	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].Name < stuck[j].Name
	})

	return stuck
}

// Validate checks the port graph. Every port must be connected to a peer.
func (m *Manager) Validate() error {
	var dangling []string

	for _, p := range m.Ports() {
		if p.Peer() == nil {
			dangling = append(dangling, p.Name())
		}
	}

	if len(dangling) > 0 {
		return errors.Wrapf(ErrDanglingPort, "%s", strings.Join(dangling, ", "))
	}

	return nil
}

func (m *Manager) registerPort(p Port) {
	m.lock.Lock()
	defer m.lock.Unlock()

	name := p.Name()
	if _, found := m.portNameIndex[name]; found {
		panic("port " + name + " already registered")
	}

	m.ports = append(m.ports, p)
	m.portNameIndex[name] = len(m.ports) - 1
}

func (m *Manager) addLatch(l latch) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.latches = append(m.latches, l)
}

func (m *Manager) latchSnapshot() []latch {
	m.lock.Lock()
	defer m.lock.Unlock()

	latches := make([]latch, len(m.latches))
	copy(latches, m.latches)

	return latches
}

func (m *Manager) nextEventID() EventID {
	return EventID(m.eventIDs.Generate())
}

func (m *Manager) eventSent(origin ComponentID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.outstanding[origin]++
	m.inFlight++
}

func (m *Manager) eventDone(origin ComponentID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.outstanding[origin] <= 0 {
		panic(fmt.Sprintf("event from %s completed twice", origin))
	}

	m.outstanding[origin]--
	m.inFlight--
}
