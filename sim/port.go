package sim

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// HookPosPortSend marks when a value is pushed into a sender.
var HookPosPortSend = &HookPos{Name: "Port Send"}

// HookPosPortCommit marks when a staged value becomes visible to the
// receiver at a pass boundary.
var HookPosPortCommit = &HookPos{Name: "Port Commit"}

// HookPosPortRecv marks when a receiver observes a value for the first time.
var HookPosPortRecv = &HookPos{Name: "Port Recv"}

// HookPosPortAck marks when a receiver acknowledges an observed value.
var HookPosPortAck = &HookPos{Name: "Port Ack"}

// HookPosPortSupersede marks when a value is discarded without ever being
// observed, either replaced by a newer value or cleared by a reset.
var HookPosPortSupersede = &HookPos{Name: "Port Supersede"}

// RecvResult is the outcome of a non-blocking receive.
type RecvResult int

// The three possible receive outcomes.
const (
	// NoValue means nothing arrived since the last acknowledged value.
	NoValue RecvResult = iota
	// NewValue means a value is observed for the first time.
	NewValue
	// Repeated means the held value was already observed but not yet
	// acknowledged.
	Repeated
)

func (r RecvResult) String() string {
	switch r {
	case NoValue:
		return "NoValue"
	case NewValue:
		return "NewValue"
	case Repeated:
		return "Repeated"
	default:
		return fmt.Sprintf("RecvResult(%d)", int(r))
	}
}

// An Event is a value in flight between a sender and a receiver.
type Event[T any] struct {
	ID     EventID
	Origin ComponentID
	Value  T
}

func (e Event[T]) portEvent(port string) PortEvent {
	return PortEvent{Port: port, ID: e.ID, Origin: e.Origin, Value: e.Value}
}

// PortEvent is the item passed to hooks at all port hook positions.
type PortEvent struct {
	Port   string
	ID     EventID
	Origin ComponentID
	Value  any
}

// A Port is one end of a point-to-point connection.
type Port interface {
	Named
	Hookable

	// Owner returns the component that owns this end of the connection.
	Owner() ComponentID

	// Peer returns the other end, or nil if the port is not connected.
	Peer() Port
}

// PortStatus is a snapshot of a receiver, used for hang detection.
type PortStatus struct {
	Name     string `json:"name"`
	Staged   bool   `json:"staged"`
	Visible  bool   `json:"visible"`
	Observed bool   `json:"observed"`
}

// Stuck tells if the receiver holds a value that is waiting for its owner.
func (s PortStatus) Stuck() bool {
	return s.Observed || (s.Visible && s.Staged)
}

// latch is implemented by receivers so that the manager can move staged
// values across the pass boundary.
type latch interface {
	Name() string
	commit() bool
	committable() bool
	status() PortStatus
}

// A Sender is the producing end of a port. It never blocks and never learns
// whether or when its value is consumed.
type Sender[T any] struct {
	*HookableBase

	name  string
	owner ComponentID
	mgr   *Manager
	peer  *Receiver[T]
}

// NewSender creates an unconnected sender owned by the given component.
func NewSender[T any](mgr *Manager, owner ComponentID, name string) *Sender[T] {
	s := &Sender[T]{
		HookableBase: NewHookableBase(),
		name:         name,
		owner:        owner,
		mgr:          mgr,
	}

	mgr.registerPort(s)

	return s
}

// Name returns the name of the port.
func (s *Sender[T]) Name() string {
	return s.name
}

// Owner returns the id of the component that sends through this port.
func (s *Sender[T]) Owner() ComponentID {
	return s.owner
}

// Peer returns the connected receiver.
func (s *Sender[T]) Peer() Port {
	if s.peer == nil {
		return nil
	}

	return s.peer
}

// Send pushes a value towards the receiver. The value becomes visible to the
// receiver at the next pass boundary.
func (s *Sender[T]) Send(v T) EventID {
	if s.peer == nil {
		panic(fmt.Sprintf("sender %s is not connected", s.name))
	}

	evt := Event[T]{
		ID:     s.mgr.nextEventID(),
		Origin: s.owner,
		Value:  v,
	}

	s.mgr.eventSent(s.owner)
	s.peer.stage(evt)

	s.InvokeHook(HookCtx{
		Domain: s,
		Pos:    HookPosPortSend,
		Item:   evt.portEvent(s.name),
	})

	return evt.ID
}

type recvState int

const (
	recvEmpty recvState = iota
	recvVisible
	recvObserved
)

// A Receiver is the consuming end of a port. It holds at most one staged
// value and one visible value.
type Receiver[T any] struct {
	*HookableBase

	lock  sync.Mutex
	name  string
	owner ComponentID
	mgr   *Manager
	peer  *Sender[T]

	defaultValue T
	value        T
	staged       *Event[T]
	visible      *Event[T]
	state        recvState
}

// NewReceiver creates an unconnected receiver owned by the given component.
func NewReceiver[T any](
	mgr *Manager,
	owner ComponentID,
	name string,
) *Receiver[T] {
	r := &Receiver[T]{
		HookableBase: NewHookableBase(),
		name:         name,
		owner:        owner,
		mgr:          mgr,
	}

	mgr.registerPort(r)

	return r
}

// Name returns the name of the port.
func (r *Receiver[T]) Name() string {
	return r.name
}

// Owner returns the id of the component that reads from this port.
func (r *Receiver[T]) Owner() ComponentID {
	return r.owner
}

// Peer returns the connected sender.
func (r *Receiver[T]) Peer() Port {
	if r.peer == nil {
		return nil
	}

	return r.peer
}

// SetDefault sets the value that Reset restores. It also sets the current
// value.
func (r *Receiver[T]) SetDefault(v T) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.defaultValue = v
	r.value = v
}

// Value returns the most recently received value, or the default value if
// nothing was received since the last reset.
func (r *Receiver[T]) Value() T {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.value
}

// TryRecv polls the receiver without blocking. On NewValue the returned value
// also becomes the receiver's current value.
func (r *Receiver[T]) TryRecv() (T, RecvResult) {
	r.lock.Lock()

	switch r.state {
	case recvEmpty:
		v := r.value
		r.lock.Unlock()
		return v, NoValue
	case recvObserved:
		v := r.value
		r.lock.Unlock()
		return v, Repeated
	}

	evt := *r.visible
	r.value = evt.Value
	r.state = recvObserved
	r.lock.Unlock()

	r.InvokeHook(HookCtx{
		Domain: r,
		Pos:    HookPosPortRecv,
		Item:   evt.portEvent(r.name),
	})

	return evt.Value, NewValue
}

// Ack signals that the observed value is fully processed. Each value is
// acknowledged once; after Ack, TryRecv returns NoValue until a new value
// arrives.
func (r *Receiver[T]) Ack() error {
	r.lock.Lock()

	if r.state != recvObserved {
		r.lock.Unlock()
		return errors.Wrapf(ErrNothingToAck, "port %s", r.name)
	}

	evt := *r.visible
	r.visible = nil
	r.state = recvEmpty
	r.lock.Unlock()

	r.mgr.eventDone(evt.Origin)

	r.InvokeHook(HookCtx{
		Domain: r,
		Pos:    HookPosPortAck,
		Item:   evt.portEvent(r.name),
	})

	return nil
}

// Reset drops any staged or visible value and restores the default value.
func (r *Receiver[T]) Reset() {
	r.lock.Lock()

	var dropped []Event[T]
	if r.staged != nil {
		dropped = append(dropped, *r.staged)
	}
	if r.visible != nil {
		dropped = append(dropped, *r.visible)
	}

	r.staged = nil
	r.visible = nil
	r.state = recvEmpty
	r.value = r.defaultValue
	r.lock.Unlock()

	for _, evt := range dropped {
		r.supersede(evt)
	}
}

func (r *Receiver[T]) stage(evt Event[T]) {
	r.lock.Lock()
	old := r.staged
	r.staged = &evt
	r.lock.Unlock()

	if old != nil {
		r.supersede(*old)
	}
}

func (r *Receiver[T]) commit() bool {
	r.lock.Lock()

	if r.staged == nil || r.state == recvObserved {
		r.lock.Unlock()
		return false
	}

	var old *Event[T]
	if r.state == recvVisible {
		old = r.visible
	}

	r.visible = r.staged
	r.staged = nil
	r.state = recvVisible
	evt := *r.visible
	r.lock.Unlock()

	if old != nil {
		r.supersede(*old)
	}

	r.InvokeHook(HookCtx{
		Domain: r,
		Pos:    HookPosPortCommit,
		Item:   evt.portEvent(r.name),
	})

	return true
}

func (r *Receiver[T]) committable() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.staged != nil && r.state != recvObserved
}

func (r *Receiver[T]) status() PortStatus {
	r.lock.Lock()
	defer r.lock.Unlock()

	return PortStatus{
		Name:     r.name,
		Staged:   r.staged != nil,
		Visible:  r.state == recvVisible,
		Observed: r.state == recvObserved,
	}
}

func (r *Receiver[T]) supersede(evt Event[T]) {
	r.mgr.eventDone(evt.Origin)

	r.InvokeHook(HookCtx{
		Domain: r,
		Pos:    HookPosPortSupersede,
		Item:   evt.portEvent(r.name),
	})
}

// Connect binds a sender to a receiver. Both ends must be created by the same
// manager and neither may be connected already.
func Connect[T any](s *Sender[T], r *Receiver[T]) {
	if s.mgr != r.mgr {
		panic(fmt.Sprintf(
			"cannot connect %s to %s: ports belong to different managers",
			s.name, r.name,
		))
	}

	if s.peer != nil {
		panic(fmt.Sprintf(
			"sender %s already connected to %s, now connecting to %s",
			s.name, s.peer.name, r.name,
		))
	}

	if r.peer != nil {
		panic(fmt.Sprintf(
			"receiver %s already connected to %s, now connecting to %s",
			r.name, r.peer.name, s.name,
		))
	}

	s.peer = r
	r.peer = s

	s.mgr.addLatch(r)
}
