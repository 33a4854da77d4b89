package sim

// Tick is the payload broadcast on clock ports.
type Tick struct {
	Cycle uint64
}

// newClockPair creates the connected clock ports of a clocked component.
func newClockPair(
	mgr *Manager,
	owner ComponentID,
	name string,
) (*Sender[Tick], *Receiver[Tick]) {
	out := NewSender[Tick](mgr, owner, BuildName(name, "ClockOut"))
	in := NewReceiver[Tick](mgr, owner, BuildName(name, "ClockIn"))
	Connect(out, in)

	return out, in
}
