package sim

// An Input is an input port of a component. Value returns the current value,
// which changes as soon as a new value is received. Prev returns the value as
// it was at the start of the current step and does not change until the next
// tick.
type Input[T any] struct {
	*Receiver[T]

	prev T
}

// Prev returns the value of the input at the start of the current step.
func (in *Input[T]) Prev() T {
	return in.prev
}

func (in *Input[T]) snapshot() {
	in.prev = in.Value()
}

func (in *Input[T]) poll() RecvResult {
	_, res := in.TryRecv()
	return res
}

func (in *Input[T]) reset() {
	in.Reset()
	in.prev = in.Value()
}

// AddInput declares an input port on a component. The port is named after
// the component.
func AddInput[T any](c *ComponentBase, name string) *Input[T] {
	in := &Input[T]{
		Receiver: NewReceiver[T](c.mgr, c.id, BuildName(c.name, name)),
	}

	c.inputs = append(c.inputs, in)

	return in
}

// AddOutput declares an output port on a component.
func AddOutput[T any](c *ComponentBase, name string) *Sender[T] {
	out := NewSender[T](c.mgr, c.id, BuildName(c.name, name))

	c.outputs = append(c.outputs, out)

	return out
}
