package tracing

import (
	"fmt"

	"github.com/sarchlab/rsim/sim"
)

// CollectTrace lets the tracer collect the traffic of a port.
func CollectTrace(port sim.Port, tracer Tracer) {
	port.AcceptHook(&traceHook{t: tracer})
}

// CollectTraceAll lets the tracer collect the traffic of every port of a
// simulation, clock ports included.
func CollectTraceAll(mgr *sim.Manager, tracer Tracer) {
	h := &traceHook{t: tracer}

	for _, p := range mgr.Ports() {
		p.AcceptHook(h)
	}
}

// A traceHook is a hook that turns port events into tasks.
type traceHook struct {
	t Tracer
}

// Func calls the tracer interfaces when the hook is triggered.
func (h *traceHook) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Item.(sim.PortEvent)
	if !ok {
		return
	}

	task := Task{
		ID:     evt.ID.String(),
		Where:  evt.Port,
		Origin: evt.Origin.String(),
		Value:  fmt.Sprint(evt.Value),
	}

	switch ctx.Pos {
	case sim.HookPosPortSend:
		task.Kind = KindSend
		h.t.StartTask(task)
	case sim.HookPosPortCommit:
		task.Kind = KindCommit
		h.t.StepTask(task)
	case sim.HookPosPortRecv:
		task.Kind = KindRecv
		h.t.StepTask(task)
	case sim.HookPosPortAck:
		task.Kind = KindAck
		h.t.EndTask(task)
	case sim.HookPosPortSupersede:
		task.Kind = KindSupersede
		h.t.EndTask(task)
	}
}
