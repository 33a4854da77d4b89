package tracing

// A Tracer can collect task traces. Kind tells which port activity caused
// the call.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}
