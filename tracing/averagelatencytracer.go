package tracing

import (
	"sync"
)

// AverageLatencyTracer measures the number of passes between the send of an
// event and its acknowledgement. Superseded events are not counted.
type AverageLatencyTracer struct {
	timeTeller    TimeTeller
	filter        TaskFilter
	lock          sync.Mutex
	average       float64
	inflightTasks map[string]Task
	taskCount     uint64
}

// NewAverageLatencyTracer creates a new AverageLatencyTracer. The filter is
// applied to the send.
func NewAverageLatencyTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *AverageLatencyTracer {
	return &AverageLatencyTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// AverageLatency returns the average number of passes from send to ack.
func (t *AverageLatencyTracer) AverageLatency() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.average
}

// TotalCount returns the number of acknowledged events measured.
func (t *AverageLatencyTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the send time.
func (t *AverageLatencyTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	task.StartTime = now(t.timeTeller)

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing
func (t *AverageLatencyTracer) StepTask(_ Task) {}

// EndTask measures the latency of acknowledged events.
func (t *AverageLatencyTracer) EndTask(task Task) {
	end := now(t.timeTeller)

	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	delete(t.inflightTasks, task.ID)

	if task.Kind != KindAck {
		return
	}

	latency := float64(end.Pass - original.StartTime.Pass)
	t.average = (t.average*float64(t.taskCount) + latency) /
		float64(t.taskCount+1)
	t.taskCount++
}
