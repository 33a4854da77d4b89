package tracing

import (
	"strconv"
	"sync"

	"github.com/sarchlab/rsim/datarecording"
)

// PortEventTable is the table that DBTracer writes into.
const PortEventTable = "port_events"

// PortEventEntry is one row of the port event table.
type PortEventEntry struct {
	Event  uint64
	Kind   string
	Port   string
	Origin string
	Value  string
	Cycle  uint64
	Pass   uint64
}

// DBTracer is a tracer that stores every port event into a database.
type DBTracer struct {
	lock       sync.Mutex
	timeTeller TimeTeller
	backend    datarecording.DataRecorder

	startCycle, endCycle uint64
	count                uint64
}

// NewDBTracer creates a new DBTracer and the table it writes into.
func NewDBTracer(
	timeTeller TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(PortEventTable, PortEventEntry{})

	return &DBTracer{
		timeTeller: timeTeller,
		backend:    dataRecorder,
	}
}

// SetCycleRange restricts the recording to the events that happen in the
// given cycles, inclusive. A zero end means no upper bound.
func (t *DBTracer) SetCycleRange(start, end uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.startCycle = start
	t.endCycle = end
}

// Count returns the number of rows written.
func (t *DBTracer) Count() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count
}

// StartTask records a send.
func (t *DBTracer) StartTask(task Task) {
	t.write(task)
}

// StepTask records a commit or a receive.
func (t *DBTracer) StepTask(task Task) {
	t.write(task)
}

// EndTask records an acknowledgement or a supersession.
func (t *DBTracer) EndTask(task Task) {
	t.write(task)
}

// Terminate flushes the buffered rows.
func (t *DBTracer) Terminate() {
	t.backend.Flush()
}

func (t *DBTracer) write(task Task) {
	when := now(t.timeTeller)

	t.lock.Lock()
	if when.Cycle < t.startCycle ||
		(t.endCycle > 0 && when.Cycle > t.endCycle) {
		t.lock.Unlock()
		return
	}
	t.count++
	t.lock.Unlock()

	t.backend.InsertData(PortEventTable, PortEventEntry{
		Event:  parseID(task.ID),
		Kind:   task.Kind,
		Port:   task.Where,
		Origin: task.Origin,
		Value:  task.Value,
		Cycle:  when.Cycle,
		Pass:   when.Pass,
	})
}

// parseID turns "E12" back into 12.
func parseID(id string) uint64 {
	if len(id) < 2 {
		return 0
	}

	n, err := strconv.ParseUint(id[1:], 10, 64)
	if err != nil {
		return 0
	}

	return n
}
