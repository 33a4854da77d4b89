package tracing

import (
	"sort"
	"sync"
)

// ObservationCounter counts the port events per port and kind.
type ObservationCounter struct {
	filter TaskFilter

	lock   sync.Mutex
	counts map[string]map[string]uint64
	totals map[string]uint64
}

// NewObservationCounter creates a new ObservationCounter. A nil filter
// counts every event.
func NewObservationCounter(filter TaskFilter) *ObservationCounter {
	return &ObservationCounter{
		filter: filter,
		counts: make(map[string]map[string]uint64),
		totals: make(map[string]uint64),
	}
}

// Count returns the number of events of a kind seen on a port.
func (c *ObservationCounter) Count(port, kind string) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.counts[port][kind]
}

// Total returns the number of events of a kind over all ports.
func (c *ObservationCounter) Total(kind string) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.totals[kind]
}

// Ports returns the names of the ports that had traffic, sorted.
func (c *ObservationCounter) Ports() []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	ports := make([]string, 0, len(c.counts))
	for p := range c.counts {
		ports = append(ports, p)
	}

	sort.Strings(ports)

	return ports
}

// StartTask counts a send.
func (c *ObservationCounter) StartTask(task Task) {
	c.count(task)
}

// StepTask counts a commit or a receive.
func (c *ObservationCounter) StepTask(task Task) {
	c.count(task)
}

// EndTask counts an acknowledgement or a supersession.
func (c *ObservationCounter) EndTask(task Task) {
	c.count(task)
}

func (c *ObservationCounter) count(task Task) {
	if c.filter != nil && !c.filter(task) {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	perKind, ok := c.counts[task.Where]
	if !ok {
		perKind = make(map[string]uint64)
		c.counts[task.Where] = perKind
	}

	perKind[task.Kind]++
	c.totals[task.Kind]++
}
