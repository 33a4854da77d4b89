package sim

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// ComponentID identifies a component for the lifetime of a simulation.
type ComponentID uint64

// String returns the decimal form of the id.
func (id ComponentID) String() string {
	return "C" + strconv.FormatUint(uint64(id), 10)
}

// EventID identifies one delivered value or one clock tick. Only equality is
// meaningful.
type EventID uint64

// String returns the decimal form of the id.
func (id EventID) String() string {
	return "E" + strconv.FormatUint(uint64(id), 10)
}

// NoComponent is the zero ComponentID. It is never handed out.
const NoComponent ComponentID = 0

// IDGenerator can generate IDs.
type IDGenerator interface {
	// Generate returns a number that has never been returned before. The
	// first number is 1.
	Generate() uint64
}

// NewIDGenerator returns a sequential, goroutine-safe generator.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() uint64 {
	return atomic.AddUint64(&g.nextID, 1)
}

// NewRunID returns a globally unique identifier for a simulation run.
func NewRunID() string {
	return xid.New().String()
}
