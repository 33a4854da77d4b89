package tracing

import "github.com/sarchlab/rsim/sim"

// Time locates a trace record in a run.
type Time struct {
	// Cycle is the number of ticks broadcast so far.
	Cycle uint64 `json:"cycle"`

	// Pass is the number of passes completed so far.
	Pass uint64 `json:"pass"`
}

// A TimeTeller tells the progress of a run. Drivers are TimeTellers.
type TimeTeller interface {
	Stats() sim.Stats
}

func now(tt TimeTeller) Time {
	s := tt.Stats()
	return Time{Cycle: s.Cycle, Pass: s.Passes}
}

// The kinds of port activity a task goes through.
const (
	KindSend      = "send"
	KindCommit    = "commit"
	KindRecv      = "recv"
	KindAck       = "ack"
	KindSupersede = "supersede"
)

// A Task is the life of one event, from the send to the acknowledgement or
// the supersession.
type Task struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Where     string `json:"where"`
	Origin    string `json:"origin"`
	Value     string `json:"value"`
	StartTime Time   `json:"start_time"`
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool
