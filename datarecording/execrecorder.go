package datarecording

import (
	"os"
	"strings"
	"sync"
	"time"
)

const (
	execTableName  = "exec_info"
	execTimeFormat = "2006-01-02 15:04:05.000000000"
)

// ExecInfo is one property of the program execution.
type ExecInfo struct {
	Property string
	Value    string
}

// execRecorder records how the program that produced a database was run.
type execRecorder struct {
	lock     sync.Mutex
	recorder DataRecorder
	entries  []ExecInfo
}

func newExecRecorder(recorder DataRecorder) *execRecorder {
	e := &execRecorder{recorder: recorder}
	recorder.CreateTable(execTableName, ExecInfo{})

	return e
}

// start captures the start time, the command line, and the working
// directory.
func (e *execRecorder) start() {
	e.record("Start Time", time.Now().Format(execTimeFormat))
	e.record("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.record("Working Directory", cwd)
}

func (e *execRecorder) record(property, value string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.entries = append(e.entries, ExecInfo{Property: property, Value: value})
}

// end writes the collected properties along with the end time.
func (e *execRecorder) end() {
	e.record("End Time", time.Now().Format(execTimeFormat))

	e.lock.Lock()
	entries := e.entries
	e.entries = nil
	e.lock.Unlock()

	for _, entry := range entries {
		e.recorder.InsertData(execTableName, entry)
	}
}
