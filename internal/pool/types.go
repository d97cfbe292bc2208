package pool

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a slot.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Task is one backlog line handed to the pool.
type Task struct {
	RunID   string
	Line    string
	Backlog string
}

// Result is what an Executor reports for a finished task.
type Result struct {
	ExitCode   int
	Err        error
	Stderr     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the task ran and exited with status 0.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Duration is the wall time the task took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Completion is a finished task observed by Reconcile.
type Completion struct {
	Slot   int
	Task   Task
	Result Result
}

// SlotView is a copy of one slot's state. Task is the running task, or the
// last one the slot ran while it is idle.
type SlotView struct {
	ID        int
	State     State
	Task      string
	StartedAt time.Time
	Succeeded uint64
	Failed    uint64
	Fresh     bool
}

// Snapshot is a copy of the whole pool, safe to hand to other goroutines.
type Snapshot struct {
	Capacity int
	Busy     int
	Slots    []SlotView
}

// Totals returns the number of fresh slots and the summed lifetime counters.
func (s Snapshot) Totals() (fresh int, succeeded, failed uint64) {
	for _, sl := range s.Slots {
		if sl.Fresh {
			fresh++
		}
		succeeded += sl.Succeeded
		failed += sl.Failed
	}
	return fresh, succeeded, failed
}

// Report is returned by Reconcile. Snapshot is taken after completions are
// applied and before fresh markers are cleared.
type Report struct {
	Completions []Completion
	Snapshot    Snapshot
}

// ErrNoSlotAvailable is returned by Dispatch when every slot is running.
var ErrNoSlotAvailable = errors.New("no worker slot available")

var errEmptyCommand = errors.New("empty command line")

// SpawnError reports a task whose process could not be started.
type SpawnError struct {
	Task string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %q: %v", e.Task, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
