package pool

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mattjoyce/qrun/internal/log"
)

// Executor runs a single task to completion. It is called from the slot's own
// goroutine and must be safe for concurrent use.
type Executor interface {
	Execute(slot int, task Task) Result
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(slot int, task Task) Result

func (f ExecutorFunc) Execute(slot int, task Task) Result { return f(slot, task) }

type slot struct {
	id        int
	state     State
	task      Task
	startedAt time.Time
	succeeded uint64
	failed    uint64
	fresh     bool

	// done receives exactly one Result per dispatch.
	done chan Result
}

// Pool is a fixed-capacity set of execution slots. It is not safe for
// concurrent use; one control goroutine owns it.
type Pool struct {
	slots  []*slot
	busy   int
	exec   Executor
	logger *slog.Logger
	now    func() time.Time
}

// New creates a pool with capacity slots, all idle.
func New(capacity int, exec Executor) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be positive, got %d", capacity)
	}
	if exec == nil {
		return nil, fmt.Errorf("executor is nil")
	}

	slots := make([]*slot, capacity)
	for i := range slots {
		slots[i] = &slot{id: i}
	}
	return &Pool{
		slots:  slots,
		exec:   exec,
		logger: log.WithComponent("pool"),
		now:    time.Now,
	}, nil
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int { return len(p.slots) }

// Busy returns the number of running slots.
func (p *Pool) Busy() int { return p.busy }

// HasAvailable reports whether at least one slot is idle.
func (p *Pool) HasAvailable() bool { return p.busy < len(p.slots) }

// IsIdleAll reports whether no slot is running.
func (p *Pool) IsIdleAll() bool { return p.busy == 0 }

// Dispatch starts task on the lowest-index idle slot and returns its index.
// It never blocks: with no idle slot it returns ErrNoSlotAvailable.
func (p *Pool) Dispatch(task Task) (int, error) {
	if !p.HasAvailable() {
		return -1, ErrNoSlotAvailable
	}

	var s *slot
	for _, candidate := range p.slots {
		if candidate.state == Idle {
			s = candidate
			break
		}
	}
	if s == nil {
		return -1, fmt.Errorf("busy count %d disagrees with slot states: %w", p.busy, ErrNoSlotAvailable)
	}

	s.state = Running
	s.task = task
	s.startedAt = p.now()
	s.fresh = true
	s.done = make(chan Result, 1)
	p.busy++

	go p.run(s.id, task, s.done)

	p.logger.Debug("task dispatched", "slot", s.id, "run_id", task.RunID, "task", task.Line)
	return s.id, nil
}

func (p *Pool) run(id int, task Task, done chan<- Result) {
	started := p.now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("executor panicked", "slot", id, "run_id", task.RunID, "panic", r, "stack", string(debug.Stack()))
			done <- Result{
				ExitCode:   -1,
				Err:        fmt.Errorf("executor panic: %v", r),
				StartedAt:  started,
				FinishedAt: p.now(),
			}
		}
	}()
	done <- p.exec.Execute(id, task)
}

// Reconcile moves every slot whose task has finished back to idle, updating
// its lifetime counters, and then clears all fresh markers.
func (p *Pool) Reconcile() Report {
	var completions []Completion

	for _, s := range p.slots {
		if s.state != Running {
			continue
		}
		var res Result
		select {
		case res = <-s.done:
		default:
			continue
		}

		if res.Succeeded() {
			s.succeeded++
		} else {
			s.failed++
		}
		completions = append(completions, Completion{Slot: s.id, Task: s.task, Result: res})

		s.state = Idle
		s.done = nil
		p.busy--
	}

	report := Report{Completions: completions, Snapshot: p.Snapshot()}
	for _, s := range p.slots {
		s.fresh = false
	}
	return report
}

// Snapshot copies the current state of every slot.
func (p *Pool) Snapshot() Snapshot {
	views := make([]SlotView, len(p.slots))
	for i, s := range p.slots {
		// An idle slot keeps showing the last task it ran.
		v := SlotView{
			ID:        s.id,
			State:     s.state,
			Task:      s.task.Line,
			Succeeded: s.succeeded,
			Failed:    s.failed,
			Fresh:     s.fresh,
		}
		if s.state == Running {
			v.StartedAt = s.startedAt
		}
		views[i] = v
	}
	return Snapshot{Capacity: len(p.slots), Busy: p.busy, Slots: views}
}
