// Package runner drives the reconciliation loop: it resolves the active
// backlog, feeds idle slots from it in file order and retires finished tasks.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/qrun/internal/backlog"
	"github.com/mattjoyce/qrun/internal/events"
	"github.com/mattjoyce/qrun/internal/ledger"
	"github.com/mattjoyce/qrun/internal/log"
	"github.com/mattjoyce/qrun/internal/pool"
	"github.com/mattjoyce/qrun/internal/queue"
	"github.com/mattjoyce/qrun/internal/status"
)

// DefaultInterval is the wait between ticks.
const DefaultInterval = time.Second

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/qrun/internal/runner Recorder

// Recorder persists dispatches and outcomes. *ledger.Ledger implements it.
type Recorder interface {
	RecordDispatch(ctx context.Context, d ledger.Dispatch) (int, error)
	RecordCompletion(ctx context.Context, runID string, o ledger.Outcome) error
}

// Options configure a Runner. Everything except the source and pool is
// optional.
type Options struct {
	Interval  time.Duration
	Daemon    bool
	SessionID string
	Reporter  status.Reporter
	Hub       *events.Hub
	Recorder  Recorder
	Logger    *slog.Logger
}

// Runner owns the pool and the queue files. All of its methods must be called
// from a single goroutine.
type Runner struct {
	source   *backlog.Source
	pool     *pool.Pool
	interval time.Duration
	daemon   bool
	session  string
	reporter status.Reporter
	hub      *events.Hub
	recorder Recorder
	logger   *slog.Logger
	newID    func() string

	current  string
	paused   string
	draining bool
}

// New wires a Runner around src and p.
func New(src *backlog.Source, p *pool.Pool, opts Options) (*Runner, error) {
	if src == nil {
		return nil, fmt.Errorf("backlog source is nil")
	}
	if p == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	r := &Runner{
		source:   src,
		pool:     p,
		interval: opts.Interval,
		daemon:   opts.Daemon,
		session:  opts.SessionID,
		reporter: opts.Reporter,
		hub:      opts.Hub,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		newID:    uuid.NewString,
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.reporter == nil {
		r.reporter = status.ReporterFunc(func(pool.Snapshot) {})
	}
	if r.logger == nil {
		r.logger = log.WithComponent("runner")
	}
	if r.session == "" {
		r.session = uuid.NewString()
	}
	return r, nil
}

// Run ticks until the work is done, ctx is cancelled and every slot is idle,
// or a fatal error occurs. Fatal errors are *backlog.ConfigError and
// *queue.IOError; Run returns them once the slots still running have
// finished.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started",
		"backlog", r.source.Root(),
		"directory_mode", r.source.IsDir(),
		"slots", r.pool.Capacity(),
		"daemon", r.daemon,
		"interval", r.interval.String(),
		"session_id", r.session,
	)
	defer func() {
		r.hub.Publish(events.Event{Type: events.RunnerStopped, Backlog: r.source.Root()})
		r.logger.Info("runner stopped")
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Cancellation cuts the current wait short once; after that the drain
	// ticks keep the normal cadence.
	wake := ctx.Done()
	for {
		done, err := r.Tick(ctx)
		if err != nil {
			r.settle(ctx, ticker.C)
			return err
		}
		if done {
			return nil
		}

		select {
		case <-wake:
			wake = nil
		case <-ticker.C:
		}
	}
}

// Tick performs one pass of the loop. done reports that the runner has
// nothing left to do: the backlog drained outside daemon mode, or a
// cancelled ctx with every slot idle.
func (r *Runner) Tick(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		if !r.draining {
			r.draining = true
			r.logger.Info("shutdown requested, waiting for running tasks", "running", r.pool.Busy())
			r.hub.Publish(events.Event{Type: events.RunnerDraining, Backlog: r.current})
		}
		r.reconcile(ctx)
		return r.pool.IsIdleAll(), nil
	}

	loc, ok, err := r.source.Locate()
	if err != nil {
		return false, err
	}
	if !ok {
		r.reconcile(ctx)
		return false, nil
	}
	if loc.Queue != r.current {
		r.current = loc.Queue
		r.logger.Info("backlog selected", "backlog", loc.Queue)
		r.hub.Publish(events.Event{Type: events.BacklogSelected, Backlog: loc.Queue})
	}

	locked := backlog.Locked(loc.Queue)
	switch {
	case locked && r.paused != loc.Queue:
		r.paused = loc.Queue
		r.logger.Info("backlog is being edited, dispatch paused", "backlog", loc.Queue, "marker", backlog.MarkerPath(loc.Queue))
		r.hub.Publish(events.Event{Type: events.BacklogLocked, Backlog: loc.Queue})
	case !locked && r.paused == loc.Queue:
		r.paused = ""
		r.logger.Info("lock marker gone, dispatch resumed", "backlog", loc.Queue)
		r.hub.Publish(events.Event{Type: events.BacklogUnlocked, Backlog: loc.Queue})
	}

	// The marker only holds back new dispatches. Running slots are still
	// retired and an empty backlog still drains.
	tasks, err := queue.Read(loc.Queue)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.reconcile(ctx)
			return false, nil
		}
		return false, err
	}

	for !locked && len(tasks) > 0 && r.pool.HasAvailable() {
		line := tasks[0]
		tasks = tasks[1:]

		if err := queue.Append(loc.History, line); err != nil {
			return false, err
		}
		if err := queue.Write(loc.Queue, tasks); err != nil {
			return false, err
		}
		if err := r.dispatch(ctx, loc, line); err != nil {
			return false, err
		}
	}

	r.reconcile(ctx)

	if len(tasks) == 0 && r.pool.IsIdleAll() {
		if err := r.source.Remove(loc); err != nil {
			return false, fmt.Errorf("drained backlog %s: %w", loc.Queue, err)
		}
		r.logger.Info("backlog drained", "backlog", loc.Queue)
		r.hub.Publish(events.Event{Type: events.BacklogDrained, Backlog: loc.Queue})
		r.current = ""
		r.paused = ""
		if !r.daemon {
			return true, nil
		}
	}
	return false, nil
}

// settle waits for already running slots after a fatal error so their
// outcomes are counted and recorded before Run returns.
func (r *Runner) settle(ctx context.Context, tick <-chan time.Time) {
	if r.pool.IsIdleAll() {
		return
	}
	r.logger.Warn("stopping on error, waiting for running tasks", "running", r.pool.Busy())
	for {
		r.reconcile(ctx)
		if r.pool.IsIdleAll() {
			return
		}
		<-tick
	}
}

func (r *Runner) dispatch(ctx context.Context, loc backlog.Location, line string) error {
	task := pool.Task{RunID: r.newID(), Line: line, Backlog: loc.Queue}
	slot, err := r.pool.Dispatch(task)
	if err != nil {
		return fmt.Errorf("dispatch %q: %w", line, err)
	}

	logger := r.logger.With("slot", slot, "run_id", task.RunID)
	logger.Info("task dispatched", "task", line)
	r.hub.Publish(events.Event{
		Type:    events.TaskDispatched,
		Backlog: loc.Queue,
		RunID:   task.RunID,
		Slot:    events.IntPtr(slot),
		Task:    line,
	})

	if r.recorder == nil {
		return nil
	}
	prior, err := r.recorder.RecordDispatch(context.WithoutCancel(ctx), ledger.Dispatch{
		RunID:     task.RunID,
		SessionID: r.session,
		Backlog:   loc.Queue,
		Task:      line,
		Slot:      slot,
		At:        time.Now(),
	})
	if err != nil {
		logger.Warn("failed to record dispatch", "error", err)
		return nil
	}
	if prior > 0 {
		logger.Warn("task has been dispatched before", "task", line, "previous_runs", prior)
	}
	return nil
}

// reconcile retires finished slots and renders the resulting snapshot.
func (r *Runner) reconcile(ctx context.Context) {
	report := r.pool.Reconcile()
	for _, c := range report.Completions {
		r.complete(ctx, c)
	}
	r.reporter.Report(report.Snapshot)
}

func (r *Runner) complete(ctx context.Context, c pool.Completion) {
	res := c.Result
	ev := events.Event{
		Type:     events.TaskCompleted,
		Backlog:  c.Task.Backlog,
		RunID:    c.Task.RunID,
		Slot:     events.IntPtr(c.Slot),
		Task:     c.Task.Line,
		ExitCode: events.IntPtr(res.ExitCode),
	}
	outcome := ledger.Outcome{
		Status:   ledger.StatusSucceeded,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		At:       res.FinishedAt,
	}
	if !res.Succeeded() {
		outcome.Status = ledger.StatusFailed
		msg := fmt.Sprintf("exit status %d", res.ExitCode)
		if res.Err != nil {
			msg = res.Err.Error()
		}
		outcome.LastError = &msg
		ev.Error = msg
	}

	r.logger.Debug("task retired", "slot", c.Slot, "run_id", c.Task.RunID, "status", string(outcome.Status))
	r.hub.Publish(ev)

	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordCompletion(context.WithoutCancel(ctx), c.Task.RunID, outcome); err != nil {
		r.logger.Warn("failed to record completion", "slot", c.Slot, "run_id", c.Task.RunID, "error", err)
	}
}
