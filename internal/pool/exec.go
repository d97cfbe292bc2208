package pool

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/qrun/internal/cmdline"
	"github.com/mattjoyce/qrun/internal/log"
)

// maxStderrBytes caps the stderr tail kept for each run.
const maxStderrBytes = 64 * 1024

// LineHandler receives one line of task output. stream is "stdout" or
// "stderr". It is called from the task's goroutines.
type LineHandler func(slot int, task Task, stream, line string)

// ProcessExecutor runs a task line as an external process. The first token is
// the executable, the rest are its arguments; no shell is involved.
type ProcessExecutor struct {
	// OutputPath, when set, receives stdout and stderr of every task. Each run
	// opens its own append handle on it.
	OutputPath string

	// OnLine handles captured output when OutputPath is empty. Nil logs each
	// line.
	OnLine LineHandler
}

// Execute implements Executor.
func (e *ProcessExecutor) Execute(slot int, task Task) Result {
	logger := log.WithRun(task.RunID).With("slot", slot)
	started := time.Now()

	res := e.execute(slot, task, logger)
	res.StartedAt = started
	res.FinishedAt = time.Now()

	var spawnErr *SpawnError
	switch {
	case errors.As(res.Err, &spawnErr):
		logger.Error("failed to execute command", "task", task.Line, "error", res.Err)
	case res.Err != nil:
		logger.Error("task failed", "task", task.Line, "error", res.Err)
	case res.ExitCode != 0:
		logger.Warn("task exited with non-zero status", "task", task.Line, "exit_code", res.ExitCode, "duration", res.Duration())
	default:
		logger.Info("task finished", "task", task.Line, "duration", res.Duration())
	}
	return res
}

func (e *ProcessExecutor) execute(slot int, task Task, logger *slog.Logger) Result {
	args := cmdline.Split(task.Line)
	if len(args) == 0 {
		return Result{ExitCode: -1, Err: &SpawnError{Task: task.Line, Err: errEmptyCommand}}
	}

	// Not CommandContext: running tasks always finish, even during shutdown.
	cmd := exec.Command(args[0], args[1:]...)

	if e.OutputPath != "" {
		return e.runToFile(cmd, task)
	}
	return e.runCaptured(cmd, slot, task, logger)
}

func (e *ProcessExecutor) runToFile(cmd *exec.Cmd, task Task) Result {
	f, err := os.OpenFile(e.OutputPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return Result{ExitCode: -1, Err: &SpawnError{Task: task.Line, Err: fmt.Errorf("open output: %w", err)}}
	}
	defer f.Close()

	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, Err: &SpawnError{Task: task.Line, Err: err}}
	}
	code, err := exitStatus(cmd.Wait())
	return Result{ExitCode: code, Err: err}
}

func (e *ProcessExecutor) runCaptured(cmd *exec.Cmd, slot int, task Task, logger *slog.Logger) Result {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1, Err: &SpawnError{Task: task.Line, Err: fmt.Errorf("create stdout pipe: %w", err)}}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1, Err: &SpawnError{Task: task.Line, Err: fmt.Errorf("create stderr pipe: %w", err)}}
	}

	handle := e.OnLine
	if handle == nil {
		handle = func(_ int, _ Task, stream, line string) {
			logger.Info("task output", "stream", stream, "line", line)
		}
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, Err: &SpawnError{Task: task.Line, Err: err}}
	}

	tail := &tailBuffer{max: maxStderrBytes}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pumpLines(stdout, func(line string) { handle(slot, task, "stdout", line) })
	}()
	go func() {
		defer wg.Done()
		pumpLines(stderr, func(line string) {
			tail.WriteLine(line)
			handle(slot, task, "stderr", line)
		})
	}()
	// Pipes must be drained before Wait closes them.
	wg.Wait()

	code, err := exitStatus(cmd.Wait())
	return Result{ExitCode: code, Err: err, Stderr: tail.String()}
}

// pumpLines reads r until EOF, calling fn for each line without its
// terminator. Lines of any length are accepted.
func pumpLines(r io.Reader, fn func(string)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// exitStatus maps the error from Wait onto an exit code. A process killed by a
// signal reports -1.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait for process: %w", err)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
