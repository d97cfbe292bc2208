package status

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattjoyce/qrun/internal/pool"
)

// Reporter receives a pool snapshot once per tick.
type Reporter interface {
	Report(pool.Snapshot)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(pool.Snapshot)

func (f ReporterFunc) Report(s pool.Snapshot) { f(s) }

// Live redraws the status table in place on a terminal.
type Live struct {
	w     io.Writer
	lines int
}

// NewLive returns a Live writing to w.
func NewLive(w io.Writer) *Live {
	return &Live{w: w}
}

// Report moves the cursor back over the previous table and draws the new one.
func (l *Live) Report(snap pool.Snapshot) {
	block := Render(snap)

	var b strings.Builder
	if l.lines > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", l.lines)
	}
	for _, line := range strings.SplitAfter(block, "\n") {
		if line == "" {
			continue
		}
		b.WriteString("\x1b[2K")
		b.WriteString(line)
	}
	_, _ = io.WriteString(l.w, b.String())
	l.lines = strings.Count(block, "\n")
}

// Board keeps the most recent snapshot for readers on other goroutines.
type Board struct {
	mu   sync.RWMutex
	snap pool.Snapshot
	ok   bool
}

// Report implements Reporter.
func (b *Board) Report(snap pool.Snapshot) {
	b.mu.Lock()
	b.snap = snap
	b.ok = true
	b.mu.Unlock()
}

// Latest returns the last reported snapshot; ok is false before the first tick.
func (b *Board) Latest() (pool.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap, b.ok
}

// Multi fans a snapshot out to several reporters.
type Multi []Reporter

func (m Multi) Report(snap pool.Snapshot) {
	for _, r := range m {
		r.Report(snap)
	}
}
