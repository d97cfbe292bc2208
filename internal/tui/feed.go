package tui

import "github.com/mattjoyce/qrun/internal/pool"

// Feed hands snapshots from the runner to the dashboard. Only the newest
// snapshot is kept; the runner never blocks on a slow screen.
type Feed struct {
	ch chan pool.Snapshot
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan pool.Snapshot, 1)}
}

// Report implements status.Reporter. It must be called from one goroutine.
func (f *Feed) Report(snap pool.Snapshot) {
	for {
		select {
		case f.ch <- snap:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// C returns the channel the dashboard reads from.
func (f *Feed) C() <-chan pool.Snapshot { return f.ch }
