// Package events carries runner activity to the dashboard and the status API.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the runner.
const (
	BacklogSelected = "backlog.selected"
	BacklogLocked   = "backlog.locked"
	BacklogUnlocked = "backlog.unlocked"
	BacklogDrained  = "backlog.drained"
	TaskDispatched  = "task.dispatched"
	TaskCompleted   = "task.completed"
	RunnerDraining  = "runner.draining"
	RunnerStopped   = "runner.stopped"
)

// Event is one published occurrence. Fields not relevant to Type are zero.
type Event struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	At       time.Time `json:"at"`
	Backlog  string    `json:"backlog,omitempty"`
	RunID    string    `json:"run_id,omitempty"`
	Slot     *int      `json:"slot,omitempty"`
	Task     string    `json:"task,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Hub is an in-memory pub/sub with a small ring buffer for late subscribers.
// A nil *Hub accepts and drops every event.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish stamps ev with an ID and time and delivers it.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	ev.ID = h.nextID.Add(1)
	ev.At = time.Now().UTC()

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow subscribers block the control loop.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe returns a channel of future events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

// IntPtr is a helper for the optional numeric fields of Event.
func IntPtr(v int) *int { return &v }
