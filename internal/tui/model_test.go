package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/qrun/internal/events"
	"github.com/mattjoyce/qrun/internal/pool"
)

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func TestViewBeforeSizeIsPlaceholder(t *testing.T) {
	m := New(Config{Backlog: "/tmp/jobs.bl"})
	assert.Equal(t, "Starting qrun...", m.View())
}

func TestSnapshotFillsSlotTable(t *testing.T) {
	m := sized(t, New(Config{Backlog: "/tmp/jobs.bl"}))

	next, _ := m.Update(snapshotMsg(pool.Snapshot{
		Capacity: 2,
		Busy:     1,
		Slots: []pool.SlotView{
			{ID: 0, State: pool.Running, Task: "make build", StartedAt: time.Now(), Succeeded: 4, Fresh: true},
			{ID: 1, State: pool.Idle, Failed: 2},
		},
	}))
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "jobs.bl")
	assert.Contains(t, view, "make build")
	assert.Contains(t, view, "*Active")
	assert.Contains(t, view, "Busy: 1/2")
}

func TestSlotRows(t *testing.T) {
	now := time.Now()
	rows := slotRows(pool.Snapshot{Slots: []pool.SlotView{
		{ID: 0, State: pool.Running, Task: strings.Repeat("x", 60), StartedAt: now.Add(-90 * time.Second)},
		{ID: 1, State: pool.Idle, Succeeded: 3, Failed: 1},
	}}, now)

	require.Len(t, rows, 2)
	assert.Equal(t, "T0", rows[0][0])
	assert.Equal(t, "Active", rows[0][1])
	assert.Equal(t, "1m 30s", rows[0][4])
	assert.Len(t, []rune(rows[0][5]), 48)
	assert.Equal(t, []string{"T1", "Idle", "3", "1", "", ""}, []string(rows[1]))
}

func TestQuitKeyCancelsRunnerThenHides(t *testing.T) {
	cancelled := 0
	m := sized(t, New(Config{Cancel: func() { cancelled++ }}))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(Model)
	assert.Equal(t, 1, cancelled)
	assert.Nil(t, cmd, "first q only asks the runner to drain")
	assert.Contains(t, m.View(), "Draining")

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, cancelled)
}

func TestRunnerDoneQuits(t *testing.T) {
	m := New(Config{})
	_, cmd := m.Update(runnerDoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestEventsAreNewestFirstAndCapped(t *testing.T) {
	m := sized(t, New(Config{}))
	for i := 0; i < maxEventLog+5; i++ {
		next, _ := m.Update(eventMsg(events.Event{ID: int64(i), Type: events.TaskDispatched, Slot: events.IntPtr(0), Task: "echo hi"}))
		m = next.(Model)
	}
	require.Len(t, m.eventLog, maxEventLog)
	assert.Equal(t, int64(maxEventLog+4), m.eventLog[0].ID)
	assert.Contains(t, m.View(), "echo hi")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "T1 false (exit status 1)", describe(events.Event{
		Type: events.TaskCompleted, Slot: events.IntPtr(1), Task: "false", Error: "exit status 1",
	}))
	assert.Equal(t, "jobs.bl", describe(events.Event{Type: events.BacklogDrained, Backlog: "/srv/jobs.bl"}))
}

func TestFeedKeepsNewestSnapshot(t *testing.T) {
	f := NewFeed()
	f.Report(pool.Snapshot{Busy: 1})
	f.Report(pool.Snapshot{Busy: 2})

	select {
	case snap := <-f.C():
		assert.Equal(t, 2, snap.Busy)
	default:
		t.Fatal("feed is empty")
	}
}
