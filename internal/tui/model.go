package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/qrun/internal/events"
	"github.com/mattjoyce/qrun/internal/pool"
)

const maxEventLog = 50

// Config wires the dashboard to a running runner.
type Config struct {
	Backlog   string
	Snapshots <-chan pool.Snapshot
	Events    <-chan events.Event
	// Done is closed when the runner has returned.
	Done <-chan struct{}
	// Cancel asks the runner to stop dispatching and drain.
	Cancel context.CancelFunc
}

type snapshotMsg pool.Snapshot
type eventMsg events.Event
type runnerDoneMsg struct{}
type clockMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	cfg Config

	width  int
	height int

	snap     pool.Snapshot
	haveSnap bool
	eventLog []events.Event
	started  time.Time
	stopping bool

	slots table.Model
	theme Theme
}

// New creates the dashboard model.
func New(cfg Config) Model {
	return Model{
		cfg:     cfg,
		started: time.Now(),
		slots:   newSlotTable(),
		theme:   NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitSnapshot(m.cfg.Snapshots),
		waitEvent(m.cfg.Events),
		waitDone(m.cfg.Done),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) }),
		tea.EnterAltScreen,
	)
}

func waitSnapshot(ch <-chan pool.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func waitEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func waitDone(done <-chan struct{}) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		<-done
		return runnerDoneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.stopping {
				// Second request: leave the screen, the runner keeps draining.
				return m, tea.Quit
			}
			m.stopping = true
			if m.cfg.Cancel != nil {
				m.cfg.Cancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.slots.SetWidth(m.width - 6)
		return m, nil

	case snapshotMsg:
		m.snap = pool.Snapshot(msg)
		m.haveSnap = true
		m.slots.SetRows(slotRows(m.snap, time.Now()))
		m.slots.SetHeight(len(m.snap.Slots) + 3)
		return m, waitSnapshot(m.cfg.Snapshots)

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		if e.Type == events.RunnerDraining {
			m.stopping = true
		}
		return m, waitEvent(m.cfg.Events)

	case clockMsg:
		if m.haveSnap {
			m.slots.SetRows(slotRows(m.snap, time.Time(msg)))
		}
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })

	case runnerDoneMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.slots, cmd = m.slots.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Starting qrun..."
	}

	header := renderHeader(m.cfg.Backlog, m.snap, m.started, m.stopping, m.theme, m.width)
	slots := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("SLOTS"), m.slots.View()),
	)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	helpText := " [q] Stop after running tasks finish"
	if m.stopping {
		helpText = " Draining... [q] Hide dashboard"
	}
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(helpText)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, slots, eventStream, help),
	)
}
