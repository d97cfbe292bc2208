package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/qrun/internal/pool"
	"github.com/mattjoyce/qrun/internal/status"
)

func newSlotTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Slot", Width: 6},
			{Title: "Status", Width: 8},
			{Title: "OK", Width: 7},
			{Title: "Fail", Width: 7},
			{Title: "Elapsed", Width: 9},
			{Title: "Task", Width: status.MaxTaskWidth},
		}),
		table.WithFocused(false),
		table.WithHeight(2),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)
	return t
}

// slotRows turns a snapshot into table rows. Freshly dispatched slots carry a
// marker for the one snapshot in which they are fresh.
func slotRows(snap pool.Snapshot, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(snap.Slots))
	for _, s := range snap.Slots {
		state := "Idle"
		elapsed := ""
		if s.State == pool.Running {
			state = "Active"
			if !s.StartedAt.IsZero() {
				elapsed = formatDuration(now.Sub(s.StartedAt))
			}
		}
		if s.Fresh {
			state = "*" + state
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("T%d", s.ID),
			state,
			fmt.Sprintf("%d", s.Succeeded),
			fmt.Sprintf("%d", s.Failed),
			elapsed,
			status.Truncate(s.Task, status.MaxTaskWidth),
		})
	}
	return rows
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
