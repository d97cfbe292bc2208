package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/qrun/internal/events"
	"github.com/mattjoyce/qrun/internal/status"
)

const visibleEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= visibleEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, theme.Title.Render("EVENT STREAM"), eventsText),
	)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch {
	case e.Type == events.TaskCompleted && e.Error != "":
		typeStyle = theme.StatusFailed
	case e.Type == events.TaskCompleted:
		typeStyle = theme.StatusOK
	case e.Type == events.TaskDispatched:
		typeStyle = theme.StatusRunning
	case strings.HasPrefix(e.Type, "backlog."):
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-17s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describe(e))
}

func describe(e events.Event) string {
	var parts []string
	if e.Slot != nil {
		parts = append(parts, fmt.Sprintf("T%d", *e.Slot))
	}
	if e.Task != "" {
		parts = append(parts, status.Truncate(e.Task, status.MaxTaskWidth))
	} else if e.Backlog != "" {
		parts = append(parts, filepath.Base(e.Backlog))
	}
	if e.Error != "" {
		parts = append(parts, "("+e.Error+")")
	}
	return strings.Join(parts, " ")
}
