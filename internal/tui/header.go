package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/qrun/internal/pool"
)

func renderHeader(backlog string, snap pool.Snapshot, started time.Time, stopping bool, theme Theme, width int) string {
	innerWidth := width - 4

	state := theme.StatusOK.Render("RUNNING")
	if stopping {
		state = theme.StatusRunning.Render("DRAINING")
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" QRUN %s", theme.Highlight.Render(filepath.Base(backlog)))
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	fresh, succeeded, failed := snap.Totals()
	statsLine := fmt.Sprintf(" %s  ⏱ %s  Busy: %d/%d  New: %d  %s %s",
		state,
		formatDuration(time.Since(started)),
		snap.Busy, snap.Capacity,
		fresh,
		theme.StatusOK.Render(fmt.Sprintf("OK: %d", succeeded)),
		theme.StatusFailed.Render(fmt.Sprintf("Fail: %d", failed)),
	)

	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine),
	)
}
