// Package status renders worker pool state as a text table.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/qrun/internal/pool"
)

// MaxTaskWidth caps how many characters of a task are shown per row.
const MaxTaskWidth = 48

var freshStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF"))

// Render draws one row per slot plus a totals footer. Rows of slots dispatched
// in the current tick are highlighted.
func Render(snap pool.Snapshot) string {
	var b strings.Builder
	b.WriteString("[THREAD STATUS SUCCESS FAILURE] CMD\n")

	for _, s := range snap.Slots {
		state := " Idle "
		if s.State == pool.Running {
			state = "Active"
		}
		row := fmt.Sprintf("[%6s %s %7d%8d] %s",
			fmt.Sprintf("T%d", s.ID), state, s.Succeeded, s.Failed, Truncate(s.Task, MaxTaskWidth))
		if s.Fresh {
			row = freshStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}

	fresh, succeeded, failed := snap.Totals()
	fmt.Fprintf(&b, "[%6d %s %7d%8d]\n", fresh, "      ", succeeded, failed)
	return b.String()
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
