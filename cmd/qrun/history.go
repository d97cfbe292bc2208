package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/qrun/internal/ledger"
	"github.com/mattjoyce/qrun/internal/status"
)

var historyHeader = lipgloss.NewStyle().Bold(true)

func renderHistory(runs []ledger.Run, counts map[ledger.Status]int) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DISPATCHED", "SLOT", "STATUS", "EXIT", "TASK").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeader
			}
			return lipgloss.NewStyle()
		})

	for _, run := range runs {
		exit := "-"
		if run.ExitCode != nil {
			exit = fmt.Sprintf("%d", *run.ExitCode)
		}
		t.Row(
			run.DispatchedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("T%d", run.Slot),
			string(run.Status),
			exit,
			status.Truncate(run.Task, status.MaxTaskWidth),
		)
	}

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	fmt.Fprintf(&b, "running=%d succeeded=%d failed=%d abandoned=%d\n",
		counts[ledger.StatusRunning],
		counts[ledger.StatusSucceeded],
		counts[ledger.StatusFailed],
		counts[ledger.StatusAbandoned],
	)
	return b.String()
}
