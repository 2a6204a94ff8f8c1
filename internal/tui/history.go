package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/beebar/internal/store"
)

const historyLimit = 50

// historyModel lists journaled submissions, newest first.
type historyModel struct {
	store  *store.Store
	width  int
	height int

	subs   []store.Submission
	cursor int
}

func newHistoryModel(s *store.Store) historyModel {
	return historyModel{store: s}
}

func (h *historyModel) setSize(w, hgt int) {
	h.width = w
	h.height = hgt
}

type historyDataMsg struct {
	subs []store.Submission
	err  error
}

func (h historyModel) refresh() tea.Cmd {
	return func() tea.Msg {
		subs, err := h.store.ListSubmissions(store.SubmissionFilter{Limit: historyLimit})
		return historyDataMsg{subs: subs, err: err}
	}
}

func (h historyModel) update(msg tea.Msg) (historyModel, tea.Cmd) {
	switch msg := msg.(type) {
	case historyDataMsg:
		if msg.err != nil {
			return h, statusCmd(fmt.Sprintf("Error: %v", msg.err), true)
		}
		h.subs = msg.subs
		h.cursor = min(h.cursor, max(0, len(h.subs)-1))
		return h, nil

	case submitDoneMsg:
		return h, h.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if h.cursor > 0 {
				h.cursor--
			}
		case key.Matches(msg, keys.Down):
			if h.cursor < len(h.subs)-1 {
				h.cursor++
			}
		case key.Matches(msg, keys.Refresh):
			return h, h.refresh()
		}
	}
	return h, nil
}

func (h historyModel) visibleRows() int {
	return max(3, h.height-8)
}

func (h historyModel) view() string {
	w := h.width - 4
	title := titleStyle.Render("Recent submissions")

	if len(h.subs) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title, "", mutedStyle.Render("Nothing submitted yet"),
		))
	}

	rows := []string{
		title, "",
		mutedStyle.Render(fmt.Sprintf("  %-12s %-18s %10s  %-12s %s", "When", "Goal", "Value", "Outcome", "Comment")),
		mutedStyle.Render("  " + strings.Repeat("─", max(0, min(w-6, 70)))),
	}

	// keep the cursor in the window
	n := h.visibleRows()
	start := 0
	if h.cursor >= n {
		start = h.cursor - n + 1
	}
	end := min(len(h.subs), start+n)

	for i := start; i < end; i++ {
		s := h.subs[i]
		line := fmt.Sprintf("%-12s %-18s %10s  %s %s",
			s.FinishedAt.Local().Format("Jan 02 15:04"),
			truncate(s.Slug, 18),
			formatValue(s.Value),
			outcomeStyle(s.Outcome).Width(12).Render(s.Outcome),
			truncate(s.Comment, max(8, w-64)),
		)
		if i == h.cursor {
			rows = append(rows, selectedItemStyle.Render("▸ ")+line)
			if s.Error != "" {
				rows = append(rows, errorStyle.Render("    "+s.Error))
			}
		} else {
			rows = append(rows, "  "+line)
		}
	}

	rows = append(rows, "", mutedStyle.Render(fmt.Sprintf("  %d of %d", h.cursor+1, len(h.subs))))
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "confirmed":
		return successStyle
	case "unconfirmed":
		return warningStyle
	case "cancelled":
		return mutedStyle
	default:
		return errorStyle
	}
}
