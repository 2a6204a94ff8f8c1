package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/engine"
)

// goalsModel is the main list: goals sorted by urgency, each with its own
// buffered datapoint input and submission status.
type goalsModel struct {
	eng    Engine
	width  int
	height int
	now    time.Time

	snap     engine.Snapshot
	cursor   int
	selected string // goal id; survives re-sorting
	expanded string

	editing bool
	input   textinput.Model

	formActive  bool
	form        *huh.Form
	formValue   *string
	formComment *string
}

func newGoalsModel(e Engine) goalsModel {
	ti := textinput.New()
	ti.Placeholder = "value"
	ti.CharLimit = 32
	ti.Width = 12
	ti.Prompt = ""

	v, c := "", ""
	return goalsModel{
		eng:         e,
		now:         time.Now(),
		input:       ti,
		formValue:   &v,
		formComment: &c,
	}
}

func (g *goalsModel) setSize(w, h int) {
	g.width = w
	g.height = h
}

// capturing reports whether keystrokes belong to a text field.
func (g goalsModel) capturing() bool {
	return g.editing || g.formActive
}

// setSnapshot installs a new engine snapshot and keeps the cursor on the
// selected goal even when the order changes.
func (g *goalsModel) setSnapshot(s engine.Snapshot) {
	g.snap = s
	if len(s.Goals) == 0 {
		g.cursor = 0
		g.selected = ""
		g.editing = false
		return
	}
	for i, goal := range s.Goals {
		if goal.ID == g.selected {
			g.cursor = i
			return
		}
	}
	g.cursor = min(g.cursor, len(s.Goals)-1)
	g.selected = s.Goals[g.cursor].ID
	g.editing = false
}

func (g goalsModel) current() (beeminder.Goal, bool) {
	if g.cursor < 0 || g.cursor >= len(g.snap.Goals) {
		return beeminder.Goal{}, false
	}
	return g.snap.Goals[g.cursor], true
}

func (g goalsModel) update(msg tea.Msg) (goalsModel, tea.Cmd) {
	if g.formActive && g.form != nil {
		return g.updateForm(msg)
	}
	if g.editing {
		return g.updateInput(msg)
	}

	switch msg := msg.(type) {
	case tickMsg:
		g.now = time.Time(msg)
		return g, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			g.move(-1)
		case key.Matches(msg, keys.Down):
			g.move(1)
		case key.Matches(msg, keys.Expand):
			if goal, ok := g.current(); ok {
				if g.expanded == goal.ID {
					g.expanded = ""
				} else {
					g.expanded = goal.ID
				}
			}
		case key.Matches(msg, keys.Add):
			goal, ok := g.current()
			if !ok {
				return g, nil
			}
			g.editing = true
			g.input.SetValue(g.snap.Inputs[goal.ID])
			g.input.CursorEnd()
			cmd := g.input.Focus()
			return g, cmd
		case key.Matches(msg, keys.Comment):
			return g.showForm()
		case key.Matches(msg, keys.Cancel):
			if goal, ok := g.current(); ok && g.snap.Status[goal.ID] != engine.StatusIdle {
				g.eng.CancelConfirmation(goal.ID)
				return g, statusCmd(fmt.Sprintf("Stopped waiting for %s", goal.Slug), false)
			}
		case key.Matches(msg, keys.Refresh):
			g.eng.RefreshNow()
			return g, nil
		case key.Matches(msg, keys.Dismiss):
			if g.snap.Err != nil {
				g.eng.DismissError()
			}
		}
	}
	return g, nil
}

func (g *goalsModel) move(delta int) {
	n := len(g.snap.Goals)
	if n == 0 {
		return
	}
	g.cursor = max(0, min(n-1, g.cursor+delta))
	g.selected = g.snap.Goals[g.cursor].ID
}

func (g goalsModel) updateInput(msg tea.Msg) (goalsModel, tea.Cmd) {
	goal, ok := g.current()
	if !ok {
		g.editing = false
		return g, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Back):
			g.editing = false
			g.input.Blur()
			return g, nil
		case key.Matches(msg, keys.Enter):
			g.editing = false
			g.input.Blur()
			return g, g.submit(goal, "", "")
		}
	}

	var cmd tea.Cmd
	g.input, cmd = g.input.Update(msg)
	g.eng.SetInput(goal.ID, g.input.Value())
	return g, cmd
}

// submit hands the value to the engine and waits for the outcome.
func (g goalsModel) submit(goal beeminder.Goal, raw, comment string) tea.Cmd {
	ch := g.eng.SubmitDatapoint(goal.ID, raw, comment)
	if ch == nil {
		return statusCmd(fmt.Sprintf("%s: enter a number", goal.Slug), true)
	}
	return waitForResult(goal.Slug, ch)
}

func (g goalsModel) showForm() (goalsModel, tea.Cmd) {
	goal, ok := g.current()
	if !ok {
		return g, nil
	}
	*g.formValue = g.snap.Inputs[goal.ID]
	*g.formComment = ""

	g.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Value").Value(g.formValue).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("value is required")
					}
					return nil
				}),
			huh.NewInput().Title("Comment").Value(g.formComment),
		).Title(goal.Slug),
	).WithShowHelp(true).WithShowErrors(true)

	g.formActive = true
	return g, g.form.Init()
}

func (g goalsModel) updateForm(msg tea.Msg) (goalsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		g.formActive = false
		g.form = nil
		return g, nil
	}

	form, cmd := g.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		g.form = f
	}

	if g.form.State == huh.StateCompleted {
		g.formActive = false
		g.form = nil
		goal, ok := g.current()
		if !ok {
			return g, nil
		}
		return g, g.submit(goal, *g.formValue, strings.TrimSpace(*g.formComment))
	}
	return g, cmd
}

func (g goalsModel) view() string {
	w := g.width - 4
	if w < 20 {
		return "Terminal too small"
	}

	var rows []string
	if g.snap.Err != nil {
		rows = append(rows, errorStyle.Render("⚠ "+g.snap.Err.Error())+mutedStyle.Render("  (d to dismiss)"), "")
	}

	if g.formActive && g.form != nil {
		rows = append(rows, g.form.View())
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	if len(g.snap.Goals) == 0 {
		if g.snap.Loading {
			rows = append(rows, mutedStyle.Render("Loading goals..."))
		} else {
			rows = append(rows, mutedStyle.Render("No goals yet. Press r to refresh."))
		}
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	slugWidth := 8
	for _, goal := range g.snap.Goals {
		slugWidth = max(slugWidth, min(24, len(goal.Slug)))
	}

	for i, goal := range g.snap.Goals {
		rows = append(rows, g.renderRow(i, goal, slugWidth))
		if g.expanded == goal.ID {
			rows = append(rows, g.renderDetails(goal))
		}
	}

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (g goalsModel) renderRow(i int, goal beeminder.Goal, slugWidth int) string {
	marker := "  "
	name := normalItemStyle
	if i == g.cursor {
		marker = "▸ "
		name = selectedItemStyle
	}

	dot := urgencyStyle(goal.Urgency()).Render("●")
	slug := name.Width(slugWidth).Render(truncate(goal.Slug, slugWidth))
	due := urgencyStyle(goal.Urgency()).Width(12).Render(goal.DeadlineText(g.now))

	var input string
	switch {
	case i == g.cursor && g.editing:
		input = "[" + g.input.View() + "]"
	case g.snap.Inputs[goal.ID] != "":
		input = highlightStyle.Render("[" + g.snap.Inputs[goal.ID] + "]")
	}

	var status string
	switch g.snap.Status[goal.ID] {
	case engine.StatusSubmitting:
		status = warningStyle.Render("submitting…")
	case engine.StatusUpdating:
		status = accentStyle.Render("updating…")
	}

	return fmt.Sprintf("%s%s %s  %s %s %s", marker, dot, slug, due, input, status)
}

func (g goalsModel) renderDetails(goal beeminder.Goal) string {
	lines := []string{titleStyle.Render(goal.Title)}
	if goal.Limsum != "" {
		lines = append(lines, subtitleStyle.Render(goal.Limsum))
	}
	if goal.Curval != nil {
		lines = append(lines, "current  "+formatValue(*goal.Curval))
	}
	if rate, ok := goal.RateText(); ok {
		lines = append(lines, "rate     "+rate)
	}
	if pledge, ok := goal.PledgeText(); ok {
		lines = append(lines, "pledge   "+pledge)
	}
	lines = append(lines, "derails  "+goal.Deadline().Local().Format("Mon Jan 2 15:04"))
	return lipgloss.NewStyle().PaddingLeft(6).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func statusCmd(text string, isError bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: text, isError: isError}
	}
}
