package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// loginModel walks through the OAuth hand-off: show the authorize URL,
// then accept the callback URL the browser was redirected to.
type loginModel struct {
	auth   Authenticator
	width  int
	height int

	url   string
	input textinput.Model
	busy  bool
	err   error
}

func newLoginModel(a Authenticator) loginModel {
	ti := textinput.New()
	ti.Placeholder = "paste the callback URL"
	ti.CharLimit = 2048
	ti.Width = 60
	return loginModel{auth: a, input: ti}
}

func (l *loginModel) setSize(w, h int) {
	l.width = w
	l.height = h
	l.input.Width = max(20, w-12)
}

func (l loginModel) begin() (loginModel, tea.Cmd) {
	u, _, err := l.auth.Begin()
	if err != nil {
		l.err = err
		return l, nil
	}
	l.url = u
	l.err = nil
	l.input.SetValue("")
	cmd := l.input.Focus()
	return l, cmd
}

func (l loginModel) update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case loginDoneMsg:
		l.busy = false
		if msg.err != nil {
			// a failed callback ends the flow; start over
			l.err = msg.err
			l.url = ""
			l.input.Blur()
			return l, nil
		}
		l.url = ""
		l.err = nil
		l.input.Blur()
		return l, nil

	case tea.KeyMsg:
		if l.busy {
			return l, nil
		}
		switch {
		case key.Matches(msg, keys.Enter):
			if l.url == "" {
				return l.begin()
			}
			l.busy = true
			a, callback := l.auth, l.input.Value()
			return l, func() tea.Msg {
				return loginDoneMsg{err: a.Complete(callback)}
			}
		case key.Matches(msg, keys.Back):
			if l.url != "" {
				l.auth.Cancel()
				l.url = ""
				l.input.Blur()
			}
			return l, nil
		}
	}

	if l.url == "" {
		return l, nil
	}
	var cmd tea.Cmd
	l.input, cmd = l.input.Update(msg)
	return l, cmd
}

func (l loginModel) view() string {
	w := l.width - 4
	rows := []string{titleStyle.Render("Log in to Beeminder"), ""}

	switch {
	case l.busy:
		rows = append(rows, mutedStyle.Render("Checking..."))
	case l.url == "":
		rows = append(rows, "You are not logged in.", "", mutedStyle.Render("Press enter to start, q to quit"))
	default:
		rows = append(rows,
			"Open this URL in your browser and authorize beebar:",
			"",
			highlightStyle.Render(l.url),
			"",
			"Then paste the URL you were redirected to:",
			l.input.View(),
			"",
			mutedStyle.Render("enter: submit  esc: cancel"),
		)
	}

	if l.err != nil {
		rows = append(rows, "", errorStyle.Render("Login failed: "+l.err.Error()))
	}

	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
