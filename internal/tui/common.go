package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/beebar/internal/auth"
	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/engine"
)

// viewState represents the currently active view.
type viewState int

const (
	viewGoals viewState = iota
	viewDetail
	viewHistory
	viewSettings
)

var viewNames = []string{"Goals", "Detail", "History", "Settings"}

// Engine is the sync engine as seen by the UI.
type Engine interface {
	Start()
	Stop()
	RefreshNow()
	SetInput(goalID, text string)
	SubmitDatapoint(goalID, rawValue, comment string) <-chan engine.Result
	CancelConfirmation(goalID string)
	Reconfigure(cfg engine.PollConfig)
	DismissError()
	Reset()
	Snapshot() engine.Snapshot
	Changed() <-chan struct{}
}

// Authenticator is the login session as seen by the UI.
type Authenticator interface {
	Begin() (string, <-chan auth.Result, error)
	Complete(callbackURL string) error
	Cancel()
	Logout() error
	Authenticated() bool
	Username() string
	Token() (string, bool)
}

// DatapointFetcher loads recent datapoints for the detail chart.
type DatapointFetcher interface {
	FetchDatapoints(ctx context.Context, slug string, count int, token string) ([]beeminder.Datapoint, error)
}

// --- Messages ---

type engineChangedMsg struct{}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

type submitDoneMsg struct {
	slug   string
	result engine.Result
}

type loginDoneMsg struct {
	err error
}

type datapointsMsg struct {
	slug   string
	points []beeminder.Datapoint
	err    error
}

// --- Helpers ---

// waitForChange blocks until the engine reports a mutation.
func waitForChange(e Engine) tea.Cmd {
	return func() tea.Msg {
		<-e.Changed()
		return engineChangedMsg{}
	}
}

func waitForResult(slug string, ch <-chan engine.Result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return submitDoneMsg{slug: slug, result: r}
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return t.Local().Format("15:04")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
