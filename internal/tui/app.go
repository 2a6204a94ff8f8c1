// Package tui is the interactive goal list: a Bubble Tea program that
// renders engine snapshots and forwards user intent back to the engine.
package tui

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/engine"
	"github.com/sadopc/beebar/internal/export"
	"github.com/sadopc/beebar/internal/store"
)

// Options wires the UI to the rest of the application.
type Options struct {
	Engine Engine
	Auth   Authenticator
	Store  *store.Store
	API    DatapointFetcher
	// ExportDir receives exports; empty means the home directory.
	ExportDir string
	Logger    *slog.Logger
}

// App is the root Bubble Tea model.
type App struct {
	engine    Engine
	auth      Authenticator
	logger    *slog.Logger
	exportDir string
	width     int
	height    int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int
	authed        bool
	snap          engine.Snapshot

	goals    goalsModel
	detail   detailModel
	history  historyModel
	settings settingsModel
	login    loginModel

	help      help.Model
	spinner   spinner.Model
	status    string
	statusErr bool
}

func NewApp(opts Options) App {
	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return App{
		engine:     opts.Engine,
		auth:       opts.Auth,
		logger:     logger,
		exportDir:  opts.ExportDir,
		activeView: viewGoals,
		authed:     opts.Auth.Authenticated(),
		goals:      newGoalsModel(opts.Engine),
		detail:     newDetailModel(opts.API, opts.Auth),
		history:    newHistoryModel(opts.Store),
		settings:   newSettingsModel(opts.Store, opts.Engine),
		login:      newLoginModel(opts.Auth),
		help:       h,
		spinner:    sp,
	}
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForChange(a.engine),
		a.spinner.Tick,
		tickCmd(),
		a.settings.refresh(),
		a.history.refresh(),
	}
	if a.authed {
		cmds = append(cmds, a.startEngine())
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) startEngine() tea.Cmd {
	e := a.engine
	return func() tea.Msg {
		e.Start()
		return nil
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.goals.setSize(a.width, contentHeight)
		a.detail.setSize(a.width, contentHeight)
		a.history.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		a.login.setSize(a.width, contentHeight)
		return a, nil

	case engineChangedMsg:
		a.snap = a.engine.Snapshot()
		a.goals.setSnapshot(a.snap)
		for _, g := range a.snap.Goals {
			if g.ID == a.detail.goal.ID {
				a.detail.goal = g
				break
			}
		}
		if a.authed && !a.auth.Authenticated() {
			// the token was rejected and the session dropped underneath us
			a.authed = false
			a.engine.Stop()
			a.status, a.statusErr = "Session expired, please log in again", true
		}
		return a, waitForChange(a.engine)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case loginDoneMsg:
		a.login, _ = a.login.update(msg)
		if msg.err != nil {
			return a, nil
		}
		a.authed = true
		a.status, a.statusErr = "Logged in as "+a.auth.Username(), false
		return a, a.startEngine()

	case submitDoneMsg:
		a.status, a.statusErr = describeResult(msg)
		var cmd tea.Cmd
		a.history, cmd = a.history.update(msg)
		cmds = append(cmds, cmd)
		a.detail, cmd = a.detail.update(msg)
		cmds = append(cmds, cmd)
		return a, tea.Batch(cmds...)

	case datapointsMsg:
		var cmd tea.Cmd
		a.detail, cmd = a.detail.update(msg)
		return a, cmd

	case historyDataMsg:
		var cmd tea.Cmd
		a.history, cmd = a.history.update(msg)
		return a, cmd

	case settingsDataMsg:
		var cmd tea.Cmd
		a.settings, cmd = a.settings.update(msg)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}

		if !a.authed {
			if key.Matches(msg, keys.Quit) && a.login.url == "" {
				return a, tea.Quit
			}
			var cmd tea.Cmd
			a.login, cmd = a.login.update(msg)
			return a, cmd
		}

		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isCapturing() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Logout):
			return a.logout()
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewGoals
			return a, nil
		case key.Matches(msg, keys.Tab2):
			return a.switchTo(viewDetail)
		case key.Matches(msg, keys.Tab3):
			return a.switchTo(viewHistory)
		case key.Matches(msg, keys.Tab4):
			return a.switchTo(viewSettings)
		case key.Matches(msg, keys.Tab):
			return a.switchTo((a.activeView + 1) % viewState(len(viewNames)))
		}

	case tickMsg:
		cmds = append(cmds, tickCmd())
		var cmd tea.Cmd
		a.goals, cmd = a.goals.update(msg)
		cmds = append(cmds, cmd)
		return a, tea.Batch(cmds...)

	case statusMsg:
		a.status, a.statusErr = msg.text, msg.isError
		return a, nil

	case exportDoneMsg:
		a.status, a.statusErr = "Exported to "+msg.path, false
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) switchTo(v viewState) (tea.Model, tea.Cmd) {
	a.activeView = v
	switch v {
	case viewDetail:
		goal, ok := a.goals.current()
		if !ok {
			return a, nil
		}
		var cmd tea.Cmd
		a.detail, cmd = a.detail.show(goal)
		return a, cmd
	case viewHistory:
		return a, a.history.refresh()
	case viewSettings:
		return a, a.settings.refresh()
	}
	return a, nil
}

func (a App) logout() (tea.Model, tea.Cmd) {
	a.engine.Stop()
	if err := a.auth.Logout(); err != nil {
		a.logger.Error("logout", "err", err)
		a.status, a.statusErr = fmt.Sprintf("Error: %v", err), true
		return a, nil
	}
	a.engine.Reset()
	a.authed = false
	a.activeView = viewGoals
	a.detail = newDetailModel(a.detail.api, a.auth)
	a.detail.setSize(a.width, a.height-4)
	a.status, a.statusErr = "Logged out", false
	return a, nil
}

func describeResult(msg submitDoneMsg) (string, bool) {
	r := msg.result
	switch r.Outcome {
	case engine.OutcomeConfirmed:
		return fmt.Sprintf("%s: datapoint added", msg.slug), false
	case engine.OutcomeUnconfirmed:
		return fmt.Sprintf("%s: sent, not yet reflected", msg.slug), false
	case engine.OutcomeCancelled:
		return fmt.Sprintf("%s: stopped waiting", msg.slug), false
	default:
		text := fmt.Sprintf("%s: submit failed", msg.slug)
		if r.Err != nil {
			text += ": " + r.Err.Error()
		}
		return text, true
	}
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewGoals:
		a.goals, cmd = a.goals.update(msg)
	case viewDetail:
		a.detail, cmd = a.detail.update(msg)
	case viewHistory:
		a.history, cmd = a.history.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isCapturing() bool {
	switch a.activeView {
	case viewGoals:
		return a.goals.capturing()
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch {
	case !a.authed:
		content = a.login.view()
	case a.activeView == viewGoals:
		content = a.goals.view()
	case a.activeView == viewDetail:
		content = a.detail.view()
	case a.activeView == viewHistory:
		content = a.history.view()
	case a.activeView == viewSettings:
		content = a.settings.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := max(1, a.height-headerHeight-footerHeight)

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("beebar")
	if !a.authed {
		return headerStyle.Render(title)
	}

	if n := a.snap.EmergencyCount; n > 0 {
		title = lipgloss.JoinHorizontal(lipgloss.Bottom, title, " ", badgeStyle.Render(fmt.Sprintf("%d due", n)))
	}
	if u := a.auth.Username(); u != "" {
		title = lipgloss.JoinHorizontal(lipgloss.Bottom, title, mutedStyle.Render("  "+u))
	}

	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	gap := max(1, a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	left := footerStyle.Render(a.help.View(keys))

	var right string
	if a.authed {
		if a.snap.Loading {
			right = a.spinner.View() + " "
		}
		right += statusBarStyle.Render("updated " + formatAgo(a.snap.LastRefresh, time.Now()))
		if a.snap.Polling {
			right += statusBarStyle.Render(" · " + a.snap.Poll.String())
		}
	}
	if a.status != "" {
		style := mutedStyle
		if a.statusErr {
			style = errorStyle
		}
		right += style.Render("  " + a.status)
	}

	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

var exportFormats = []string{"CSV", "JSON"}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export goals"), ""}
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))

	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes the goals currently on screen. The JSON export carries the
// datapoints of the goal open in the detail view, if any.
func (a App) doExport(format int) tea.Cmd {
	goals := a.snap.Goals
	var recent map[string][]beeminder.Datapoint
	if a.detail.goal.Slug != "" && len(a.detail.points) > 0 {
		recent = map[string][]beeminder.Datapoint{a.detail.goal.Slug: a.detail.points}
	}
	dir, logger := a.exportDir, a.logger

	return func() tea.Msg {
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
			}
			dir = home
		}
		now := time.Now()
		base := filepath.Join(dir, "beebar-goals-"+now.Format("2006-01-02"))

		var path string
		if format == 0 {
			path = base + ".csv"
			if err := export.GoalsCSV(goals, now, path); err != nil {
				return statusMsg{text: fmt.Sprintf("CSV error: %v", err), isError: true}
			}
		} else {
			path = base + ".json"
			if err := export.GoalsJSON(goals, recent, path); err != nil {
				return statusMsg{text: fmt.Sprintf("JSON error: %v", err), isError: true}
			}
		}

		logger.Info("exported goals", "path", path, "count", len(goals))
		return exportDoneMsg{path: path}
	}
}
