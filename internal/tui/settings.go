package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/beebar/internal/engine"
	"github.com/sadopc/beebar/internal/store"
)

type settingsModel struct {
	store  *store.Store
	eng    Engine
	width  int
	height int

	settings   []store.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	interval      *int
	launchAtLogin *bool
}

func newSettingsModel(s *store.Store, e Engine) settingsModel {
	iv, la := engine.DefaultIntervalMinutes, false
	return settingsModel{
		store:         s,
		eng:           e,
		interval:      &iv,
		launchAtLogin: &la,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.store.GetAllSettings()
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Enter) {
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.interval = s.currentInterval().Minutes()
	*s.launchAtLogin, _ = s.store.LaunchAtLogin()

	opts := make([]huh.Option[int], 0, len(engine.AllowedIntervals))
	for _, m := range engine.AllowedIntervals {
		opts = append(opts, huh.NewOption(engine.NewPollConfig(m).String(), m))
	}

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().Title("Refresh goals").
				Options(opts...).
				Value(s.interval),
			huh.NewConfirm().Title("Launch at login").
				Affirmative("On").
				Negative("Off").
				Value(s.launchAtLogin),
		).Title("General"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		s.form = nil
		if err := s.saveSettings(); err != nil {
			return s, statusCmd(fmt.Sprintf("Error: %v", err), true)
		}
		return s, tea.Batch(s.refresh(), statusCmd("Settings saved", false))
	}

	return s, cmd
}

// saveSettings persists the form and applies the new interval to the running
// engine right away.
func (s settingsModel) saveSettings() error {
	cfg := engine.NewPollConfig(*s.interval)
	if err := s.store.SetSetting(store.SettingRefreshInterval, strconv.Itoa(cfg.Minutes())); err != nil {
		return err
	}
	if err := s.store.SetLaunchAtLogin(*s.launchAtLogin); err != nil {
		return err
	}
	s.eng.Reconfigure(cfg)
	return nil
}

func (s settingsModel) currentInterval() engine.PollConfig {
	v, err := s.store.GetSetting(store.SettingRefreshInterval)
	if err != nil {
		return engine.PollConfig{}
	}
	cfg, err := engine.ParsePollConfig(v)
	if err != nil {
		return engine.PollConfig{}
	}
	return cfg
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	rows := []string{title, ""}
	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}
	rows = append(rows, "", mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case store.SettingRefreshInterval:
		if cfg, err := engine.ParsePollConfig(v); err == nil {
			return cfg.String()
		}
	case store.SettingLaunchAtLogin:
		if on, err := strconv.ParseBool(v); err == nil {
			if on {
				return "on"
			}
			return "off"
		}
	}
	return v
}
