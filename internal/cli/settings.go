package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sadopc/beebar/internal/engine"
	"github.com/sadopc/beebar/internal/store"
)

type settingsView struct {
	RefreshInterval int    `json:"refresh_interval_minutes"`
	LaunchAtLogin   bool   `json:"launch_at_login"`
	Username        string `json:"username,omitempty"`
	Database        string `json:"database"`
	ConfigFile      string `json:"config_file,omitempty"`
}

func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		interval      int
		launchAtLogin bool
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the refresh interval and launch-at-login flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("interval") {
				if err := saveInterval(a.store, interval); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("launch-at-login") {
				if err := a.store.SetLaunchAtLogin(launchAtLogin); err != nil {
					return fmt.Errorf("save launch_at_login: %w", err)
				}
			}
			return printSettings(cmd, a, rootOpts.Format)
		},
	}
	cmd.Flags().IntVarP(&interval, "interval", "i", engine.DefaultIntervalMinutes,
		fmt.Sprintf("refresh interval in minutes %v", engine.AllowedIntervals))
	cmd.Flags().BoolVar(&launchAtLogin, "launch-at-login", false, "start beebar when you log in")
	return cmd
}

// saveInterval validates and persists the refresh interval.
func saveInterval(s *store.Store, minutes int) error {
	cfg, err := engine.ParsePollConfig(strconv.Itoa(minutes))
	if err != nil {
		return err
	}
	if err := s.SetSetting(store.SettingRefreshInterval, strconv.Itoa(cfg.Minutes())); err != nil {
		return fmt.Errorf("save refresh interval: %w", err)
	}
	return nil
}

func printSettings(cmd *cobra.Command, a *app, format string) error {
	launch, err := a.store.LaunchAtLogin()
	if err != nil {
		return err
	}
	v := settingsView{
		RefreshInterval: a.pollConfig().Minutes(),
		LaunchAtLogin:   launch,
		Username:        a.auth.Username(),
		Database:        a.cfg.DBPath,
		ConfigFile:      a.cfg.File,
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return printJSON(out, v)
	}
	user := v.Username
	if user == "" {
		user = "(not logged in)"
	}
	printTable(out, []string{"SETTING", "VALUE"}, [][]string{
		{"refresh interval", engine.NewPollConfig(v.RefreshInterval).String()},
		{"launch at login", strconv.FormatBool(v.LaunchAtLogin)},
		{"user", user},
		{"database", v.Database},
	})
	return nil
}
