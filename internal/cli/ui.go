package cli

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/beebar/internal/tui"
)

// journalRetention bounds the submissions journal; older rows are pruned
// when the UI starts.
const journalRetention = 90 * 24 * time.Hour

func NewUICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive goal list (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, rootOpts)
		},
	}
}

func runUI(cmd *cobra.Command, opts *RootOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.store.PruneSubmissions(time.Now().Add(-journalRetention)); err != nil {
		a.logger.Warn("prune submissions", "err", err)
	} else if n > 0 {
		a.logger.Info("pruned submissions", "count", n)
	}

	m := tui.NewApp(tui.Options{
		Engine: a.engine,
		Auth:   a.auth,
		Store:  a.store,
		API:    a.client,
		Logger: a.logger.With("component", "ui"),
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
