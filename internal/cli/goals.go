package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/engine"
)

type goalRow struct {
	Slug       string                `json:"slug"`
	Title      string                `json:"title"`
	Urgency    string                `json:"urgency"`
	Safebuf    int                   `json:"safebuf"`
	Due        string                `json:"due"`
	Current    *float64              `json:"current,omitempty"`
	Pledge     string                `json:"pledge,omitempty"`
	Rate       string                `json:"rate,omitempty"`
	Datapoints []beeminder.Datapoint `json:"datapoints,omitempty"`
}

func NewGoalsCommand(rootOpts *RootOptions) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:     "goals",
		Aliases: []string{"ls"},
		Short:   "List goals, most urgent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runGoals(cmd, a, rootOpts.Format, recent)
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 0, "include the N most recent datapoints per goal")
	return cmd
}

func runGoals(cmd *cobra.Command, a *app, format string, recent int) error {
	tok, err := a.token()
	if err != nil {
		return err
	}
	if _, err := a.engine.Refresh(cmd.Context(), false); err != nil {
		return err
	}
	goals := a.engine.Snapshot().Goals

	var points map[string][]beeminder.Datapoint
	if recent > 0 {
		slugs := make([]string, len(goals))
		for i, g := range goals {
			slugs[i] = g.Slug
		}
		points, err = a.client.FetchRecentDatapoints(cmd.Context(), slugs, recent, tok)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	rows := make([]goalRow, 0, len(goals))
	for _, g := range goals {
		pledge, _ := g.PledgeText()
		rate, _ := g.RateText()
		rows = append(rows, goalRow{
			Slug:       g.Slug,
			Title:      g.Title,
			Urgency:    g.Urgency().String(),
			Safebuf:    g.Safebuf,
			Due:        g.DeadlineText(now),
			Current:    g.Curval,
			Pledge:     pledge,
			Rate:       rate,
			Datapoints: points[g.Slug],
		})
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No goals.")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := []string{r.Slug, strconv.Itoa(r.Safebuf), r.Due, formatOptional(r.Current), r.Pledge, r.Rate}
		if recent > 0 {
			line = append(line, recentValues(r.Datapoints))
		}
		table = append(table, line)
	}
	headers := []string{"GOAL", "SAFE DAYS", "DUE", "CURRENT", "PLEDGE", "RATE"}
	if recent > 0 {
		headers = append(headers, "RECENT")
	}
	printTable(out, headers, table)
	return nil
}

func recentValues(points []beeminder.Datapoint) string {
	s := ""
	for i, p := range points {
		if i > 0 {
			s += " "
		}
		s += formatFloat(p.Value)
	}
	return s
}

func NewDatapointsCommand(rootOpts *RootOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "datapoints <goal>",
		Short: "Show recent datapoints of a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			tok, err := a.token()
			if err != nil {
				return err
			}
			points, err := a.client.FetchDatapoints(cmd.Context(), args[0], count, tok)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return printJSON(out, points)
			}
			rows := make([][]string, 0, len(points))
			for _, p := range points {
				rows = append(rows, []string{p.Time().Local().Format("2006-01-02 15:04"), formatFloat(p.Value), p.Comment})
			}
			printTable(out, []string{"TIME", "VALUE", "COMMENT"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", beeminder.DefaultDatapointCount, "number of datapoints")
	return cmd
}

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "add <goal> <value>",
		Short: "Add a datapoint and wait until the goal reflects it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runAdd(cmd, a, args[0], args[1], comment)
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "datapoint comment")
	return cmd
}

func runAdd(cmd *cobra.Command, a *app, slug, value, comment string) error {
	if _, err := a.token(); err != nil {
		return err
	}
	if _, err := a.engine.Refresh(cmd.Context(), false); err != nil {
		return err
	}
	g, ok := a.engine.Goal(slug)
	if !ok {
		return fmt.Errorf("unknown goal %q", slug)
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("invalid value %q", value)
	}

	results := a.engine.SubmitDatapoint(g.ID, value, comment)
	if results == nil {
		return fmt.Errorf("datapoint for %q not accepted", slug)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Submitting %s to %s...\n", value, slug)
	var r engine.Result
	select {
	case r = <-results:
	case <-cmd.Context().Done():
		a.engine.CancelConfirmation(g.ID)
		return cmd.Context().Err()
	}
	if r.Err != nil {
		return fmt.Errorf("add datapoint: %w", r.Err)
	}

	out := cmd.OutOrStdout()
	if updated, ok := a.engine.Goal(g.ID); ok {
		fmt.Fprintf(out, "%s: %s, %d safe days, due %s\n", slug, r.Outcome, updated.Safebuf, updated.DeadlineText(time.Now()))
		return nil
	}
	fmt.Fprintf(out, "%s: %s\n", slug, r.Outcome)
	return nil
}
