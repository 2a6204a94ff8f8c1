package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/export"
	"github.com/sadopc/beebar/internal/store"
)

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		output string
		kind   string
		recent int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the current goals to CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind == "" {
				kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
			}
			if kind != "csv" && kind != "json" {
				return fmt.Errorf("unknown export type %q: use --type csv or json", kind)
			}

			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runExport(cmd, a, output, kind, recent)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	cmd.Flags().StringVarP(&kind, "type", "t", "", "csv or json (default from the output extension)")
	cmd.Flags().IntVar(&recent, "recent", 0, "JSON only: include the N most recent datapoints per goal")
	cmd.MarkFlagRequired("output")
	return cmd
}

func runExport(cmd *cobra.Command, a *app, output, kind string, recent int) error {
	tok, err := a.token()
	if err != nil {
		return err
	}
	if _, err := a.engine.Refresh(cmd.Context(), false); err != nil {
		return err
	}
	goals := a.engine.Snapshot().Goals

	switch kind {
	case "csv":
		err = export.GoalsCSV(goals, time.Now(), output)
	default:
		var points map[string][]beeminder.Datapoint
		if recent > 0 {
			slugs := make([]string, len(goals))
			for i, g := range goals {
				slugs[i] = g.Slug
			}
			if points, err = a.client.FetchRecentDatapoints(cmd.Context(), slugs, recent, tok); err != nil {
				return err
			}
		}
		err = export.GoalsJSON(goals, points, output)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d goals to %s\n", len(goals), output)
	return nil
}

func NewSubmissionsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filter store.SubmissionFilter
		since  time.Duration
		prune  time.Duration
		csv    string
	)
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List datapoints submitted from this machine and how they ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if prune > 0 {
				n, err := a.store.PruneSubmissions(time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d submissions.\n", n)
			}

			if since > 0 {
				from := time.Now().Add(-since)
				filter.From = &from
			}
			subs, err := a.store.ListSubmissions(filter)
			if err != nil {
				return err
			}

			if csv != "" {
				if err := export.SubmissionsCSV(subs, csv); err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %d submissions to %s\n", len(subs), csv)
				return nil
			}
			if rootOpts.Format == "json" {
				return printJSON(out, subs)
			}
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions.")
				return nil
			}
			rows := make([][]string, 0, len(subs))
			for _, s := range subs {
				rows = append(rows, []string{
					s.FinishedAt.Local().Format("2006-01-02 15:04"),
					s.Slug,
					formatFloat(s.Value),
					s.Outcome,
					fmt.Sprint(s.Attempts),
					s.Comment,
				})
			}
			printTable(out, []string{"FINISHED", "GOAL", "VALUE", "OUTCOME", "CHECKS", "COMMENT"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.Slug, "goal", "g", "", "only this goal")
	cmd.Flags().StringVar(&filter.Outcome, "outcome", "", "confirmed, unconfirmed, cancelled or failed")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum rows, 0 for all")
	cmd.Flags().DurationVar(&since, "since", 0, "only submissions finished within this duration")
	cmd.Flags().StringVar(&csv, "csv", "", "write the list to this CSV file instead")
	cmd.Flags().DurationVar(&prune, "prune", 0, "first delete submissions older than this duration")
	return cmd
}
