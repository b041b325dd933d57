package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"anidl/internal/database/models"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or the results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, closeFn, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := runs.GetByID(args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				results, err := runs.Results(run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s started %s\n", run.ID, run.StartedAt.Local().Format(time.DateTime))
				fmt.Fprintln(out, renderResults(results))
				return nil
			}

			list, err := runs.List(limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderRuns(list))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")

	cmd.AddCommand(newHistorySeriesCommand(ctx))
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistorySeriesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "series <name>",
		Short: "Show recent results for one series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, closeFn, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			results, err := runs.SeriesHistory(args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderResults(results))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of results to show")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			runs, closeFn, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := runs.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}

func openHistory(ctx *commandContext) (*models.RunRepository, func(), error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := openApp(*cfg, true, true)
	if err != nil {
		return nil, nil, err
	}
	return a.recorder.Runs(), a.Close, nil
}

func renderRuns(list []models.Run) string {
	rows := make([][]string, 0, len(list))
	for _, run := range list {
		state := "complete"
		if run.Cancelled {
			state = "cancelled"
		}
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			state,
			strconv.Itoa(run.FinishedCount),
			strconv.Itoa(run.FailedCount),
			strconv.Itoa(run.SkippedCount),
			strconv.Itoa(run.CancelledCount),
		})
	}
	return renderTable(
		[]string{"Run", "Started", "Took", "State", "Ready", "Failed", "Skipped", "Cancelled"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderResults(results []models.TaskResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		episode := "-"
		if r.Episode > 0 {
			episode = strconv.Itoa(r.Episode)
		}
		detail := deref(r.Reason)
		if detail == "" {
			detail = deref(r.Error)
		}
		if detail == "" {
			detail = deref(r.Path)
		}
		rows = append(rows, []string{
			r.Series,
			episode,
			r.Outcome,
			formatSeconds(time.Duration(r.DownloadSeconds * float64(time.Second))),
			formatSeconds(time.Duration(r.ConversionSeconds * float64(time.Second))),
			detail,
		})
	}
	return renderTable(
		[]string{"Series", "Episode", "Outcome", "Download", "Conversion", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
