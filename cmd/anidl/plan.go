package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"anidl/internal/episode"
	"anidl/internal/series"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what the next run would download without downloading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			a, err := openApp(*cfg, true, false)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.loadSeries(names)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "No series configured in %s\n", a.repo.Path())
				return nil
			}

			tasks := a.manager().Plan(cmd.Context(), list)
			fmt.Fprintln(out, renderPlan(tasks))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "series", "s", nil, "Only plan the named series (repeatable)")
	return cmd
}

func renderPlan(tasks []series.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Action != series.ActionProcess {
			rows = append(rows, []string{t.Name(), string(t.Action), "-", "-", "", t.Reason})
			continue
		}
		name := episode.FinalFilename(t.DownloadURL, t.Series.FilenameRoot, t.FinalEpisode)
		rows = append(rows, []string{
			t.Name(),
			string(t.Action),
			strconv.Itoa(t.RemoteEpisode),
			strconv.Itoa(t.FinalEpisode),
			name,
			t.DownloadURL,
		})
	}
	return renderTable(
		[]string{"Series", "Action", "Remote", "Final", "Filename", "Source / Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}
