package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"anidl/internal/series"
)

func newSeriesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Manage tracked series",
	}
	cmd.AddCommand(newSeriesListCommand(ctx))
	cmd.AddCommand(newSeriesAddCommand(ctx))
	cmd.AddCommand(newSeriesRemoveCommand(ctx))
	return cmd
}

func openRepository(ctx *commandContext) (*series.Repository, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return series.NewRepository(cfg.App.SeriesFile), nil
}

func newSeriesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked series",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(ctx)
			if err != nil {
				return err
			}
			list, err := repo.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "No series configured in %s\n", repo.Path())
				return nil
			}
			fmt.Fprintln(out, renderSeries(list))
			return nil
		},
	}
}

func newSeriesAddCommand(ctx *commandContext) *cobra.Command {
	var (
		desc      series.Descriptor
		transcode bool
		disabled  bool
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a series to the tracked list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc.Name = args[0]
			if cmd.Flags().Changed("transcode") {
				desc.Transcode = &transcode
			}
			if disabled {
				enabled := false
				desc.Enabled = &enabled
			}
			if err := desc.Validate(); err != nil {
				return err
			}

			repo, err := openRepository(ctx)
			if err != nil {
				return err
			}
			list, err := repo.Load()
			if err != nil {
				return err
			}
			for _, d := range list {
				if d.Name == desc.Name {
					return fmt.Errorf("series %q already exists", desc.Name)
				}
			}
			if err := repo.Save(append(list, desc)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", desc.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc.Path, "path", "", "Directory holding the series episodes")
	cmd.Flags().StringVar(&desc.Service, "service", "", "Planner service (direct, page, rss)")
	cmd.Flags().StringVar(&desc.SeriesPageURL, "url", "", "Series page, feed or download template URL")
	cmd.Flags().BoolVar(&desc.Continuation, "continue", false, "Numbering continues from an earlier season")
	cmd.Flags().IntVar(&desc.PassedEpisodes, "passed", 0, "Episodes of earlier seasons already in the directory")
	cmd.Flags().StringVar(&desc.FilenameRoot, "root", "", "Filename root used for downloaded episodes")
	cmd.Flags().BoolVar(&transcode, "transcode", false, "Override the transcode setting for this series")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the series disabled")
	return cmd
}

func newSeriesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Stop tracking a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(ctx)
			if err != nil {
				return err
			}
			list, err := repo.Load()
			if err != nil {
				return err
			}
			kept := list[:0]
			for _, d := range list {
				if d.Name != args[0] {
					kept = append(kept, d)
				}
			}
			if len(kept) == len(list) {
				return fmt.Errorf("unknown series %q", args[0])
			}
			if err := repo.Save(kept); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func renderSeries(list []series.Descriptor) string {
	rows := make([][]string, 0, len(list))
	for _, d := range list {
		transcode := "default"
		if d.Transcode != nil {
			transcode = strconv.FormatBool(*d.Transcode)
		}
		rows = append(rows, []string{
			d.Name,
			d.Service,
			d.Path,
			strconv.FormatBool(d.Continuation),
			strconv.Itoa(d.PassedEpisodes),
			transcode,
			strconv.FormatBool(d.IsEnabled()),
		})
	}
	return renderTable(
		[]string{"Name", "Service", "Path", "Continue", "Passed", "Transcode", "Enabled"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}
