package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"anidl/internal/clients/notifications"
	"anidl/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify external tools and settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := deps.CheckBinaries(deps.PipelineRequirements(*cfg, cfg.Transcode.Enabled))
			fmt.Fprintln(out, renderDependencies(statuses))

			fmt.Fprintln(out, renderTable(
				[]string{"Setting", "Value"},
				[][]string{
					{"Data path", cfg.App.DataPath},
					{"Series file", cfg.App.SeriesFile},
					{"Output dir", cfg.App.OutputDir},
					{"Error log", cfg.App.ErrorLog},
					{"History", cfg.Database.Path},
					{"Transcode", fmt.Sprintf("%t (%s, crf %d)", cfg.Transcode.Enabled, cfg.Transcode.Codec, cfg.Transcode.CRF)},
					{"Schedule", cfg.Schedule.Cron},
				},
				nil,
			))

			if notify {
				if cfg.Notifications.PushbulletAPIKey == "" {
					return fmt.Errorf("no pushbullet api key configured")
				}
				a, err := openApp(*cfg, true, false)
				if err != nil {
					return err
				}
				defer a.Close()
				client := notifications.NewPushbulletClient(cfg.Notifications.PushbulletAPIKey, a.logger)
				if err := client.Test(); err != nil {
					return fmt.Errorf("pushbullet: %w", err)
				}
				fmt.Fprintln(out, "Test notification sent")
			}

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required tool(s) missing", len(missing))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a test notification")
	return cmd
}

func renderDependencies(statuses []deps.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state := "ok"
		switch {
		case !s.Available && s.Optional:
			state = "missing (optional)"
		case !s.Available:
			state = "missing"
		}
		location := s.Path
		if location == "" {
			location = s.Detail
		}
		rows = append(rows, []string{s.Name, s.Command, state, location, s.Description})
	}
	return renderTable([]string{"Tool", "Command", "State", "Location", "Purpose"}, rows, nil)
}
