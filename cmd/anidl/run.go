package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"anidl/internal/core"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		names     []string
		transcode bool
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch the next episode of every series once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			c := *cfg
			if cmd.Flags().Changed("transcode") {
				c.Transcode.Enabled = transcode
			}
			if cmd.Flags().Changed("workers") {
				if workers < 0 {
					return fmt.Errorf("--workers must not be negative")
				}
				c.App.Workers = workers
			}

			out := cmd.OutOrStdout()
			live := isTerminal(out)
			a, err := openApp(c, live, true)
			if err != nil {
				return err
			}
			defer a.Close()

			unlock, err := acquireLock(c.App.DataPath)
			if err != nil {
				return err
			}
			defer unlock()

			list, err := a.loadSeries(names)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintf(out, "No series configured in %s\n", a.repo.Path())
				return nil
			}

			m := a.manager()
			planCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			fmt.Fprintf(out, "Planning %d series...\n", len(list))
			tasks := m.Plan(planCtx, list)

			// Registered before stop() so signals are always caught.
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			interrupted := planCtx.Err() != nil
			stop()
			if interrupted {
				fmt.Fprintln(cmd.ErrOrStderr(), "Planning cancelled")
				return context.Canceled
			}

			run, err := m.Start(cmd.Context(), tasks)
			if err != nil {
				return err
			}
			go watchInterrupts(run, sigs, cmd.ErrOrStderr(), os.Exit)

			board := core.NewBoard()
			board.Seed(tasks)
			printer := newStatusPrinter(out, board, live)
			for ev := range run.Events() {
				printer.handle(ev)
			}
			printer.finish()
			summary := run.Wait()

			fmt.Fprintln(out, renderSummary(summary))
			if summary.Cancelled {
				return context.Canceled
			}
			if failed := summary.Count(core.OutcomeFailed); failed > 0 {
				return fmt.Errorf("%d series failed, see %s", failed, c.App.ErrorLog)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "series", "s", nil, "Only run the named series (repeatable)")
	cmd.Flags().BoolVar(&transcode, "transcode", false, "Transcode downloaded episodes (overrides config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent series (0 = one per CPU)")
	return cmd
}

type cancellable interface {
	RequestCancel()
	Done() <-chan struct{}
}

// watchInterrupts asks the run to stop on the first signal and exits hard on
// the second.
func watchInterrupts(run cancellable, sigs <-chan os.Signal, stderr io.Writer, exit func(int)) {
	select {
	case <-sigs:
		fmt.Fprintln(stderr, "Cancelling run, press Ctrl+C again to quit immediately")
		run.RequestCancel()
	case <-run.Done():
		return
	}
	select {
	case <-sigs:
		fmt.Fprintln(stderr, "Forced exit")
		exit(130)
	case <-run.Done():
	}
}
