package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openjobspec/ojs-cron/internal/runner"
	"github.com/openjobspec/ojs-cron/internal/scheduler"
)

func newRuncronsCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "runcrons [codes...]",
		Short: "Run one scheduler tick",
		Long: `Evaluate every registered job, or only the given job codes, against the
current time and run the ones that are due. Use --force to run them regardless
of their schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.registry.Select(args...)
			if err != nil {
				return err
			}

			sched := scheduler.New(a.runner, a.registry,
				scheduler.WithLogger(a.logger),
				scheduler.WithTickObserver(a.metrics),
				scheduler.WithRunOptions(runner.Options{Force: force}),
			)
			report := sched.Tick(cmd.Context(), time.Now(), jobs)

			out := cmd.OutOrStdout()
			for _, res := range report.Results {
				line := fmt.Sprintf("%-40s %s", res.Outcome.JobCode, res.Outcome.Status)
				switch {
				case res.Err != nil:
					line += "  error: " + res.Err.Error()
				case res.Outcome.Err != nil:
					line += "  " + res.Outcome.Err.Error()
				case res.Outcome.Conflict:
					line += "  (claimed elsewhere)"
				}
				fmt.Fprintln(out, line)
			}

			if n := report.Errors(); n > 0 {
				return fmt.Errorf("%d job(s) could not be recorded", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run jobs even if they are not due")
	return cmd
}
