package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glueful/glueful/internal/queue"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Cron scheduler commands",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cron scheduler until interrupted",
	Long: `Evaluates registered cron schedules once per minute and enqueues the due
jobs. Schedules are given as repeated --job flags:

  glueful schedule run \
    --job "daily-report|0 6 * * *|reports.generate" \
    --job "heartbeat|* * * * *|ping|monitoring"

Each value is name|cron|handler[|queue].`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, _ := cmd.Flags().GetStringArray("job")
		if len(jobs) == 0 {
			return fmt.Errorf("at least one --job is required")
		}

		driver, closeDriver, err := newQueueDriver(nil)
		if err != nil {
			return err
		}
		defer closeDriver()

		sched := queue.NewScheduler(driver)
		for _, spec := range jobs {
			parts := strings.Split(spec, "|")
			if len(parts) < 3 || len(parts) > 4 {
				return fmt.Errorf("malformed --job %q (want name|cron|handler[|queue])", spec)
			}
			queueName := cfg.Queue.Default
			if len(parts) == 4 && parts[3] != "" {
				queueName = parts[3]
			}
			if err := sched.Add(parts[0], parts[1], queueName, queue.Message{Handler: parts[2]}); err != nil {
				return fmt.Errorf("failed to register schedule %q: %w", parts[0], err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	scheduleRunCmd.Flags().StringArray("job", nil, "Schedule definition name|cron|handler[|queue] (repeatable)")

	scheduleCmd.AddCommand(scheduleRunCmd)
	rootCmd.AddCommand(scheduleCmd)
}
