package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/queue"
	"github.com/glueful/glueful/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue worker and management commands",
}

// newQueueDriver builds the configured driver. The returned closer releases
// the underlying connection.
func newQueueDriver(metrics *telemetry.QueueMetrics) (queue.Driver, func(), error) {
	switch cfg.Queue.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		driver := queue.NewRedisDriver(client, cfg.Queue.RetryAfter, cfg.Queue.JobExpiration, metrics)
		return driver, func() { _ = client.Close() }, nil
	default:
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		driver := queue.NewDatabaseDriver(db, cfg.Queue.RetryAfter, metrics)
		return driver, func() { _ = bunx.Close(db) }, nil
	}
}

var queueWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Run queue workers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		queueName, _ := cmd.Flags().GetString("queue")
		if queueName == "" {
			queueName = cfg.Queue.Default
		}

		metrics, err := telemetry.NewQueueMetrics()
		if err != nil {
			return fmt.Errorf("failed to create queue metrics: %w", err)
		}

		driver, closeDriver, err := newQueueDriver(metrics)
		if err != nil {
			return err
		}
		defer closeDriver()

		if health := driver.HealthCheck(cmd.Context()); !health.Healthy {
			return fmt.Errorf("queue backend unhealthy: %s", health.Detail)
		}

		runner := queue.NewRunner(driver, queue.RunnerOptions{
			Queue:       queueName,
			Concurrency: cfg.Queue.Workers,
		}, metrics)
		registerHandlers(runner)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// registerHandlers binds the process's job handlers. Applications embedding
// the runner register their own; the ping handler stays for smoke tests.
func registerHandlers(runner *queue.Runner) {
	runner.Register("ping", func(ctx context.Context, job *queue.Job) error {
		log.Printf("ping job %s: %v", job.UUID, job.Data)
		return nil
	})
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue backlog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		queueName, _ := cmd.Flags().GetString("queue")

		driver, closeDriver, err := newQueueDriver(nil)
		if err != nil {
			return err
		}
		defer closeDriver()

		stats, err := driver.Stats(cmd.Context(), queueName)
		if err != nil {
			return fmt.Errorf("failed to get queue stats: %w", err)
		}

		fmt.Printf("Total:    %d\n", stats.Total)
		fmt.Printf("Pending:  %d\n", stats.Pending)
		fmt.Printf("Delayed:  %d\n", stats.Delayed)
		fmt.Printf("Reserved: %d\n", stats.Reserved)
		fmt.Printf("Failed:   %d\n", stats.Failed)
		if len(stats.Queues) > 0 {
			fmt.Printf("Queues:   %s\n", strings.Join(stats.Queues, ", "))
		}
		return nil
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all jobs from a queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		queueName, _ := cmd.Flags().GetString("queue")

		driver, closeDriver, err := newQueueDriver(nil)
		if err != nil {
			return err
		}
		defer closeDriver()

		removed, err := driver.Purge(cmd.Context(), queueName)
		if err != nil {
			return fmt.Errorf("failed to purge queue: %w", err)
		}

		log.Printf("Purged %d job(s)", removed)
		return nil
	},
}

func init() {
	queueWorkCmd.Flags().String("queue", "", "Queue to consume (default from QUEUE_DEFAULT)")
	queueStatsCmd.Flags().String("queue", "", "Queue to inspect (empty for all)")
	queuePurgeCmd.Flags().String("queue", "", "Queue to purge (empty for all)")

	queueCmd.AddCommand(queueWorkCmd, queueStatsCmd, queuePurgeCmd)
	rootCmd.AddCommand(queueCmd)
}
