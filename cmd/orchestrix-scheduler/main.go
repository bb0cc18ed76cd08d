// Package main provides the scheduler binary that runs the maintenance jobs:
// the timeout sweep, retention cleanup and daily metrics aggregation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/orchestrix/orchestrix/pkg/cmd"
	"github.com/orchestrix/orchestrix/pkg/log"
	"github.com/orchestrix/orchestrix/pkg/notification"
	"github.com/orchestrix/orchestrix/pkg/scheduler"
	"github.com/orchestrix/orchestrix/pkg/tracker"
)

func main() {
	command := &cli.Command{
		Name:                  "orchestrix-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Run the periodic maintenance jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "timeout-threshold",
				Usage:   "Mark executions running longer than this as timed out",
				Value:   scheduler.DefaultTimeoutThreshold,
				Sources: cli.EnvVars("TIMEOUT_THRESHOLD"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for the timeout sweep",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "cleanup-schedule",
				Usage:   "Cron schedule for the retention cleanup",
				Sources: cli.EnvVars("CLEANUP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "metrics-schedule",
				Usage:   "Cron schedule for the metrics aggregation",
				Sources: cli.EnvVars("METRICS_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "notify-fallback-email",
				Usage:   "Address notified for users without preferences (notifications off when empty)",
				Sources: cli.EnvVars("NOTIFY_FALLBACK_EMAIL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("orchestrix-scheduler")

			logger.InfoContext(ctx, "Initializing Orchestrix Scheduler")

			eventBus := cmd.NewEventBus(command.String("event-bus"), "orchestrix-scheduler", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			trk := tracker.NewTracker(persistence.ExecutionRepository(), logger)

			sched := scheduler.NewScheduler(persistence, trk, eventBus, scheduler.Config{
				TimeoutThreshold: command.Duration("timeout-threshold"),
				SweepSchedule:    command.String("sweep-schedule"),
				CleanupSchedule:  command.String("cleanup-schedule"),
				MetricsSchedule:  command.String("metrics-schedule"),
			}, logger)

			notifier := notification.NewNotifier(
				notification.NewStaticPreferences(command.String("notify-fallback-email")),
				cmd.NewMailer(),
				logger,
			)

			err := notifier.Register(eventBus)
			if err != nil {
				return err
			}

			err = eventBus.Subscribe(ctx)
			if err != nil {
				return err
			}

			err = sched.Start(ctx)
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down scheduler...")

			sched.Stop()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
