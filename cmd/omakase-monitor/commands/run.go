package commands

import (
	"context"
	"log/slog"
	"time"

	"omakase-monitor/lib/jitter"
	"omakase-monitor/lib/scrapers/omakase"
	"omakase-monitor/lib/serviceutil"
	"omakase-monitor/services/monitor"
	"omakase-monitor/services/notifier"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs monitoring cycles on a randomized interval until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := mustLoadConfig()

		service := buildService(ctx, config)

		if config.Monitor.RunImmediately {
			runCycle(ctx, service)
		}

		for {
			wait := jitter.Duration(
				time.Duration(config.Monitor.IntervalMin)*time.Minute,
				time.Duration(config.Monitor.IntervalMax)*time.Minute,
			)
			wait += jitter.Duration(0, time.Duration(config.Monitor.RandomDelayMax)*time.Second)
			slog.InfoContext(ctx, "next cycle scheduled", "wait", wait.Round(time.Second))

			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "shutting down")
				return
			case <-time.After(wait):
				runCycle(ctx, service)
			}
		}
	},
}

func runCycle(ctx context.Context, service *monitor.Service) {
	err := service.RunCycle(ctx)
	if err != nil {
		// the scheduler keeps going, the next cycle retries from login
		slog.ErrorContext(ctx, "monitoring cycle failed", "err", err)
	}
}

func buildService(ctx context.Context, config Config) *monitor.Service {
	client, err := omakase.NewClient(ctx, omakase.ClientOptions{
		CookiesFile: config.CookiesFile,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize omakase client", err)
	}

	return monitor.NewService(
		client,
		notifier.NewEmailNotifier(config.SmtpSettings()),
		monitor.Options{
			Credentials: monitor.Credentials{
				Email:    config.Omakase.Email,
				Password: config.Omakase.Password,
			},
			Restaurants: config.Targets(),
		},
	)
}
