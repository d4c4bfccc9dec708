package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"restock-monitor/internal/bot"
	"restock-monitor/internal/monitor"
	"restock-monitor/internal/server"
	"restock-monitor/pkg/utils"
)

func addMonitorCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newCheckCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, operator bot and health server",
		Long: `Run the monitoring cycle at the configured times of day until interrupted.

The operator bot and the HTTP health server start alongside the scheduler
when they are enabled in config.toml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			logger := app.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Bot.Enabled && cfg.Credentials.Telegram.BotToken == "" {
				return fmt.Errorf("bot is enabled but no Telegram bot token is configured")
			}

			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.openAudit(cfg.Bot.AuditPath); err != nil {
				return err
			}

			sched, err := rt.newScheduler(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().
				Int("items", len(cfg.Items)).
				Strs("times", cfg.Schedule.Times).
				Str("timezone", cfg.Schedule.Timezone).
				Strs("channels", rt.notifier.Channels()).
				Msg("Restock monitor starting")

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return sched.Run(ctx) })

			if cfg.Bot.Enabled {
				b := bot.New(rt.telegram, rt.query, cfg.Bot.AdminChatID, logger,
					bot.WithAudit(rt.audit),
					bot.WithPollTimeout(cfg.Bot.PollTimeout))
				g.Go(func() error { return b.Run(ctx) })
			}

			if cfg.Server.Enabled {
				srv := server.New(sched, logger,
					server.WithPinger(rt.store),
					server.WithBreakers(rt.breakers),
					server.WithAudit(rt.audit))
				g.Go(func() error { return srv.Serve(ctx, cfg.Server.Addr) })
			}

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("Restock monitor stopped")
				return nil
			}
			return err
		},
	}
}

func newCheckCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one monitoring cycle now",
		Long:  "Fetch, record and classify every tracked item once, sending alerts for restocks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			rt, err := newRuntime(app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			sched, err := rt.newScheduler(app.Config, app.Logger)
			if err != nil {
				return err
			}

			report := sched.Trigger(cmd.Context())
			if output.IsJSON() {
				return output.JSON(report)
			}
			printReport(output, report)
			return nil
		},
	}
}

func printReport(output *Output, report monitor.Report) {
	output.Bold("Cycle %s", report.CycleID)
	output.Dim("%s, %s", report.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	output.Println()

	table := NewTable(output, "ITEM", "OUTCOME", "QUANTITY", "PREVIOUS", "CHANGE")
	for _, it := range report.Items {
		quantity, previous, change := "-", "-", ""
		if it.Outcome == monitor.OutcomeRecorded || it.Outcome == monitor.OutcomeRestock {
			quantity = utils.FormatQuantity(it.Quantity)
		}
		if it.Previous != nil {
			previous = utils.FormatQuantity(*it.Previous)
			if quantity != "-" {
				change = utils.FormatDelta(it.Quantity - *it.Previous)
			}
		}
		if it.Error != "" {
			change = it.Error
		}
		table.AddRow(it.ItemID, output.Outcome(it.Outcome), quantity, previous, change)
	}
	table.Render()

	output.Println()
	failed := report.Count(monitor.OutcomeFetchFailed) + report.Count(monitor.OutcomeStorageFailed)
	summary := fmt.Sprintf("%d recorded, %d restocks, %d failed",
		report.Recorded(), report.Count(monitor.OutcomeRestock), failed)
	if failed > 0 {
		output.Warning("%s", summary)
	} else {
		output.Success("%s", summary)
	}
}
