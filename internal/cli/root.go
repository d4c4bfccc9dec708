// Package cli provides the command-line interface for the restock monitor.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"restock-monitor/internal/config"
	"restock-monitor/internal/logging"
	"restock-monitor/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-05-01"
)

// skipConfig marks commands that run without a loaded configuration.
const skipConfig = "skip-config"

// App holds the application dependencies.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "restock-monitor",
		Short: "Retail inventory restock monitor",
		Long: `Restock Monitor samples the stock of tracked catalog items twice a day,
keeps every observation in SQLite and alerts when the quantity goes up.

An operator bot answers live stock and restock statistics on demand.

Use 'restock-monitor serve' to run the scheduler, bot and health server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.ConfigDir, _ = cmd.Flags().GetString("config")
			if app.ConfigDir == "" {
				app.ConfigDir = config.DefaultConfigDir()
			}

			if cmd.Annotations[skipConfig] == "" {
				cfg, err := config.Load(app.ConfigDir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/restock-monitor)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addMonitorCommands(rootCmd, app)
	addQueryCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Restock Monitor v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration files",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, err := config.Load(app.ConfigDir); err != nil {
				output.Error("✗ Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Credentials.Telegram.BotToken = utils.MaskCredential(c.Credentials.Telegram.BotToken)
	c.Notifications.Email.Password = utils.MaskCredential(c.Notifications.Email.Password)
	c.Notifications.AMQP.URL = utils.MaskCredential(c.Notifications.AMQP.URL)
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Tracked Items")
	for _, item := range cfg.Items {
		output.Printf("  %-16s %s (product %s, store %s)\n", item.ID, item.Label(), item.RemoteProductID, item.RemoteStoreID)
	}
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Times:           %v\n", cfg.Schedule.Times)
	output.Printf("  Timezone:        %s\n", cfg.Schedule.Timezone)
	output.Println()

	output.Bold("Fetcher")
	output.Printf("  Base URL:        %s\n", cfg.Fetcher.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.Fetcher.Timeout)
	output.Printf("  Concurrency:     %d\n", cfg.Fetcher.Concurrency)
	output.Printf("  Breaker:         %d failures, %s open\n", cfg.Fetcher.FailureThreshold, cfg.Fetcher.OpenTimeout)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Path:            %s\n", cfg.Storage.Path)
	output.Printf("  Day boundary:    %s\n", cfg.Storage.Timezone)
	output.Println()

	output.Bold("Operator Bot")
	output.Printf("  Enabled:         %v\n", cfg.Bot.Enabled)
	output.Printf("  Admin chat:      %d\n", cfg.Bot.AdminChatID)
	output.Printf("  Bot token:       %s\n", utils.MaskCredential(cfg.Credentials.Telegram.BotToken))
	output.Printf("  Audit log:       %s\n", cfg.Bot.AuditPath)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Email:           %v\n", cfg.Notifications.Email.Enabled)
	output.Printf("  AMQP:            %v\n", cfg.Notifications.AMQP.Enabled)
	output.Println()

	output.Bold("HTTP Server")
	output.Printf("  Enabled:         %v\n", cfg.Server.Enabled)
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
}
