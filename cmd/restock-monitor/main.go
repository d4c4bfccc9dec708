package main

import (
	"os"

	_ "time/tzdata"

	"restock-monitor/internal/cli"
	"restock-monitor/internal/logging"
)

func main() {
	cfg := logging.DefaultLogConfig()
	cfg.File = false
	logger := logging.NewLoggerWithConfig(cfg)

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
