package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Edgewaretech/edgeware-bluegate/pkg/config"
)

// configureLogger creates the logger for cfg. --log-level, when given,
// overrides the configured level.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		if _, err := logrus.ParseLevel(logLevelStr); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", logLevelStr)
		}
		cfg.LogLevel = logLevelStr
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
