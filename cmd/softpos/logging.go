package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/softpos/pkg/config"
)

// configureLogger creates a logger with the level taken from --log-level, then
// --verbose, then the config file. Without any of them the logger is silent.
func configureLogger(cmd *cobra.Command, verboseFlagName string, cfg *config.Config) (*logrus.Logger, error) {
	// Default to panic level (essentially silent for normal operations)
	logLevel := logrus.PanicLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool(verboseFlagName)
	configPath, _ := cmd.Flags().GetString("config")
	switch {
	case logLevelStr != "":
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	case verbose:
		logLevel = logrus.DebugLevel
	case cfg != nil && configPath != "":
		logLevel = cfg.LogLevel
	}

	logCfg := config.Config{LogLevel: logLevel}
	logger := logCfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
