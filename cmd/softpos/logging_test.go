package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/softpos/pkg/config"
)

func newLoggingCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	fileCfg := config.DefaultConfig()
	fileCfg.LogLevel = logrus.WarnLevel

	tests := []struct {
		name  string
		args  []string
		cfg   *config.Config
		level logrus.Level
	}{
		{name: "silent by default", level: logrus.PanicLevel},
		{name: "defaults without a config file stay silent", cfg: config.DefaultConfig(), level: logrus.PanicLevel},
		{name: "config file level", args: []string{"--config", "softpos.yaml"}, cfg: fileCfg, level: logrus.WarnLevel},
		{name: "verbose beats config", args: []string{"--verbose", "--config", "softpos.yaml"}, cfg: fileCfg, level: logrus.DebugLevel},
		{name: "log level beats verbose", args: []string{"--verbose", "--log-level", "error"}, level: logrus.ErrorLevel},
		{name: "info", args: []string{"--log-level", "info"}, level: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := configureLogger(newLoggingCmd(t, tt.args...), "verbose", tt.cfg)

			require.NoError(t, err)
			assert.Equal(t, tt.level, logger.GetLevel())
		})
	}
}

func TestConfigureLogger_InvalidLevel(t *testing.T) {
	_, err := configureLogger(newLoggingCmd(t, "--log-level", "trace"), "verbose", nil)

	assert.ErrorContains(t, err, "invalid log level")
}
