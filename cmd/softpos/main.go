package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "softpos",
	Short: "Tap-to-pay card reader CLI",
	Long: `Tap-to-pay command-line tool driving a card reader SDK session:

- Check merchant activation and print the activation code
- Connect to the phone's card reader
- Run a payment and explain declines using the response code table

The bundled reader is simulated; its behaviour is set with --scenario.`,
	Version: formatVersion(version),
}

var (
	rootLogLevel string
	rootVerbose  bool
	rootConfig   string
	rootScenario string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		if !errors.Is(err, ErrReported) {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	// main() prints errors itself
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("softpos %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(codesCmd)

	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&rootVerbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootConfig, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&rootScenario, "scenario", "", "Simulated reader scenario file (overrides the config)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
