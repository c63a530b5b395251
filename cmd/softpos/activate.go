package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var activateJSON bool

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Check merchant activation",
	Long: `Initializes the card reader SDK and reports whether this device is activated
for the merchant. When it is not, the activation code to relay to the payment
provider is printed.`,
	Args: cobra.NoArgs,
	RunE: runActivate,
}

func init() {
	activateCmd.Flags().BoolVar(&activateJSON, "json", false, "Print the result as JSON")
}

type activationStatus struct {
	Activated      bool   `json:"activated"`
	ActivationCode string `json:"activation_code,omitempty"`
}

func runActivate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	rt, err := openRuntime(cfg, logger, "Checking activation")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := withTimeout(cmd.Context(), cfg.ActivationTimeout)
	defer cancel()

	var status activationStatus
	status.Activated, err = rt.session.IsActivated(ctx)
	if err != nil {
		return err
	}
	if !status.Activated {
		if status.ActivationCode, err = rt.session.GetActivationCode(ctx); err != nil {
			return err
		}
	}
	rt.stopProgress()

	out := cmd.OutOrStdout()
	if activateJSON {
		return writeJSON(out, status)
	}
	if status.Activated {
		fmt.Fprintln(out, "Device is activated")
	} else {
		fmt.Fprintf(out, "Activation code: %s\n", status.ActivationCode)
	}
	return nil
}
