package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/softpos/pkg/respcode"
	"github.com/srg/softpos/pkg/tap"
)

var (
	payCurrency string
	payMeta     []string
	payJSON     bool
	payTrace    bool
)

var payCmd = &cobra.Command{
	Use:   "pay <amount>",
	Short: "Take a tap-to-pay payment",
	Long: `Runs the full payment flow against the card reader:

  1. check merchant activation (prints the activation code when not activated)
  2. connect to the phone's card reader
  3. start the transaction and wait for the card

Declines are explained using the response code table (see 'softpos codes').

Metadata is sent with the transaction. Keys are dotted paths into nested
objects; --meta replaces defaults with the same key:

  softpos pay 12.50 --meta data.order_number=ORD42 --meta data.sales_tax=1.10`,
	Example: `  softpos pay 12.50
  softpos pay 9.99 --currency EUR --json
  softpos pay 12.50 --scenario testdata/scenarios/declined.yaml --trace`,
	Args: cobra.ExactArgs(1),
	RunE: runPay,
}

func init() {
	payCmd.Flags().StringVar(&payCurrency, "currency", "", "ISO 4217 currency code (default from config)")
	payCmd.Flags().StringArrayVar(&payMeta, "meta", nil, "Transaction metadata as key=value (repeatable, dotted keys nest)")
	payCmd.Flags().BoolVar(&payJSON, "json", false, "Print the outcome as JSON")
	payCmd.Flags().BoolVar(&payTrace, "trace", false, "Print the session event journal after the payment")
}

// paymentOutcome is the --json output.
type paymentOutcome struct {
	Status         string `json:"status"`
	TransactionID  string `json:"transaction_id,omitempty"`
	ActivationCode string `json:"activation_code,omitempty"`
	ResponseCode   string `json:"response_code,omitempty"`
	Message        string `json:"message,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Device         string `json:"device,omitempty"`
}

const (
	statusApproved           = "approved"
	statusDeclined           = "declined"
	statusActivationRequired = "activation_required"
	statusFailed             = "failed"
)

func defaultMetadata() map[string]any {
	return map[string]any{
		"transactionMonitoringBypass": true,
		"data": map[string]any{
			"sales_tax":             "0.40",
			"order_number":          "ORD123455",
			"internalTransactionID": "A1234545",
		},
	}
}

// parseMetadata applies key=value pairs over the default metadata. "true" and
// "false" become booleans; everything else stays a string.
func parseMetadata(pairs []string) (map[string]any, error) {
	meta := defaultMetadata()
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", pair)
		}

		path := strings.Split(key, ".")
		node := meta
		for _, part := range path[:len(path)-1] {
			if part == "" {
				return nil, fmt.Errorf("invalid metadata key %q", key)
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}

		leaf := path[len(path)-1]
		if leaf == "" {
			return nil, fmt.Errorf("invalid metadata key %q", key)
		}
		switch value {
		case "true":
			node[leaf] = true
		case "false":
			node[leaf] = false
		default:
			node[leaf] = value
		}
	}
	return meta, nil
}

func runPay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}

	amount, err := tap.ParseAmount(args[0])
	if err != nil {
		return err
	}
	currency := payCurrency
	if currency == "" {
		currency = cfg.Currency
	}
	meta, err := parseMetadata(payMeta)
	if err != nil {
		return err
	}
	req, err := tap.NewTransactionRequest(amount, currency, meta)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	rt, err := openRuntime(cfg, logger, "Paying "+req.String())
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	outcome := paymentOutcome{Amount: req.Amount().StringFixed(2), Currency: req.Currency()}
	flowErr := rt.pay(cmd, req, &outcome)
	rt.stopProgress()

	if payJSON {
		if err := writeJSON(out, outcome); err != nil {
			return err
		}
	} else {
		printOutcome(out, outcome, flowErr)
	}

	if payTrace {
		if err := rt.writeJournal(out); err != nil {
			return err
		}
	}

	if flowErr != nil {
		logger.WithError(flowErr).Debug("Payment flow failed")
		return ErrReported
	}
	return nil
}

// pay runs the activation check, connection and transaction, recording the
// result in outcome. A device that is not activated is not an error.
func (r *runtime) pay(cmd *cobra.Command, req tap.TransactionRequest, outcome *paymentOutcome) error {
	fail := func(err error) error {
		outcome.Status = statusFailed
		outcome.Message = FormatUserError(err)
		return err
	}

	ctx, cancel := withTimeout(cmd.Context(), r.cfg.ActivationTimeout)
	activated, err := r.session.IsActivated(ctx)
	cancel()
	if err != nil {
		return fail(err)
	}
	if !activated {
		ctx, cancel := withTimeout(cmd.Context(), r.cfg.ActivationTimeout)
		code, err := r.session.GetActivationCode(ctx)
		cancel()
		if err != nil {
			return fail(err)
		}
		outcome.Status = statusActivationRequired
		outcome.ActivationCode = code
		return nil
	}

	ctx, cancel = withTimeout(cmd.Context(), r.cfg.ConnectTimeout)
	device, err := r.session.InitializeDevice(ctx, "")
	cancel()
	if err != nil {
		var terr *tap.Error
		if errors.As(err, &terr) && terr.Kind == tap.KindActivationRequired {
			outcome.Status = statusActivationRequired
			outcome.ActivationCode = terr.Code
			return nil
		}
		return fail(err)
	}
	outcome.Device = device.Name()

	ctx, cancel = withTimeout(cmd.Context(), r.cfg.TransactionTimeout)
	result, err := r.session.StartTransaction(ctx, req)
	cancel()
	if err != nil {
		var terr *tap.Error
		if errors.As(err, &terr) && terr.Kind == tap.KindTransactionFailed && terr.Result != nil {
			outcome.Status = statusDeclined
			outcome.TransactionID = terr.Result.TransactionID
			outcome.ResponseCode = terr.Result.ResponseCode
			outcome.Message = respcode.DescribeResult(*terr.Result)
			return err
		}
		return fail(err)
	}

	outcome.Status = statusApproved
	outcome.TransactionID = result.TransactionID
	outcome.ResponseCode = result.ResponseCode
	outcome.Message = result.ResponseMessage
	return nil
}

func printOutcome(w io.Writer, outcome paymentOutcome, flowErr error) {
	switch outcome.Status {
	case statusActivationRequired:
		fmt.Fprintf(w, "Activation code: %s\n", outcome.ActivationCode)
	case statusApproved:
		fmt.Fprintln(w, color.GreenString("Transaction succeeded: %s", outcome.TransactionID))
	case statusDeclined:
		fmt.Fprintln(w, color.RedString("Transaction failed: %s", outcome.Message))
	default:
		fmt.Fprintln(w, color.RedString("Payment flow failed: %s", FormatUserError(flowErr)))
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
