package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/softpos/pkg/respcode"
	"github.com/srg/softpos/pkg/tap"
)

// Command-level errors
var (
	// ErrReported marks a failure the command already printed; main only sets the exit code.
	ErrReported = errors.New("error already reported")
)

// FormatUserError turns session errors into a line a merchant can act on.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var terr *tap.Error
	if errors.As(err, &terr) {
		switch terr.Kind {
		case tap.KindTransactionFailed:
			if terr.Result != nil {
				return respcode.DescribeResult(*terr.Result)
			}
		case tap.KindNoAvailableDevice:
			return "no card reader available; check that NFC is enabled on this device"
		case tap.KindActivationRequired:
			return fmt.Sprintf("device is not activated; relay activation code %s to your provider", terr.Code)
		case tap.KindConnectionFailed:
			if terr.Device != nil {
				return fmt.Sprintf("could not connect to card reader %s: %v", terr.Device.Name(), terr.Cause)
			}
			return fmt.Sprintf("could not connect to card reader: %v", terr.Cause)
		case tap.KindInitializationFailed:
			return fmt.Sprintf("payment SDK failed to initialize: %v", terr.Cause)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the card reader"
	case errors.Is(err, tap.ErrOperationInFlight):
		return "another card reader operation is already in progress"
	case errors.Is(err, tap.ErrNotConnected):
		return "no card reader connected"
	}
	return err.Error()
}
