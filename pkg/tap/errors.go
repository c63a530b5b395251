package tap

import (
	"errors"
	"fmt"

	"github.com/srg/softpos/pkg/vendor"
)

// Kind is one of the closed set of failures the session reports.
type Kind string

const (
	KindInitializationFailed Kind = "initialization_failed"
	KindConnectionFailed     Kind = "connection_failed"
	KindTransactionFailed    Kind = "transaction_failed"
	KindNoAvailableDevice    Kind = "no_available_device"
	KindActivationRequired   Kind = "activation_required"
)

// Error is a vendor-reported failure converted at the adapter boundary.
// Only the payload fields relevant to Kind are set.
type Error struct {
	Kind   Kind
	Cause  error
	Device vendor.DeviceHandle   // KindConnectionFailed
	Result *vendor.PaymentResult // KindTransactionFailed
	Code   string                // KindActivationRequired
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case KindConnectionFailed:
		if e.Device != nil && e.Cause != nil {
			return fmt.Sprintf("%s: device %q: %v", e.Kind, e.Device.Name(), e.Cause)
		}
	case KindTransactionFailed:
		if e.Result != nil {
			if e.Result.ResponseCode != "" {
				return fmt.Sprintf("%s: %s %s", e.Kind, e.Result.ResponseCode, e.Result.ResponseMessage)
			}
			if e.Result.Err != nil {
				return fmt.Sprintf("%s: %v", e.Kind, e.Result.Err)
			}
		}
	case KindActivationRequired:
		if e.Code != "" {
			return fmt.Sprintf("%s: code %s", e.Kind, e.Code)
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap returns the vendor error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil && e.Result != nil {
		return e.Result.Err
	}
	return e.Cause
}

// Is compares by Kind so the sentinels below match any payload.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is. Use errors.As to get the payload.
var (
	ErrInitializationFailed = &Error{Kind: KindInitializationFailed}
	ErrConnectionFailed     = &Error{Kind: KindConnectionFailed}
	ErrTransactionFailed    = &Error{Kind: KindTransactionFailed}
	ErrNoAvailableDevice    = &Error{Kind: KindNoAvailableDevice}
	ErrActivationRequired   = &Error{Kind: KindActivationRequired}
)

func InitializationFailed(cause error) *Error {
	return &Error{Kind: KindInitializationFailed, Cause: cause}
}

func ConnectionFailed(device vendor.DeviceHandle, cause error) *Error {
	return &Error{Kind: KindConnectionFailed, Device: device, Cause: cause}
}

// TransactionFailed keeps the whole result so callers can map the response code.
func TransactionFailed(result vendor.PaymentResult) *Error {
	return &Error{Kind: KindTransactionFailed, Result: &result}
}

func NoAvailableDevice() *Error {
	return &Error{Kind: KindNoAvailableDevice}
}

// ActivationRequired carries the code to relay to the backend for merchant activation.
func ActivationRequired(code string) *Error {
	return &Error{Kind: KindActivationRequired, Code: code}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind, true
	}
	return "", false
}

// Session control errors. These are not vendor outcomes.
var (
	// ErrNotConnected means StartTransaction ran before InitializeDevice succeeded.
	ErrNotConnected = errors.New("no connected device")

	// ErrOperationInFlight rejects a second call while one of the same family is pending.
	ErrOperationInFlight = errors.New("operation already in flight")

	// ErrSuperseded is returned to a waiter that a newer call of the same family replaced.
	ErrSuperseded = errors.New("superseded by a newer request")

	// ErrClosed is returned to waiters still pending when the session is deinitialized.
	ErrClosed = errors.New("session deinitialized")

	// ErrInvalidRequest wraps transaction request validation failures.
	ErrInvalidRequest = errors.New("invalid transaction request")
)
