package tap

import (
	"fmt"
	"maps"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/srg/softpos/pkg/vendor"
)

// TransactionRequest is an immutable payment request. Build it with
// NewTransactionRequest; the zero value is invalid.
type TransactionRequest struct {
	amount   decimal.Decimal
	currency string
	metadata map[string]any
}

// NewTransactionRequest validates and copies its inputs. The currency code is
// upper-cased; metadata is deep-copied so later changes by the caller are not seen.
func NewTransactionRequest(amount decimal.Decimal, currency string, metadata map[string]any) (TransactionRequest, error) {
	r := TransactionRequest{
		amount:   amount,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		metadata: cloneMap(metadata),
	}
	if err := r.Validate(); err != nil {
		return TransactionRequest{}, err
	}
	return r, nil
}

// ParseAmount parses a decimal amount string such as "12.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is empty", ErrInvalidRequest)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidRequest, s)
	}
	return d, nil
}

// Validate checks the amount is positive and the currency is a three-letter code.
func (r TransactionRequest) Validate() error {
	if !r.amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero, got %s", ErrInvalidRequest, r.amount.String())
	}
	if !isCurrencyCode(r.currency) {
		return fmt.Errorf("%w: currency code %q must be three letters", ErrInvalidRequest, r.currency)
	}
	return nil
}

func (r TransactionRequest) Amount() decimal.Decimal { return r.amount }

func (r TransactionRequest) Currency() string { return r.currency }

// Metadata returns a copy of the request metadata.
func (r TransactionRequest) Metadata() map[string]any { return cloneMap(r.metadata) }

// PaymentRequest converts r into the vendor request type.
func (r TransactionRequest) PaymentRequest() vendor.PaymentRequest {
	return vendor.PaymentRequest{
		Amount:       r.amount,
		CurrencyCode: r.currency,
		Data:         cloneMap(r.metadata),
	}
}

func (r TransactionRequest) String() string {
	return fmt.Sprintf("%s %s", r.amount.StringFixed(2), r.currency)
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case map[string]string:
		return maps.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
