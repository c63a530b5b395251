package respcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/softpos/pkg/vendor"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		message string
		want    string
	}{
		{
			name:    "known code ignores vendor message",
			code:    "05",
			message: "Do not honor",
			want:    "Do not honor. The issuer declined the card; ask for another payment method",
		},
		{
			name:    "unknown code falls back to code and message",
			code:    "Z9",
			message: "Gateway rejected",
			want:    "Z9: Gateway rejected",
		},
		{
			name:    "no code returns message",
			message: "Card removed too early",
			want:    "Card removed too early",
		},
		{
			name: "nothing known",
			want: "unknown error",
		},
		{
			name: "timeout code",
			code: CodeTimeout,
			want: "Card read timed out. Ask the customer to tap again and hold the card still",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.code, tt.message))
		})
	}
}

func TestDescribeResult(t *testing.T) {
	t.Run("uses code when present", func(t *testing.T) {
		got := DescribeResult(vendor.PaymentResult{ResponseCode: "51", ResponseMessage: "NSF"})
		assert.Equal(t, "Insufficient funds. Ask for another payment method", got)
	})

	t.Run("falls back to underlying error", func(t *testing.T) {
		got := DescribeResult(vendor.PaymentResult{Err: errors.New("reader disconnected")})
		assert.Equal(t, "reader disconnected", got)
	})
}

func TestEntries_DocumentedOrder(t *testing.T) {
	entries := Entries()

	require.NotEmpty(t, entries)
	assert.Equal(t, "00", entries[0].Code, "table MUST start with the approval code")
	assert.Equal(t, CodeTimeout, entries[len(entries)-1].Code, "timeout MUST be listed last")

	for _, e := range entries {
		msg, ok := Lookup(e.Code)
		assert.True(t, ok)
		assert.Equal(t, msg, e.Message)
	}
}
