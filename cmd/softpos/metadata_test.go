package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/softpos/internal/testutils"
)

func TestParseMetadata(t *testing.T) {
	// GOAL: Verify --meta pairs nest by dotted key and override the defaults
	//
	// TEST SCENARIO: override order_number, add data.customer.id, flip the bypass flag

	meta, err := parseMetadata([]string{
		"data.order_number=ORD42",
		"data.customer.id=C7",
		"transactionMonitoringBypass=false",
		"note=a=b",
	})
	require.NoError(t, err)

	testutils.NewJSONAsserter(t).WithOptions(testutils.WithIgnoreExtraKeys(false)).AssertValue(meta, `{
		"transactionMonitoringBypass": false,
		"note": "a=b",
		"data": {
			"sales_tax": "0.40",
			"order_number": "ORD42",
			"internalTransactionID": "A1234545",
			"customer": {"id": "C7"}
		}
	}`)
}

func TestParseMetadata_Defaults(t *testing.T) {
	meta, err := parseMetadata(nil)

	require.NoError(t, err)
	assert.Equal(t, defaultMetadata(), meta)
}

func TestParseMetadata_Invalid(t *testing.T) {
	for _, pair := range []string{"novalue", "=x", "data.=x", ".a=x"} {
		_, err := parseMetadata([]string{pair})
		assert.Error(t, err, "pair %q MUST be rejected", pair)
	}
}
