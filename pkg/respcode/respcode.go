// Package respcode maps payment response codes to text a merchant can act on.
package respcode

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/softpos/pkg/vendor"
)

// CodeTimeout is reported when the card was not presented in time.
const CodeTimeout = "TO"

// table keeps the codes in the order they are documented and listed.
var table = func() *orderedmap.OrderedMap[string, string] {
	m := orderedmap.New[string, string]()
	m.Set("00", "Approved")
	m.Set("01", "Refer to card issuer. Ask the customer to contact their bank")
	m.Set("03", "Invalid merchant. Check the merchant account configuration")
	m.Set("04", "Pick up card. Do not return the card to the customer")
	m.Set("05", "Do not honor. The issuer declined the card; ask for another payment method")
	m.Set("12", "Invalid transaction. The card does not support this type of payment")
	m.Set("13", "Invalid amount. Check the amount and try again")
	m.Set("14", "Invalid card number. Ask the customer to tap again or use another card")
	m.Set("41", "Lost card. Do not return the card to the customer")
	m.Set("43", "Stolen card. Do not return the card to the customer")
	m.Set("51", "Insufficient funds. Ask for another payment method")
	m.Set("54", "Expired card. Ask for another payment method")
	m.Set("55", "Incorrect PIN. Ask the customer to try again")
	m.Set("57", "Transaction not permitted to cardholder")
	m.Set("61", "Exceeds withdrawal amount limit")
	m.Set("65", "Exceeds withdrawal frequency limit")
	m.Set("91", "Card issuer unavailable. Try again shortly")
	m.Set("96", "System malfunction. Try again shortly")
	m.Set(CodeTimeout, "Card read timed out. Ask the customer to tap again and hold the card still")
	return m
}()

// Entry is one row of the table.
type Entry struct {
	Code    string
	Message string
}

// Lookup returns the explanation for code.
func Lookup(code string) (string, bool) {
	return table.Get(code)
}

// Describe explains code. Unknown codes render as "<code>: <message>"; without a
// code the message is returned as is.
func Describe(code, message string) string {
	if text, ok := table.Get(code); ok {
		return text
	}
	if code == "" {
		if message == "" {
			return "unknown error"
		}
		return message
	}
	return fmt.Sprintf("%s: %s", code, message)
}

// DescribeResult explains a failed payment, falling back to the underlying error
// when the SDK reported neither a code nor a message.
func DescribeResult(r vendor.PaymentResult) string {
	if r.ResponseCode == "" && r.ResponseMessage == "" && r.Err != nil {
		return r.Err.Error()
	}
	return Describe(r.ResponseCode, r.ResponseMessage)
}

// Entries lists the table in documented order.
func Entries() []Entry {
	out := make([]Entry, 0, table.Len())
	for p := table.Oldest(); p != nil; p = p.Next() {
		out = append(out, Entry{Code: p.Key, Message: p.Value})
	}
	return out
}
