package tap

import "github.com/srg/softpos/pkg/vendor"

const (
	nfcDisabledMessage = "NFC is disabled. Please enable NFC in your settings"
	cardRetryMessage   = "There was an error reading the card. Please try again using a different card and ensure it is held still and close to the readers"
)

// Customization is a static vendor.Customization.
type Customization struct {
	RetryIfTimeout     bool
	SuccessMessage     string
	HideSuccessMessage bool
}

func (c Customization) ShouldRetryIfTimeout() bool { return c.RetryIfTimeout }

func (c Customization) CardReadSuccessMessage() string { return c.SuccessMessage }

func (c Customization) HideCardReadSuccessMessage() bool { return c.HideSuccessMessage }

// CardReaderMessage tells the cardholder to enable NFC when it is off and to tap
// again for any other read error.
func (c Customization) CardReaderMessage(code int, _ string) string {
	switch code {
	case vendor.CodeNFCPermissionMissing, vendor.CodeNFCDisabled:
		return nfcDisabledMessage
	default:
		return cardRetryMessage
	}
}
