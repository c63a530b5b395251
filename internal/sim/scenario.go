package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Scenario describes how the simulated reader answers each vendor call.
type Scenario struct {
	// Activated false makes Initialize report OnActivationRequired with ActivationCode.
	Activated      bool   `yaml:"activated" default:"true"`
	ActivationCode string `yaml:"activation_code" default:"ABC123"`

	// InitError, when set, makes Initialize report OnInitFailed.
	InitError string `yaml:"init_error"`

	// Devices lists the reader ids reported by OnInitialized, in order.
	Devices []string `yaml:"devices"`

	// ConnectError, when set, makes Connect report OnConnectionFailed.
	ConnectError string `yaml:"connect_error"`

	CallbackDelay time.Duration `yaml:"callback_delay" default:"200ms"`

	// TimeoutsBeforeSuccess is the number of card reads that time out before one succeeds.
	TimeoutsBeforeSuccess int `yaml:"timeouts_before_success"`

	Transaction TransactionOutcome `yaml:"transaction"`
}

// TransactionOutcome is the result reported for every transaction.
type TransactionOutcome struct {
	ResponseCode    string `yaml:"response_code" default:"00"`
	ResponseMessage string `yaml:"response_message" default:"Approved"`
	// Error, when set, fails the transaction with no response code.
	Error string `yaml:"error"`
	// TransactionID is generated when empty.
	TransactionID string `yaml:"transaction_id"`
}

// Approved reports whether the outcome completes the transaction.
func (o TransactionOutcome) Approved() bool {
	return o.Error == "" && (o.ResponseCode == "00" || o.ResponseCode == "")
}

// DefaultScenario is an activated reader D1 that approves every transaction.
func DefaultScenario() Scenario {
	var s Scenario
	defaults.SetDefaults(&s)
	s.Devices = []string{"D1"}
	return s
}

// ParseScenario decodes YAML over DefaultScenario. An explicit empty device list
// is kept so a scenario can describe a reader-less phone.
func ParseScenario(data []byte) (Scenario, error) {
	s := DefaultScenario()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario %q: %w", path, err)
	}
	return ParseScenario(data)
}

func (s Scenario) Validate() error {
	if s.CallbackDelay < 0 {
		return fmt.Errorf("callback_delay must not be negative, got %s", s.CallbackDelay)
	}
	if s.TimeoutsBeforeSuccess < 0 {
		return fmt.Errorf("timeouts_before_success must not be negative, got %d", s.TimeoutsBeforeSuccess)
	}
	if !s.Activated && s.ActivationCode == "" {
		return errors.New("activation_code is required when activated is false")
	}
	seen := make(map[string]struct{}, len(s.Devices))
	for _, id := range s.Devices {
		if id == "" {
			return errors.New("device ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate device id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
