package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/softpos/pkg/tap"
	"github.com/srg/softpos/pkg/vendor"
)

// Config holds application configuration
type Config struct {
	LogLevel logrus.Level `yaml:"log_level"`

	Host     string `yaml:"host" default:"sandbox"`
	Mode     string `yaml:"mode" default:"device"`
	Currency string `yaml:"currency" default:"USD"`

	ActivationTimeout  time.Duration `yaml:"activation_timeout" default:"30s"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"30s"`
	TransactionTimeout time.Duration `yaml:"transaction_timeout" default:"2m"`

	InFlightPolicy string `yaml:"in_flight_policy" default:"reject"`
	EventBuffer    int    `yaml:"event_buffer" default:"64"`

	RetryOnTimeout             bool   `yaml:"retry_on_timeout" default:"true"`
	CardReadSuccessMessage     string `yaml:"card_read_success_message" default:"Done"`
	HideCardReadSuccessMessage bool   `yaml:"hide_card_read_success_message" default:"false"`

	// Scenario is the simulated reader scenario file; empty uses the built-in one.
	Scenario string `yaml:"scenario"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated values and durations.
func (c *Config) Validate() error {
	if _, err := vendor.ParseHost(c.Host); err != nil {
		return err
	}
	if _, err := vendor.ParseTransactionMode(c.Mode); err != nil {
		return err
	}
	if _, err := tap.ParsePolicy(c.InFlightPolicy); err != nil {
		return err
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("invalid currency: %q (must be a three-letter code)", c.Currency)
	}
	if c.ActivationTimeout <= 0 || c.ConnectTimeout <= 0 || c.TransactionTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// Customization builds the vendor customization from the card-read settings.
func (c *Config) Customization() tap.Customization {
	return tap.Customization{
		RetryIfTimeout:     c.RetryOnTimeout,
		SuccessMessage:     c.CardReadSuccessMessage,
		HideSuccessMessage: c.HideCardReadSuccessMessage,
	}
}

// SessionOptions translates the config into session options. Validate first.
func (c *Config) SessionOptions(logger *logrus.Logger) []tap.Option {
	host, _ := vendor.ParseHost(c.Host)
	mode, _ := vendor.ParseTransactionMode(c.Mode)
	policy, _ := tap.ParsePolicy(c.InFlightPolicy)

	return []tap.Option{
		tap.WithLogger(logger),
		tap.WithHost(host),
		tap.WithMode(mode),
		tap.WithPolicy(policy),
		tap.WithEventBuffer(c.EventBuffer),
		tap.WithCustomization(c.Customization()),
	}
}
