package config

import (
	"errors"
	"fmt"
)

// Driver identifiers understood by the built-in probe factories.
const (
	DriverCLI       = "cli"
	DriverHTTP      = "http"
	DriverGuestPass = "guestpass"
)

var knownDrivers = map[string]struct{}{
	DriverCLI:       {},
	DriverHTTP:      {},
	DriverGuestPass: {},
}

var knownWindows = map[string]struct{}{
	"five_hour": {},
	"seven_day": {},
}

var knownSeverities = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks structural consistency of the configuration. It is called
// by Load after defaults have been applied but can also be used on manually
// assembled configurations.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config must not be nil")
	}
	if len(c.Sources) == 0 {
		return errors.New("at least one source must be configured")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if src.ID == "" {
			return errors.New("source id must not be empty")
		}
		if _, ok := seen[src.ID]; ok {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
		if err := validateSource(src); err != nil {
			return fmt.Errorf("source %s: %w", src.ID, err)
		}
	}
	alertIDs := make(map[string]struct{}, len(c.Alerts))
	for _, alert := range c.Alerts {
		if alert.ID == "" {
			return errors.New("alert id must not be empty")
		}
		if _, ok := alertIDs[alert.ID]; ok {
			return fmt.Errorf("duplicate alert id %q", alert.ID)
		}
		alertIDs[alert.ID] = struct{}{}
		if alert.Expression == "" {
			return fmt.Errorf("alert %s: expression must not be empty", alert.ID)
		}
		if _, ok := knownSeverities[alert.Severity]; !ok {
			return fmt.Errorf("alert %s: unknown severity %q", alert.ID, alert.Severity)
		}
	}
	if c.Logging.Loki.Enabled && c.Logging.Loki.URL == "" {
		return errors.New("loki logging enabled but url missing")
	}
	return nil
}

func validateSource(src SourceConfig) error {
	if _, ok := knownDrivers[src.Driver]; !ok {
		return fmt.Errorf("unknown driver %q", src.Driver)
	}
	switch src.Driver {
	case DriverCLI:
		if src.Command == "" {
			return errors.New("cli driver requires a command")
		}
		if src.Label == "" {
			return errors.New("cli driver requires a window label")
		}
	case DriverHTTP:
		if src.URL == "" {
			return errors.New("http driver requires a url")
		}
		if src.Window != "" {
			if _, ok := knownWindows[src.Window]; !ok {
				return fmt.Errorf("unknown usage window %q", src.Window)
			}
		}
		if src.Token != "" && src.TokenFile != "" {
			return errors.New("token and token_file are mutually exclusive")
		}
	case DriverGuestPass:
		if src.Path == "" {
			return errors.New("guestpass driver requires a state file path")
		}
	}
	return nil
}
