package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config is the top level configuration of the monitoring daemon.
type Config struct {
	PollInterval Duration        `yaml:"poll_interval,omitempty"`
	Workers      int             `yaml:"workers,omitempty"`
	Sources      []SourceConfig  `yaml:"sources"`
	Alerts       []AlertConfig   `yaml:"alerts,omitempty"`
	Logging      LoggingConfig   `yaml:"logging,omitempty"`
	Telemetry    TelemetryConfig `yaml:"telemetry,omitempty"`
	Server       ServerConfig    `yaml:"server,omitempty"`
	Usage        UsageConfig     `yaml:"usage,omitempty"`
}

// SourceConfig describes one monitored external provider. The driver decides
// which of the remaining fields apply.
type SourceConfig struct {
	ID       string   `yaml:"id"`
	Driver   string   `yaml:"driver"`
	Interval Duration `yaml:"interval,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`

	// cli driver
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Label   string   `yaml:"label,omitempty"`

	// http driver
	URL       string `yaml:"url,omitempty"`
	Token     string `yaml:"token,omitempty"`
	TokenFile string `yaml:"token_file,omitempty"`
	Window    string `yaml:"window,omitempty"`

	// guestpass driver
	Path     string `yaml:"path,omitempty"`
	ShareURL string `yaml:"share_url,omitempty"`
}

// AlertConfig defines a rule evaluated against refreshed source state.
type AlertConfig struct {
	ID         string `yaml:"id"`
	Expression string `yaml:"expr"`
	Severity   string `yaml:"severity,omitempty"`
}

// LoggingConfig controls log output format, level and optional Loki shipping.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty"`
}

// LokiConfig configures the optional Loki log shipping target.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// TelemetryConfig toggles Prometheus metric collection.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// ServerConfig configures the HTTP status surface.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// UsageConfig points at locally recorded usage logs and their pricing table.
type UsageConfig struct {
	LogDir  string                   `yaml:"log_dir,omitempty"`
	Pricing map[string]PricingConfig `yaml:"pricing,omitempty"`
}

// PricingConfig carries per-million-token prices as decimal strings so no
// precision is lost before cost accounting.
type PricingConfig struct {
	InputPerMTok      string `yaml:"input_per_mtok,omitempty"`
	OutputPerMTok     string `yaml:"output_per_mtok,omitempty"`
	CacheReadPerMTok  string `yaml:"cache_read_per_mtok,omitempty"`
	CacheWritePerMTok string `yaml:"cache_write_per_mtok,omitempty"`
}

const (
	defaultPollInterval   = 30 * time.Second
	defaultSourceInterval = time.Minute
	defaultSourceTimeout  = 10 * time.Second
	defaultListen         = ":18080"
)

// Load reads, decodes and validates the configuration at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval.Duration <= 0 {
		c.PollInterval.Duration = defaultPollInterval
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	for i := range c.Sources {
		src := &c.Sources[i]
		if src.Interval.Duration <= 0 {
			src.Interval.Duration = defaultSourceInterval
		}
		if src.Timeout.Duration <= 0 {
			src.Timeout.Duration = defaultSourceTimeout
		}
	}
	for i := range c.Alerts {
		if c.Alerts[i].Severity == "" {
			c.Alerts[i].Severity = "warn"
		}
	}
}
