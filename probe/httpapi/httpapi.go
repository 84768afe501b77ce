// Package httpapi probes a usage HTTP endpoint that reports per-window
// utilisation fractions, such as the Claude OAuth usage API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/probe"
	"github.com/avishj/quotamon/quota"
)

const (
	windowFiveHour = "five_hour"
	windowSevenDay = "seven_day"
)

// NewFactory returns a probe.Factory for usage HTTP endpoints. The source's
// window selects which utilisation figure becomes the snapshot; it defaults
// to the five hour window.
func NewFactory() probe.Factory {
	return func(cfg config.SourceConfig, deps probe.Dependencies) (probe.Probe, error) {
		if cfg.URL == "" {
			return nil, fmt.Errorf("source %s: url must not be empty", cfg.ID)
		}
		window := cfg.Window
		if window == "" {
			window = windowFiveHour
		}
		if window != windowFiveHour && window != windowSevenDay {
			return nil, fmt.Errorf("source %s: unknown usage window %q", cfg.ID, window)
		}
		client := deps.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		return &httpProbe{
			source:    cfg.ID,
			url:       cfg.URL,
			token:     cfg.Token,
			tokenFile: cfg.TokenFile,
			window:    window,
			timeout:   cfg.Timeout.Duration,
			client:    client,
			logger:    deps.Logger.With().Str("component", "probe").Str("driver", config.DriverHTTP).Str("source", cfg.ID).Logger(),
		}, nil
	}
}

type httpProbe struct {
	source    string
	url       string
	token     string
	tokenFile string
	window    string
	timeout   time.Duration
	client    *http.Client
	logger    zerolog.Logger
}

// usageResponse mirrors the wire shape of the usage endpoint. Utilisation is
// a fraction of the window that has been consumed.
type usageResponse struct {
	FiveHour usageWindow `json:"five_hour"`
	SevenDay usageWindow `json:"seven_day"`
}

type usageWindow struct {
	Utilization float64   `json:"utilization"`
	ResetsAt    time.Time `json:"resets_at"`
}

// Available reports whether credentials for the endpoint can be resolved.
func (p *httpProbe) Available(ctx context.Context) bool {
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	_, err := p.resolveToken()
	return err == nil
}

func (p *httpProbe) Collect(ctx context.Context) (quota.Snapshot, error) {
	token, err := p.resolveToken()
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("%w: %v", probe.ErrSourceMissing, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("%w: build request: %v", probe.ErrUnavailable, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("%w: %v", probe.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return quota.Snapshot{}, fmt.Errorf("%w: unexpected status %d", probe.ErrUnavailable, resp.StatusCode)
	}

	var usage usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return quota.Snapshot{}, fmt.Errorf("%w: decode usage payload: %v", probe.ErrParseFailed, err)
	}

	window := usage.FiveHour
	if p.window == windowSevenDay {
		window = usage.SevenDay
	}
	percent := remainingPercent(window.Utilization)
	p.logger.Debug().Str("window", p.window).Int("remaining", percent).Time("resets_at", window.ResetsAt).Msg("usage endpoint probed")
	return quota.NewMeasured(p.source, quota.UnitPercent, percent, time.Now()), nil
}

// remainingPercent converts a consumed fraction into whole percent
// remaining, clamped to [0, 100]. Over-quota fractions read as depleted.
func remainingPercent(utilization float64) int {
	remaining := int(math.Round(100 - utilization*100))
	if remaining < 0 {
		return 0
	}
	if remaining > 100 {
		return 100
	}
	return remaining
}

func (p *httpProbe) resolveToken() (string, error) {
	if p.token != "" {
		return p.token, nil
	}
	if p.tokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(p.tokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", p.tokenFile)
	}
	return token, nil
}
