// Package guestpass probes the local guest pass state file maintained by the
// sharing feature. The file records how many invitations are left and where
// to send a recipient.
package guestpass

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/probe"
	"github.com/avishj/quotamon/quota"
)

// NewFactory returns a probe.Factory reading guest pass state from disk.
func NewFactory() probe.Factory {
	return func(cfg config.SourceConfig, deps probe.Dependencies) (probe.Probe, error) {
		if cfg.Path == "" {
			return nil, fmt.Errorf("source %s: state file path must not be empty", cfg.ID)
		}
		return &passProbe{
			source:   cfg.ID,
			path:     cfg.Path,
			shareURL: cfg.ShareURL,
			logger:   deps.Logger.With().Str("component", "probe").Str("driver", config.DriverGuestPass).Str("source", cfg.ID).Logger(),
		}, nil
	}
}

type passProbe struct {
	source   string
	path     string
	shareURL string
	logger   zerolog.Logger
}

// passState is the on-disk shape of the guest pass file.
type passState struct {
	Remaining *int   `json:"remaining"`
	InviteURL string `json:"invite_url"`
}

// Available reports whether the state file exists.
func (p *passProbe) Available(ctx context.Context) bool {
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	_, err := os.Stat(p.path)
	return err == nil
}

func (p *passProbe) Collect(ctx context.Context) (quota.Snapshot, error) {
	if ctx != nil && ctx.Err() != nil {
		return quota.Snapshot{}, ctx.Err()
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return quota.Snapshot{}, fmt.Errorf("%w: %s", probe.ErrSourceMissing, p.path)
		}
		return quota.Snapshot{}, fmt.Errorf("%w: read %s: %v", probe.ErrUnavailable, p.path, err)
	}

	var state passState
	if err := json.Unmarshal(data, &state); err != nil {
		return quota.Snapshot{}, fmt.Errorf("%w: decode %s: %v", probe.ErrParseFailed, p.path, err)
	}

	shareURL := state.InviteURL
	if shareURL == "" {
		shareURL = p.shareURL
	}

	now := time.Now()
	if state.Remaining == nil {
		// A pass file without a count means the feature is active but the
		// quota is untracked; report assume-available.
		return quota.NewUnknown(p.source, quota.UnitPasses, now).WithShareURL(shareURL), nil
	}
	return quota.NewMeasured(p.source, quota.UnitPasses, *state.Remaining, now).WithShareURL(shareURL), nil
}
