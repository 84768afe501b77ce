// Package cli probes usage quotas by invoking an external command line tool
// and parsing its textual quota report.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/probe"
	"github.com/avishj/quotamon/quota"
)

// NewFactory returns a probe.Factory that adapts a CLI tool into the monitor.
// The factory consumes the source's command, args, window label and timeout.
func NewFactory() probe.Factory {
	return func(cfg config.SourceConfig, deps probe.Dependencies) (probe.Probe, error) {
		if cfg.Command == "" {
			return nil, fmt.Errorf("source %s: command must not be empty", cfg.ID)
		}
		if cfg.Label == "" {
			return nil, fmt.Errorf("source %s: window label must not be empty", cfg.ID)
		}
		runner := deps.Runner
		if runner == nil {
			runner = probe.NewOSRunner()
		}
		return &cliProbe{
			source:  cfg.ID,
			command: cfg.Command,
			args:    append([]string(nil), cfg.Args...),
			label:   cfg.Label,
			timeout: cfg.Timeout.Duration,
			runner:  runner,
			logger:  deps.Logger.With().Str("component", "probe").Str("driver", config.DriverCLI).Str("source", cfg.ID).Logger(),
		}, nil
	}
}

type cliProbe struct {
	source  string
	command string
	args    []string
	label   string
	timeout time.Duration
	runner  probe.Runner
	logger  zerolog.Logger
}

// Available reports whether the configured binary can be resolved. Lookup
// failures are fail-closed.
func (p *cliProbe) Available(ctx context.Context) bool {
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	_, err := p.runner.LookPath(p.command)
	return err == nil
}

func (p *cliProbe) Collect(ctx context.Context) (quota.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	started := time.Now()
	out, err := p.runner.Run(ctx, p.command, p.args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return quota.Snapshot{}, fmt.Errorf("%w: %s", probe.ErrSourceMissing, p.command)
		}
		return quota.Snapshot{}, fmt.Errorf("%w: run %s: %v", probe.ErrUnavailable, p.command, err)
	}
	// Raw tool output may contain account details; keep it out of anything
	// above debug level and cap its size.
	p.logger.Debug().Dur("elapsed", time.Since(started)).Str("output", truncate(string(out), 256)).Msg("cli probe output")

	windows, err := probe.ParseQuotaReport(string(out))
	if err != nil {
		return quota.Snapshot{}, err
	}
	percent, ok := windows[p.label]
	if !ok {
		return quota.Snapshot{}, fmt.Errorf("%w: window %q not reported", probe.ErrParseFailed, p.label)
	}
	return quota.NewMeasured(p.source, quota.UnitPercent, percent, time.Now()), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
