// Package alerts evaluates configured rules against refreshed source state
// and reports matches through the logger and telemetry.
package alerts

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/monitor"
	"github.com/avishj/quotamon/telemetry"
)

// Engine holds the compiled rule set. Rules are compiled once at
// construction; evaluation is side-effect free apart from logging and
// metrics.
type Engine struct {
	logger    zerolog.Logger
	collector telemetry.Collector
	rules     []rule
}

type rule struct {
	id         string
	expression string
	severity   zerolog.Level
	program    *vm.Program
}

// NewEngine compiles the configured alert rules. Expressions must evaluate
// to a boolean; anything else is rejected at construction time.
func NewEngine(cfgs []config.AlertConfig, logger zerolog.Logger, collector telemetry.Collector) (*Engine, error) {
	if collector == nil {
		collector = telemetry.Noop()
	}
	engine := &Engine{
		logger:    logger.With().Str("component", "alerts").Logger(),
		collector: collector,
	}
	for _, cfg := range cfgs {
		severity, err := parseSeverity(cfg.Severity)
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", cfg.ID, err)
		}
		program, err := expr.Compile(cfg.Expression, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("alert %s: compile %q: %w", cfg.ID, cfg.Expression, err)
		}
		engine.rules = append(engine.rules, rule{
			id:         cfg.ID,
			expression: cfg.Expression,
			severity:   severity,
			program:    program,
		})
	}
	return engine, nil
}

// ruleEnv is the typed environment rule expressions run against.
type ruleEnv struct {
	Source   string `expr:"source"`
	Driver   string `expr:"driver"`
	Percent  int    `expr:"percent"`
	Measured bool   `expr:"measured"`
	Band     string `expr:"band"`
	Stale    bool   `expr:"stale"`
	Err      string `expr:"err"`
}

// Observer returns a hook suitable for monitor.WithObserver.
func (e *Engine) Observer() monitor.Observer {
	return e.Evaluate
}

// Evaluate runs every rule against the given source status. Runtime
// evaluation errors are logged and skipped; they never propagate into the
// refresh path.
func (e *Engine) Evaluate(status monitor.SourceStatus) {
	if len(e.rules) == 0 {
		return
	}
	env := buildEnv(status)
	for _, r := range e.rules {
		result, err := expr.Run(r.program, env)
		if err != nil {
			e.logger.Error().Err(err).Str("rule", r.id).Msg("alert evaluation failed")
			continue
		}
		matched, ok := result.(bool)
		if !ok || !matched {
			continue
		}
		e.collector.IncAlert(r.id)
		e.logger.WithLevel(r.severity).
			Str("rule", r.id).
			Str("source", status.ID).
			Str("band", string(status.Band)).
			Str("state", status.DisplayText).
			Msg("alert fired")
	}
}

func buildEnv(status monitor.SourceStatus) ruleEnv {
	env := ruleEnv{
		Source: status.ID,
		Driver: status.Driver,
		Band:   string(status.Band),
		Stale:  status.HasSnapshot && status.LastError != "",
		Err:    status.LastError,
	}
	if status.HasSnapshot {
		if remaining, ok := status.Snapshot.Remaining(); ok {
			env.Percent = remaining
			env.Measured = true
		}
	}
	return env
}

func parseSeverity(raw string) (zerolog.Level, error) {
	switch strings.ToLower(raw) {
	case "", "warn", "warning":
		return zerolog.WarnLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown severity %q", raw)
	}
}
