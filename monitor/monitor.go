// Package monitor coordinates probes for a fixed set of named sources and
// caches the most recent snapshot per source.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/probe"
	"github.com/avishj/quotamon/quota"
	"github.com/avishj/quotamon/telemetry"
)

// ErrSourceNotFound is returned when a refresh or read names an identifier
// that was not configured. It signals a programmer error and is never
// retried.
var ErrSourceNotFound = errors.New("monitor: source not found")

// Observer is invoked with the source's status after every completed
// refresh. Observers run inline and must be cheap.
type Observer func(SourceStatus)

// SourceStatus exposes the cached state of one source for external
// inspection.
type SourceStatus struct {
	ID           string
	Driver       string
	Disabled     bool
	LastRun      time.Time
	NextRun      time.Time
	LastDuration time.Duration
	LastError    string
	HasSnapshot  bool
	Snapshot     quota.Snapshot
	Band         quota.Band
	DisplayText  string
}

// Monitor holds one probe per configured source and serialises refreshes per
// identifier. The identifier set is immutable after construction.
type Monitor struct {
	logger    zerolog.Logger
	collector telemetry.Collector
	observers []Observer
	interval  time.Duration
	slots     int

	sources map[string]*source
	order   []string
}

type source struct {
	id       string
	driver   string
	interval time.Duration
	probe    probe.Probe
	disabled atomic.Bool

	// refreshMu serialises refreshes for this source so a second refresh
	// started before the first completes waits for it.
	refreshMu sync.Mutex

	mu           sync.RWMutex
	snap         *quota.Snapshot
	lastErr      error
	lastRun      time.Time
	nextRun      time.Time
	lastDuration time.Duration
}

type registry struct {
	factories    map[string]probe.Factory
	collector    telemetry.Collector
	observers    []Observer
	deps         probe.Dependencies
	depsProvided bool
}

// Option configures the monitor during construction.
type Option func(*registry)

// WithProbeFactory wires a probe implementation for the given driver name.
func WithProbeFactory(driver string, factory probe.Factory) Option {
	return func(r *registry) {
		if driver == "" || factory == nil {
			return
		}
		r.factories[driver] = factory
	}
}

// WithTelemetry sets the telemetry collector receiving refresh events.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(r *registry) {
		if collector != nil {
			r.collector = collector
		}
	}
}

// WithObserver registers a hook invoked after every completed refresh.
func WithObserver(observer Observer) Option {
	return func(r *registry) {
		if observer != nil {
			r.observers = append(r.observers, observer)
		}
	}
}

// WithProbeDependencies overrides the dependencies handed to probe factories.
// Primarily used by tests to substitute runners and HTTP clients.
func WithProbeDependencies(deps probe.Dependencies) Option {
	return func(r *registry) {
		r.deps = deps
		r.depsProvided = true
	}
}

// New builds a monitor from the configuration. Every source must name a
// driver with a registered probe factory.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	reg := &registry{
		factories: make(map[string]probe.Factory),
		collector: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(reg)
	}

	monitorLogger := logger.With().Str("component", "monitor").Logger()
	deps := probe.Dependencies{Logger: logger}
	if reg.depsProvided {
		deps = reg.deps
	}

	m := &Monitor{
		logger:    monitorLogger,
		collector: reg.collector,
		observers: reg.observers,
		interval:  cfg.PollInterval.Duration,
		slots:     workerSlots(cfg.Workers, len(cfg.Sources)),
		sources:   make(map[string]*source, len(cfg.Sources)),
		order:     make([]string, 0, len(cfg.Sources)),
	}
	for _, srcCfg := range cfg.Sources {
		factory, ok := reg.factories[srcCfg.Driver]
		if !ok {
			return nil, fmt.Errorf("source %s: no probe factory registered for driver %q", srcCfg.ID, srcCfg.Driver)
		}
		p, err := factory(srcCfg, deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", srcCfg.ID, err)
		}
		if _, exists := m.sources[srcCfg.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", srcCfg.ID)
		}
		m.sources[srcCfg.ID] = &source{
			id:       srcCfg.ID,
			driver:   srcCfg.Driver,
			interval: srcCfg.Interval.Duration,
			probe:    p,
		}
		m.order = append(m.order, srcCfg.ID)
	}
	sort.Strings(m.order)
	return m, nil
}

func workerSlots(configured, sources int) int {
	if configured > 0 {
		return configured
	}
	if sources < 1 {
		return 1
	}
	if sources > 4 {
		return 4
	}
	return sources
}

// IDs returns the configured source identifiers in sorted order.
func (m *Monitor) IDs() []string {
	return append([]string(nil), m.order...)
}

// Refresh probes the named source and replaces its cached snapshot on
// success. Probe level failures are absorbed: the previous snapshot stays in
// place and the failure is recorded as the source's last error. The only
// returned error is ErrSourceNotFound for unknown identifiers.
func (m *Monitor) Refresh(ctx context.Context, id string) error {
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSourceNotFound, id)
	}
	m.refreshSource(ctx, s, time.Now())
	return nil
}

// RefreshAll refreshes every configured source through a bounded worker
// pool. No ordering is guaranteed between sources. The returned count is the
// number of sources whose refresh recorded an error.
func (m *Monitor) RefreshAll(ctx context.Context) int {
	now := time.Now()
	items := make([]*source, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, m.sources[id])
	}
	failed, _ := refreshPool(ctx, m.slots, items, func(ctx context.Context, s *source) bool {
		return m.refreshSource(ctx, s, now)
	})
	return failed
}

// Run refreshes due sources on the configured poll cadence until the context
// is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.refreshDue(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.refreshDue(ctx, now)
		}
	}
}

func (m *Monitor) refreshDue(ctx context.Context, now time.Time) {
	due := make([]*source, 0, len(m.order))
	for _, id := range m.order {
		s := m.sources[id]
		if s.due(now) {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		return
	}
	failed, aborted := refreshPool(ctx, m.slots, due, func(ctx context.Context, s *source) bool {
		return m.refreshSource(ctx, s, now)
	})
	if aborted {
		m.logger.Debug().Msg("refresh cycle aborted")
		return
	}
	if failed > 0 {
		m.logger.Debug().Int("failed", failed).Int("due", len(due)).Msg("refresh cycle completed with failures")
	}
}

// refreshSource performs one serialized refresh. It reports whether the
// refresh recorded an error.
func (m *Monitor) refreshSource(ctx context.Context, s *source, now time.Time) bool {
	if s.disabled.Load() {
		return false
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if ctx != nil && ctx.Err() != nil {
		return false
	}

	started := time.Now()
	outcome := telemetry.OutcomeSuccess
	var snap quota.Snapshot
	var err error
	if !s.probe.Available(ctx) {
		err = fmt.Errorf("%w: availability check failed", probe.ErrUnavailable)
		outcome = telemetry.OutcomeUnavailable
	} else {
		snap, err = s.probe.Collect(ctx)
		if err != nil {
			outcome = classifyOutcome(err)
		}
	}
	duration := time.Since(started)

	// A cancelled refresh abandons its result; the cached snapshot and the
	// last-error diagnostics keep their previous values.
	if ctx != nil && ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	s.lastRun = now
	s.lastDuration = duration
	if s.interval > 0 {
		s.nextRun = now.Add(s.interval)
	} else {
		s.nextRun = time.Time{}
	}
	if err != nil {
		// Stale-but-present beats absent: a failure never clears prior data.
		s.lastErr = err
	} else {
		s.lastErr = nil
		s.snap = &snap
	}
	s.mu.Unlock()

	m.collector.IncRefresh(s.id, outcome)
	m.collector.ObserveRefreshDuration(s.id, duration)
	if err == nil {
		if remaining, ok := snap.Remaining(); ok {
			m.collector.SetRemaining(s.id, float64(remaining))
		}
		m.logger.Debug().Str("source", s.id).Str("band", string(snap.Band())).Dur("elapsed", duration).Msg("source refreshed")
	} else {
		m.logger.Warn().Err(err).Str("source", s.id).Msg("source refresh failed")
	}

	status := s.status()
	for _, observer := range m.observers {
		observer(status)
	}
	return err != nil
}

func classifyOutcome(err error) string {
	switch {
	case errors.Is(err, probe.ErrParseFailed):
		return telemetry.OutcomeParseFailed
	case errors.Is(err, probe.ErrSourceMissing):
		return telemetry.OutcomeMissing
	case errors.Is(err, probe.ErrUnavailable):
		return telemetry.OutcomeUnavailable
	default:
		return telemetry.OutcomeError
	}
}

// Snapshot returns the cached snapshot for the source without triggering a
// fetch. The boolean reports whether a snapshot has been stored yet.
func (m *Monitor) Snapshot(id string) (quota.Snapshot, bool, error) {
	s, ok := m.sources[id]
	if !ok {
		return quota.Snapshot{}, false, fmt.Errorf("%w: %q", ErrSourceNotFound, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return quota.Snapshot{}, false, nil
	}
	return *s.snap, true, nil
}

// Status returns the cached status of every source, sorted by identifier.
func (m *Monitor) Status() []SourceStatus {
	statuses := make([]SourceStatus, 0, len(m.order))
	for _, id := range m.order {
		statuses = append(statuses, m.sources[id].status())
	}
	return statuses
}

// SourceStatus returns the cached status of one source.
func (m *Monitor) SourceStatus(id string) (SourceStatus, error) {
	s, ok := m.sources[id]
	if !ok {
		return SourceStatus{}, fmt.Errorf("%w: %q", ErrSourceNotFound, id)
	}
	return s.status(), nil
}

// SetDisabled pauses or resumes refreshing of the named source.
func (m *Monitor) SetDisabled(id string, disabled bool) error {
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSourceNotFound, id)
	}
	s.disabled.Store(disabled)
	return nil
}

func (s *source) due(now time.Time) bool {
	if s.disabled.Load() {
		return false
	}
	if s.interval <= 0 {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextRun.IsZero() {
		return true
	}
	return !now.Before(s.nextRun)
}

func (s *source) status() SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := SourceStatus{
		ID:           s.id,
		Driver:       s.driver,
		Disabled:     s.disabled.Load(),
		LastRun:      s.lastRun,
		NextRun:      s.nextRun,
		LastDuration: s.lastDuration,
		Band:         quota.BandUnknown,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	if s.snap != nil {
		status.HasSnapshot = true
		status.Snapshot = *s.snap
		status.Band = s.snap.Band()
		status.DisplayText = s.snap.DisplayText()
	}
	return status
}
