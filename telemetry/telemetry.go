package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcome labels reported to the collector.
const (
	OutcomeSuccess     = "success"
	OutcomeUnavailable = "unavailable"
	OutcomeParseFailed = "parse_failed"
	OutcomeMissing     = "missing"
	OutcomeError       = "error"
)

// Collector captures telemetry events emitted by the monitoring runtime.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They should be inexpensive to call because hooks are
// executed inline with refresh cycles.
type Collector interface {
	IncRefresh(source, outcome string)
	ObserveRefreshDuration(source string, d time.Duration)
	SetRemaining(source string, remaining float64)
	IncAlert(rule string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncRefresh(string, string)                    {}
func (noopCollector) ObserveRefreshDuration(string, time.Duration) {}
func (noopCollector) SetRemaining(string, float64)                 {}
func (noopCollector) IncAlert(string)                              {}

// PrometheusCollector exposes refresh telemetry via Prometheus.
type PrometheusCollector struct {
	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.GaugeVec
	remaining       *prometheus.GaugeVec
	alerts          *prometheus.CounterVec
}

var (
	registryMu           sync.Mutex
	refreshCounter       *prometheus.CounterVec
	refreshDurationGauge *prometheus.GaugeVec
	remainingGauge       *prometheus.GaugeVec
	alertCounter         *prometheus.CounterVec
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Metrics already registered by an earlier collector instance are
// reused rather than duplicated.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if refreshCounter == nil {
		counter, err := registerCounterVec(reg, prometheus.CounterOpts{
			Name: "quotamon_refresh_total",
			Help: "Number of refresh attempts per source and outcome.",
		}, []string{"source", "outcome"})
		if err != nil {
			return nil, err
		}
		refreshCounter = counter
	}
	if refreshDurationGauge == nil {
		gauge, err := registerGaugeVec(reg, prometheus.GaugeOpts{
			Name: "quotamon_refresh_duration_seconds",
			Help: "Duration of the last completed refresh per source.",
		}, []string{"source"})
		if err != nil {
			return nil, err
		}
		refreshDurationGauge = gauge
	}
	if remainingGauge == nil {
		gauge, err := registerGaugeVec(reg, prometheus.GaugeOpts{
			Name: "quotamon_remaining",
			Help: "Latest remaining quota measurement per source.",
		}, []string{"source"})
		if err != nil {
			return nil, err
		}
		remainingGauge = gauge
	}
	if alertCounter == nil {
		counter, err := registerCounterVec(reg, prometheus.CounterOpts{
			Name: "quotamon_alerts_total",
			Help: "Number of times each alert rule fired.",
		}, []string{"rule"})
		if err != nil {
			return nil, err
		}
		alertCounter = counter
	}

	return &PrometheusCollector{
		refreshes:       refreshCounter,
		refreshDuration: refreshDurationGauge,
		remaining:       remainingGauge,
		alerts:          alertCounter,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return counter, nil
}

func registerGaugeVec(reg prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) (*prometheus.GaugeVec, error) {
	gauge := prometheus.NewGaugeVec(opts, labels)
	if err := reg.Register(gauge); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return gauge, nil
}

// IncRefresh counts a refresh attempt for the source with its outcome.
func (p *PrometheusCollector) IncRefresh(source, outcome string) {
	if p == nil || p.refreshes == nil {
		return
	}
	p.refreshes.WithLabelValues(source, outcome).Inc()
}

// ObserveRefreshDuration records how long the last refresh took.
func (p *PrometheusCollector) ObserveRefreshDuration(source string, d time.Duration) {
	if p == nil || p.refreshDuration == nil {
		return
	}
	p.refreshDuration.WithLabelValues(source).Set(d.Seconds())
}

// SetRemaining updates the gauge tracking the latest measurement.
func (p *PrometheusCollector) SetRemaining(source string, remaining float64) {
	if p == nil || p.remaining == nil {
		return
	}
	p.remaining.WithLabelValues(source).Set(remaining)
}

// IncAlert counts a fired alert rule.
func (p *PrometheusCollector) IncAlert(rule string) {
	if p == nil || p.alerts == nil {
		return
	}
	p.alerts.WithLabelValues(rule).Inc()
}
