// Package metrics holds the prometheus collectors of the runtime. Every
// method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slotjit"

// Metrics owns a dedicated registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	slotState     *prometheus.GaugeVec
	compiles      *prometheus.CounterVec
	passes        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	cache         *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}
	m.slotState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "slots",
		Help:      "Number of hardware slots per scheduler and state.",
	}, []string{"scheduler", "state"})
	m.compiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slot_compiles_total",
		Help:      "Slot compile requests by scheduler and outcome.",
	}, []string{"scheduler", "outcome"})
	m.passes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jit_passes_total",
		Help:      "Module compile passes by pass number and outcome.",
	}, []string{"pass", "outcome"})
	m.buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "build_duration_seconds",
		Help:      "Duration of hardware toolchain builds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})
	m.cache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "build_cache_lookups_total",
		Help:      "Build cache lookups by result.",
	}, []string{"result"})

	m.Registry.MustRegister(m.slotState, m.compiles, m.passes, m.buildDuration, m.cache)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetSlotStates replaces the per-state slot counts of one scheduler.
func (m *Metrics) SetSlotStates(scheduler string, counts map[string]int) {
	if m == nil {
		return
	}
	for state, n := range counts {
		m.slotState.WithLabelValues(scheduler, state).Set(float64(n))
	}
}

// CompileOutcome counts one finished slot compile request.
func (m *Metrics) CompileOutcome(scheduler, outcome string) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(scheduler, outcome).Inc()
}

// PassOutcome counts one finished module compile pass.
func (m *Metrics) PassOutcome(pass, outcome string) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(pass, outcome).Inc()
}

// ObserveBuild records the duration of one toolchain build.
func (m *Metrics) ObserveBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(d.Seconds())
}

// CacheLookup counts a build cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}
