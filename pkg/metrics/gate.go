package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GateMetrics records status resolution and moderation activity.
type GateMetrics struct {
	cacheLookups        *prometheus.CounterVec
	resolutions         *prometheus.CounterVec
	verdicts            *prometheus.CounterVec
	moderations         *prometheus.CounterVec
	propagationFailures *prometheus.CounterVec
	propagationDuration prometheus.Histogram
}

// NewGateMetrics registers the gate metrics on the provided registerer. A nil
// registerer yields a recorder that drops every observation.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		return &GateMetrics{}
	}
	m := &GateMetrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_cache_lookups_total",
			Help: "Status cache lookups by result.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_resolutions_total",
			Help: "Resolved status snapshots by source.",
		}, []string{"source"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_verdicts_total",
			Help: "Request gate verdicts by decision and approval status.",
		}, []string{"decision", "status"}),
		moderations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Moderation attempts by action and outcome.",
		}, []string{"action", "outcome"}),
		propagationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_propagation_failures_total",
			Help: "Best-effort propagation task failures.",
		}, []string{"task"}),
		propagationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "moderation_propagation_duration_seconds",
			Help:    "Duration of post-commit propagation in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.cacheLookups, m.resolutions, m.verdicts, m.moderations, m.propagationFailures, m.propagationDuration)
	return m
}

// CacheHit counts a lookup served from the status cache.
func (m *GateMetrics) CacheHit() {
	if m == nil || m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss counts a lookup that fell through to the profile store.
func (m *GateMetrics) CacheMiss() {
	if m == nil || m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *GateMetrics) IncResolution(source string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *GateMetrics) IncVerdict(decision, status string) {
	if m == nil || m.verdicts == nil {
		return
	}
	m.verdicts.WithLabelValues(normalizeLabel(decision), normalizeLabel(status)).Inc()
}

func (m *GateMetrics) IncModeration(action, outcome string) {
	if m == nil || m.moderations == nil {
		return
	}
	m.moderations.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}

func (m *GateMetrics) IncPropagationFailure(task string) {
	if m == nil || m.propagationFailures == nil {
		return
	}
	m.propagationFailures.WithLabelValues(normalizeLabel(task)).Inc()
}

func (m *GateMetrics) ObservePropagation(duration time.Duration) {
	if m == nil || m.propagationDuration == nil {
		return
	}
	m.propagationDuration.Observe(duration.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
