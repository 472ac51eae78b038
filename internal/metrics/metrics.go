// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FeedPulse/internal/cache"
)

const namespace = "feedpulse"

// Summary outcomes.
const (
	SummaryGenerated = "generated"
	SummaryReused    = "reused"
	SummaryFallback  = "fallback"
)

// Metrics holds all instruments. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	CacheRequests   *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	Summaries       *prometheus.CounterVec
	RateLimited     prometheus.Counter
	LimiterKeys     prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
}

var _ cache.Observer = (*Metrics)(nil)

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Feed reads by cache outcome (hit, refresh, stale, error)",
		}, []string{"feed", "outcome"}),
		RefreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time spent refreshing a feed slot",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"feed"}),
		Summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Summaries by outcome (generated, reused, fallback)",
		}, []string{"feed", "outcome"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-caller limiter",
		}),
		LimiterKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limiter_keys",
			Help:      "Caller keys currently tracked by the limiter",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
	}
}

// ObserveCache implements cache.Observer.
func (m *Metrics) ObserveCache(slot string, outcome cache.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(slot, string(outcome)).Inc()
	if outcome != cache.OutcomeHit {
		m.RefreshDuration.WithLabelValues(slot).Observe(elapsed.Seconds())
	}
}

// ObserveSummary counts one summary decision.
func (m *Metrics) ObserveSummary(feed, outcome string) {
	if m == nil {
		return
	}
	m.Summaries.WithLabelValues(feed, outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
