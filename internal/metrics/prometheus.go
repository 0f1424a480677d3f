// Package metrics exposes replay activity as Prometheus metrics. It adapts
// the engine's and resolver's event sinks onto a registry so long-running
// recorder or CI processes can be scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics collects replay counters. It implements both
// route.Sink and replay.Sink.
type PrometheusMetrics struct {
	interactionsTotal *prometheus.CounterVec
	replayErrorsTotal prometheus.Counter

	routeCacheHitsTotal   prometheus.Counter
	routeCacheMissesTotal prometheus.Counter
	routeCacheHitRatio    prometheus.Gauge

	renderDuration prometheus.Histogram
	sessionScore   *prometheus.GaugeVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics registers on the default registerer.
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry registers on a caller-supplied registry.
// Tests pass a fresh registry to avoid duplicate-registration panics.
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{logger: logger}

	pm.interactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "interactions_total",
			Help:      "Total interactions replayed",
		},
		[]string{"source", "verdict"}, // source: template|live; verdict: compatible|incompatible|error
	)

	pm.replayErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "errors_total",
			Help:      "Total per-interaction replay errors",
		},
	)

	pm.routeCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "cache_hits_total",
			Help:      "Total route resolution cache hits",
		},
	)

	pm.routeCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "cache_misses_total",
			Help:      "Total route resolution cache misses",
		},
	)

	pm.routeCacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "cache_hit_ratio",
			Help:      "Route resolution cache hit ratio (0-1)",
		},
	)

	pm.renderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "template",
			Name:      "render_duration_seconds",
			Help:      "Time taken to render one response template",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	pm.sessionScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "session_score",
			Help:      "Compatibility score of the last replayed session (0-100)",
		},
		[]string{"session_id", "kind"}, // kind: raw|effective
	)

	registerer.MustRegister(
		pm.interactionsTotal,
		pm.replayErrorsTotal,
		pm.routeCacheHitsTotal,
		pm.routeCacheMissesTotal,
		pm.routeCacheHitRatio,
		pm.renderDuration,
		pm.sessionScore,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Prometheus metrics initialized")
	return pm
}

// InteractionReplayed implements replay.Sink.
func (pm *PrometheusMetrics) InteractionReplayed(source string, compatible bool, errored bool) {
	verdict := "compatible"
	switch {
	case errored:
		verdict = "error"
		pm.replayErrorsTotal.Inc()
	case !compatible:
		verdict = "incompatible"
	}
	if source == "" {
		source = "none"
	}
	pm.interactionsTotal.WithLabelValues(source, verdict).Inc()
}

// RenderObserved implements replay.Sink.
func (pm *PrometheusMetrics) RenderObserved(d time.Duration) {
	pm.renderDuration.Observe(d.Seconds())
}

// RouteCacheHit implements route.Sink.
func (pm *PrometheusMetrics) RouteCacheHit() {
	pm.routeCacheHitsTotal.Inc()
	pm.updateCacheHitRatio()
}

// RouteCacheMiss implements route.Sink.
func (pm *PrometheusMetrics) RouteCacheMiss() {
	pm.routeCacheMissesTotal.Inc()
	pm.updateCacheHitRatio()
}

// RecordSessionScore publishes the raw and effective scores of a finished
// session.
func (pm *PrometheusMetrics) RecordSessionScore(sessionID string, raw, effective float64) {
	pm.sessionScore.WithLabelValues(sessionID, "raw").Set(raw)
	pm.sessionScore.WithLabelValues(sessionID, "effective").Set(effective)
}

// ServeHTTP serves the scrape endpoint on a fasthttp server.
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

func (pm *PrometheusMetrics) updateCacheHitRatio() {
	hits := pm.counterValue(pm.routeCacheHitsTotal)
	misses := pm.counterValue(pm.routeCacheMissesTotal)
	if total := hits + misses; total > 0 {
		pm.routeCacheHitRatio.Set(hits / total)
	}
}

func (pm *PrometheusMetrics) counterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}
