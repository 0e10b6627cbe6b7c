// Package metrics exposes matcher activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records matcher and verification metrics. It implements
// muzzle.MetricsRecorder and is safe for concurrent use.
//
// Metrics:
//   - <ns>_match_cache_hits_total: matches answered from the per-loader cache
//   - <ns>_match_cache_misses_total: matches that had to be computed
//   - <ns>_matches_total{result}: computed matches by result ("matched", "mismatched")
//   - <ns>_match_duration_seconds: time spent computing a match
//   - <ns>_mismatches_total{kind}: mismatches reported by full checks
//   - <ns>_modules_verified_total{result}: modules checked by AssertMatch runs
//   - <ns>_type_cache_entries: resolutions held by the shared type cache
type Collector struct {
	registry *prometheus.Registry

	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	matches      *prometheus.CounterVec
	duration     prometheus.Histogram
	mismatches   *prometheus.CounterVec
	modules      *prometheus.CounterVec
	typeCacheLen func() int
}

// NewCollector creates and registers the metrics with registry. A nil
// registry gets a fresh one.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: registry,
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cache_hits_total",
			Help:      "Total number of matches answered from the per-loader cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cache_misses_total",
			Help:      "Total number of matches that had to be computed",
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Total number of computed matches by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Time spent computing a match",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mismatches_total",
			Help:      "Total number of mismatches reported by full checks",
		}, []string{"kind"}),
		modules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_verified_total",
			Help:      "Total number of modules checked by verification runs",
		}, []string{"result"}),
	}

	registry.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.matches,
		c.duration,
		c.mismatches,
		c.modules,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "type_cache_entries",
			Help:      "Current number of resolutions held by the shared type cache",
		}, func() float64 {
			if c.typeCacheLen == nil {
				return 0
			}
			return float64(c.typeCacheLen())
		}),
	)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) CacheHit()  { c.cacheHits.Inc() }
func (c *Collector) CacheMiss() { c.cacheMisses.Inc() }

func (c *Collector) MatchEvaluated(matched bool, elapsed time.Duration) {
	c.matches.WithLabelValues(matchResult(matched)).Inc()
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collector) MismatchFound(kind string) {
	c.mismatches.WithLabelValues(kind).Inc()
}

// ModuleVerified records the outcome of one module in a verification run.
func (c *Collector) ModuleVerified(passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	c.modules.WithLabelValues(result).Inc()
}

// ObserveTypeCache reports size as the type cache gauge. It must be called
// before the collector is scraped concurrently.
func (c *Collector) ObserveTypeCache(size func() int) {
	c.typeCacheLen = size
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func matchResult(matched bool) string {
	if matched {
		return "matched"
	}
	return "mismatched"
}
