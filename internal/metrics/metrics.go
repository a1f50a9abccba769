package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: derived cache keys, split by whether the request carried
	// guaranteed constants.
	KeysDerivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_keys_derived_total",
			Help: "Total number of compilation cache keys derived.",
		},
		[]string{"guaranteed_const"},
	)

	// Counters: artifact store outcomes per backend tier.
	StoreHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_store_hits_total",
			Help: "Total number of artifact store hits.",
		},
		[]string{"backend"},
	)
	StoreMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_store_misses_total",
			Help: "Total number of artifact store misses.",
		},
		[]string{"backend"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_store_errors_total",
			Help: "Total number of artifact store backend errors.",
		},
		[]string{"backend"},
	)

	// Histogram: time spent in the caller-supplied compile callback on a
	// cache miss.
	CompileSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compile_seconds",
			Help:    "Latency of compile callbacks run on cache misses, in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Counter: lookups that piggybacked on an in-flight compile of the same
	// key instead of starting their own.
	CompileCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compile_coalesced_total",
			Help: "Total number of lookups coalesced onto an in-flight compile.",
		},
	)

	// Counter: cached programs evicted through session teardown.
	SessionEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "session_evictions_total",
			Help: "Total number of artifacts evicted by session teardown.",
		},
	)

	// Histogram: cache service HTTP latency in seconds.
	ServiceLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_service_latency_seconds",
			Help:    "HTTP request latency for the cache service in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		KeysDerivedTotal,
		StoreHitsTotal,
		StoreMissesTotal,
		StoreErrorsTotal,
		CompileSeconds,
		CompileCoalescedTotal,
		SessionEvictionsTotal,
		ServiceLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures service latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path. Program keys are unique
		// per program, so raw paths would mint an unbounded label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		ServiceLatencySeconds.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
