package v1

import (
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	entriesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "entries_posted_total",
		Help:      "Journal entries committed to the general ledger",
	})
	entriesReversed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "entries_reversed_total",
		Help:      "Posted journal entries reversed",
	})
	validationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "validation_failures_total",
			Help:      "Journal entry validation failures by kind",
		},
		[]string{"kind"},
	)
	trialBalanceImbalances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "trial_balance_imbalance_total",
		Help:      "Trial balance reports whose debits and credits disagreed",
	})
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request counts and latency by route pattern, so
// ids in paths do not blow up label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := strconv.Itoa(ww.Status())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}
