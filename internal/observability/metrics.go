// Package observability exposes Prometheus metrics for the document service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goalboard"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests served, by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	documentWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "documents",
		Name:      "writes_total",
		Help:      "Document writes, by operation.",
	}, []string{"operation"})

	activeWatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "documents",
		Name:      "active_watches",
		Help:      "Open document watch streams.",
	})

	signIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "sign_ins_total",
		Help:      "Issued sessions, by method.",
	}, []string{"method"})

	lastSnapshot = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful snapshot, by namespace.",
	}, []string{"app"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, documentWrites, activeWatches, signIns, lastSnapshot)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest counts a served request.
func RecordRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordWrite counts a document write.
func RecordWrite(operation string) {
	documentWrites.WithLabelValues(operation).Inc()
}

// WatchStarted increments the open watch gauge and returns its matching decrement.
func WatchStarted() func() {
	activeWatches.Inc()
	return activeWatches.Dec
}

// RecordSignIn counts an issued session.
func RecordSignIn(method string) {
	signIns.WithLabelValues(method).Inc()
}

// RecordSnapshot updates the snapshot watermark for app.
func RecordSnapshot(app string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSnapshot.WithLabelValues(app).Set(float64(ts.Unix()))
}
