// Package metrics exposes Prometheus counters for the HTTP API and for
// the files the service decodes.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// File outcomes.
const (
	OutcomeValid    = "valid"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected" // fatal decode error
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ted",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ted",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	filesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ted",
			Subsystem: "files",
			Name:      "processed_total",
			Help:      "Files decoded, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	validationIssues = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ted",
			Subsystem: "files",
			Name:      "validation_issues_total",
			Help:      "Validation issues found in decoded files, by issue code.",
		},
		[]string{"code"},
	)
)

// Register adds the collectors to the default registry. It is safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, filesProcessed, validationIssues)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordFile counts one decoded file.
func RecordFile(operation, outcome string) {
	Register()
	filesProcessed.WithLabelValues(operation, outcome).Inc()
}

// RecordIssues adds n issues with the given code.
func RecordIssues(code string, n int) {
	if n <= 0 {
		return
	}
	Register()
	validationIssues.WithLabelValues(code).Add(float64(n))
}
