// Package metrics provides Prometheus metrics for taskflow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "taskflow"
)

// Client metrics
var (
	// ClientRequestsTotal counts outbound API requests by method and status.
	// Transport failures are recorded with status "error".
	ClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of outbound API requests",
		},
		[]string{"method", "status"},
	)

	// ClientRetriesTotal counts requests replayed after a token renewal.
	ClientRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Total requests retried with a renewed access token",
		},
	)
)

// Session metrics
var (
	// RefreshTotal counts token renewals by result (success, failure, no_token).
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Total token renewal attempts by result",
		},
		[]string{"result"},
	)

	// RefreshWaiters tracks callers queued behind an in-flight renewal.
	RefreshWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_waiters",
			Help:      "Requests waiting on an in-flight token renewal",
		},
	)

	// ForcedLogoutsTotal counts session-fatal logouts.
	ForcedLogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Total sessions terminated by an unrecoverable auth failure",
		},
	)
)

// Dev server metrics
var (
	// HTTPRequestsTotal counts dev server requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks dev server request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)
