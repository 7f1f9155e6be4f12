// Package metrics records detection run telemetry.
//
// Two recorders implement types.RunMetrics:
//   - PrometheusRecorder: scraped from the API server's /metrics endpoint.
//     It also records admin API request metrics.
//   - CloudWatchRecorder: pushed from the scheduled Lambda, which has no
//     long-lived process to scrape
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"guardian/internal/types"
)

var _ types.RunMetrics = (*PrometheusRecorder)(nil)

// PrometheusRecorder exposes run counters and histograms on a registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	evaluatedUsers    prometheus.Counter
	warningsCreated   prometheus.Counter
	skippedUsers      prometheus.Counter
	notificationsSent prometheus.Counter
	lastRunTimestamp  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the detection metrics on reg. A nil reg
// gets a fresh registry with the Go and process collectors.
func NewPrometheusRecorder(reg *prometheus.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_detection_runs_total",
				Help: "Total number of detection runs by final status",
			},
			[]string{"status", "trigger"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "guardian_detection_run_duration_seconds",
				Help:    "Wall-clock duration of detection runs in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		evaluatedUsers: f.NewCounter(prometheus.CounterOpts{
			Name: "guardian_detection_evaluated_users_total",
			Help: "Users evaluated across all detection runs",
		}),
		warningsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "guardian_warnings_created_total",
			Help: "Early warnings created by detection runs",
		}),
		skippedUsers: f.NewCounter(prometheus.CounterOpts{
			Name: "guardian_detection_skipped_users_total",
			Help: "Users skipped because their data could not be read or written",
		}),
		notificationsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "guardian_notify_admin_events_total",
			Help: "notifyAdmin events published",
		}),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_detection_last_run_timestamp_seconds",
			Help: "Unix time the last detection run finished",
		}),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guardian_http_requests_total",
				Help: "Admin API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guardian_http_request_duration_seconds",
				Help:    "Admin API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordRun implements types.RunMetrics.
func (r *PrometheusRecorder) RecordRun(_ context.Context, s *types.RunSummary) {
	r.runsTotal.WithLabelValues(s.Status(), string(s.Trigger)).Inc()
	r.runDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	r.evaluatedUsers.Add(float64(s.EvaluatedUsers))
	r.warningsCreated.Add(float64(s.WarningsCreated))
	r.skippedUsers.Add(float64(len(s.SkippedUsers)))
	r.notificationsSent.Add(float64(s.NotificationsSent))
	r.lastRunTimestamp.Set(float64(s.FinishedAt.Unix()))
}

// RecordRequest records one admin API request. route is the matched route
// pattern.
func (r *PrometheusRecorder) RecordRequest(method, route, status string, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, route, status).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
