// Package metrics collects and exposes Prometheus metrics for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector records request-level and transfer-level metrics.
// It is used by the HTTP middleware and handlers.
type MetricsCollector interface {
	RecordRequest(method, route string, statusCode int, duration time.Duration)
	RecordLogin(success bool)
	RecordUploadBytes(n int64)
	RecordDownloadBytes(n int64)
}

// Collector is the Prometheus-backed MetricsCollector.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	logins          *prometheus.CounterVec
	uploadBytes     prometheus.Counter
	downloadBytes   prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filekeeper_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "filekeeper_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filekeeper_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filekeeper_upload_bytes_total",
			Help: "Total bytes received in file uploads",
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filekeeper_download_bytes_total",
			Help: "Total bytes served in file downloads",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.logins,
		c.uploadBytes,
		c.downloadBytes,
	)

	return c
}

// RecordRequest records one finished HTTP request.
func (c *Collector) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.Observe(duration.Seconds())
}

// RecordLogin records a login attempt.
func (c *Collector) RecordLogin(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordUploadBytes records bytes received in an upload.
func (c *Collector) RecordUploadBytes(n int64) {
	c.uploadBytes.Add(float64(n))
}

// RecordDownloadBytes records bytes served in a download.
func (c *Collector) RecordDownloadBytes(n int64) {
	c.downloadBytes.Add(float64(n))
}

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
