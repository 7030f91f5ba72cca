// Package metrics exposes Prometheus collectors for the import service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	resolutionsTotal            *prometheus.CounterVec
	resolutionStageSeconds      *prometheus.HistogramVec
	placesRequestsTotal         *prometheus.CounterVec
	placesRateLimitDelaySeconds prometheus.Histogram
	restaurantImportsTotal      *prometheus.CounterVec
	photoProxyBytesTotal        prometheus.Counter

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapslink_resolutions_total",
				Help: "Maps link resolutions, labeled by outcome (ok or failure kind).",
			},
			[]string{"outcome"},
		)

		resolutionStageSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mapslink_stage_duration_seconds",
				Help:    "Time spent in each resolution stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		)

		placesRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_api_requests_total",
				Help: "Outbound Places API calls, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		placesRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "places_rate_limit_delay_seconds",
				Help:    "Histogram of client-side rate limit waits before Places API calls.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		restaurantImportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restaurant_imports_total",
				Help: "Restaurant imports, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		photoProxyBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "photo_proxy_bytes_total",
				Help: "Bytes streamed through the photo proxy.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveResolution counts one finished pipeline run.
func ObserveResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	resolutionStageSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObservePlacesRequest counts one outbound Places API call.
func ObservePlacesRequest(endpoint, outcome string) {
	placesRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	placesRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveImport counts one restaurant import attempt.
func ObserveImport(outcome string) {
	restaurantImportsTotal.WithLabelValues(outcome).Inc()
}

// AddPhotoBytes adds to the proxied photo byte counter.
func AddPhotoBytes(n int64) {
	if n > 0 {
		photoProxyBytesTotal.Add(float64(n))
	}
}
