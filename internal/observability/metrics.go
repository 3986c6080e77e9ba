package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce        sync.Once
	apiRequestsTotal    *prometheus.CounterVec
	apiLatencySeconds   *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec
	fallbackServedTotal *prometheus.CounterVec
	authEventsTotal     *prometheus.CounterVec
	catalogCacheTotal   *prometheus.CounterVec
	authStreamsActive   prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnhub_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		fallbackServedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_fallback_served_total",
			Help: "Number of substitute records served in place of missing data.",
		}, []string{"operation"})

		authEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_auth_events_total",
			Help: "Auth state changes observed, labelled by event and origin.",
		}, []string{"event", "origin"})

		catalogCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnhub_catalog_cache_requests_total",
			Help: "Catalog cache lookups by result.",
		}, []string{"result"})

		authStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "learnhub_auth_event_streams_active",
			Help: "Currently connected auth event websocket clients.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			fallbackServedTotal,
			authEventsTotal,
			catalogCacheTotal,
			authStreamsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// FallbackServed counts substitute records by access-layer operation.
func FallbackServed() *prometheus.CounterVec {
	RegisterMetrics()
	return fallbackServedTotal
}

// AuthEvents counts auth state changes.
func AuthEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return authEventsTotal
}

// CatalogCache counts cache hits and misses.
func CatalogCache() *prometheus.CounterVec {
	RegisterMetrics()
	return catalogCacheTotal
}

// AuthStreamsActive tracks open /auth/events websocket connections.
func AuthStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return authStreamsActive
}

// MetricsHandler serves the default registry, OpenMetrics included, from a fiber route.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
