package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	auth "github.com/goliatone/go-noire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the auth collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	activityTotal *prometheus.CounterVec
	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	buildInfo     *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activityTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noire_auth_events_total",
				Help: "Authentication activity events by type.",
			},
			[]string{"event"},
		),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "noire_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noire_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noire_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "noire_build_info",
				Help: "Build information.",
			},
			[]string{"version"},
		),
	}

	m.registry.MustRegister(
		m.activityTotal,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.buildInfo,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetBuildInfo publishes the running version
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// Record counts activity events, it satisfies auth.ActivitySink
func (m *Metrics) Record(_ context.Context, event auth.ActivityEvent) error {
	m.activityTotal.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

// Instrument measures every request. The route label uses the matched
// route pattern so path parameters do not explode cardinality.
func (m *Metrics) Instrument() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()

		// resolve errors here so the recorded status is the one sent
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := c.Route().Path
		code := strconv.Itoa(c.Response().StatusCode())
		m.httpDuration.WithLabelValues(c.Method(), route, code).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(c.Method(), route, code).Inc()

		return nil
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

var _ auth.ActivitySink = (*Metrics)(nil)
