package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/shule/core/school"
)

// Metrics holds the API's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Provisioning metrics
	ProvisioningTotal *prometheus.CounterVec
	MembershipRetries prometheus.Counter

	// Listing metrics
	StatsLookups *prometheus.CounterVec
}

var _ school.Observer = (*Metrics)(nil) // interface compliance check

// New registers the collectors with reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "code"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shule_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ProvisioningTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_school_provisioning_total",
				Help: "School provisioning attempts by outcome",
			},
			[]string{"outcome"},
		),

		MembershipRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shule_membership_grant_retries_total",
				Help: "Total number of retried admin membership grants",
			},
		),

		StatsLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shule_school_stats_lookups_total",
				Help: "School stats lookups by source",
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) ProvisioningOutcome(outcome string) {
	m.ProvisioningTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MembershipRetried() {
	m.MembershipRetries.Inc()
}

func (m *Metrics) StatsLookup(cached bool) {
	source := "store"
	if cached {
		source = "cache"
	}
	m.StatsLookups.WithLabelValues(source).Inc()
}

// Middleware records every request under its route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				// let the error handler write the response so its status is recorded
				ctx.Error(err)
			}

			code := ctx.Response().Status
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
