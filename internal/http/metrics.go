package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/resolvd/internal/http"

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// HTTPMetrics records per-route request counts, latency and rejections.
type HTTPMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requests   metric.Int64Counter
	duration   metric.Float64Histogram
	inFlight   metric.Int64UpDownCounter
	rejections metric.Int64Counter
}

// NewHTTPMetrics creates instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error
	if m.requests, err = m.meter.Int64Counter(
		"resolvd.http.requests_total",
		metric.WithDescription("HTTP requests by method, route template and status code"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Submissions wait on the advisor, so the upper buckets reach its timeout.
	if m.duration, err = m.meter.Float64Histogram(
		"resolvd.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route template and status code"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30),
	); err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	if m.inFlight, err = m.meter.Int64UpDownCounter(
		"resolvd.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}

	if m.rejections, err = m.meter.Int64Counter(
		"resolvd.http.rejections_total",
		metric.WithDescription("HTTP responses with status >= 400 by route template and class (client, server)"),
		metric.WithUnit("{response}"),
	); err != nil {
		m.logger.Warn("failed to create rejections counter", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status := responseStatus(c, err)
			route := routeLabel(c.Path())
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", route),
				attribute.Int("status", status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if status >= http.StatusBadRequest && m.rejections != nil {
				class := "client"
				if status >= http.StatusInternalServerError {
					class = "server"
				}
				m.rejections.Add(ctx, 1, metric.WithAttributes(
					attribute.String("endpoint", route),
					attribute.String("class", class),
				))
			}
			return err
		}
	}
}

// responseStatus is the status the client will see. Errors returned to
// echo are written after the middleware chain unwinds, so the response
// has not been committed yet when err is non-nil.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// routeLabel returns the route template. Echo reports parameterized routes
// as /api/v1/patterns/:signature, so signatures never become label values.
func routeLabel(path string) string {
	if path == "" || path == "/*" {
		return unmatchedRoute
	}
	return path
}
