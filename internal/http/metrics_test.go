package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/patterns/:signature", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"signature": c.Param("signature")})
	})

	for _, path := range []string{"/health", "/api/v1/patterns/aaaaaaaaaaaa", "/api/v1/patterns/bbbbbbbbbbbb"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	endpoints := map[string]int64{}
	foundDuration := false
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "resolvd.http.requests_total":
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					ep, _ := dp.Attributes.Value("endpoint")
					endpoints[ep.AsString()] += dp.Value
				}
			case "resolvd.http.request_duration_seconds":
				foundDuration = true
			}
		}
	}

	assert.True(t, foundDuration, "duration histogram not found")
	assert.Equal(t, map[string]int64{
		"/health":                     1,
		"/api/v1/patterns/:signature": 2,
	}, endpoints)
}

func TestHTTPMetrics_Rejections(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/api/v1/patterns/:signature", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "pattern not found"})
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "down")
	})

	for _, path := range []string{"/api/v1/patterns/aaaaaaaaaaaa", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	classes := map[string]string{}
	statuses := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				ep, _ := dp.Attributes.Value("endpoint")
				switch md.Name {
				case "resolvd.http.rejections_total":
					cl, _ := dp.Attributes.Value("class")
					classes[ep.AsString()] = cl.AsString()
				case "resolvd.http.requests_total":
					st, _ := dp.Attributes.Value("status")
					statuses[ep.AsString()] = st.AsInt64()
				}
			}
		}
	}

	assert.Equal(t, map[string]string{
		"/api/v1/patterns/:signature": "client",
		"/boom":                       "server",
	}, classes)
	assert.Equal(t, int64(http.StatusServiceUnavailable), statuses["/boom"])
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", unmatchedRoute},
		{"/*", unmatchedRoute},
		{"/health", "/health"},
		{"/api/v1/patterns/:signature", "/api/v1/patterns/:signature"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, routeLabel(tt.input))
	}
}
