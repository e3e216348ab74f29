package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/engine"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
	"github.com/fyrsmithlabs/resolvd/internal/secrets"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	tr := pattern.NewTracker(pattern.NewMemoryStore(), pattern.Config{}, zap.NewNop())
	e, err := engine.New(engine.Options{Tracker: tr, Logger: zap.NewNop()})
	require.NoError(t, err)
	return e
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	server, err := NewServer(newTestEngine(t), scrubber, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewServer(t *testing.T) {
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	svc := newTestEngine(t)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(svc, scrubber, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8089, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(svc, scrubber, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when scrubber is nil", func(t *testing.T) {
		_, err := NewServer(svc, nil, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "scrubber cannot be nil")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, scrubber, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	rec := do(t, setupTestServer(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}

func TestHandleMetrics(t *testing.T) {
	s := setupTestServer(t)
	do(t, s, http.MethodPost, "/api/v1/errors", SubmitErrorRequest{RawMessage: "Deadlock found when trying to get lock"})

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resolvd_errors_submitted_total")
}

func TestSubmitAndInspectPattern(t *testing.T) {
	s := setupTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/errors", SubmitErrorRequest{
		RawMessage: "Table 'shop.orders' doesn't exist",
		ErrorCode:  1146,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := decode[engine.ResolutionPlan](t, rec)
	assert.Equal(t, "ai_powered", string(plan.Strategy))
	assert.NotEmpty(t, plan.ID)

	rec = do(t, s, http.MethodGet, "/api/v1/patterns/"+plan.Signature, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[pattern.Record](t, rec)
	assert.Equal(t, plan.Signature, got.Signature)
	assert.Len(t, got.Occurrences, 1)

	rec = do(t, s, http.MethodGet, "/api/v1/patterns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[PatternListResponse](t, rec).Count)

	rec = do(t, s, http.MethodPost, "/api/v1/outcomes", OutcomeRequest{
		PlanID: plan.ID,
		Result: "success",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/v1/patterns/"+plan.Signature, nil)
	got = decode[pattern.Record](t, rec)
	assert.Equal(t, pattern.Stats{Attempts: 1, Successes: 1}, got.StrategyStats["ai_powered"])

	rec = do(t, s, http.MethodPost, "/api/v1/patterns/"+plan.Signature+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, plan.Signature, decode[ResetResponse](t, rec).Signature)
}

func TestHandlerErrors(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing raw message", http.MethodPost, "/api/v1/errors", SubmitErrorRequest{}, http.StatusBadRequest},
		{"outcome without target", http.MethodPost, "/api/v1/outcomes", OutcomeRequest{Result: "success"}, http.StatusBadRequest},
		{"outcome bad result", http.MethodPost, "/api/v1/outcomes", OutcomeRequest{Signature: "aaaaaaaaaaaa", Strategy: "preventive", Result: "meh"}, http.StatusBadRequest},
		{"outcome unknown pattern", http.MethodPost, "/api/v1/outcomes", OutcomeRequest{Signature: "aaaaaaaaaaaa", Strategy: "preventive", Result: "success"}, http.StatusNotFound},
		{"malformed signature", http.MethodGet, "/api/v1/patterns/NOT-A-SIG", nil, http.StatusBadRequest},
		{"unknown signature", http.MethodGet, "/api/v1/patterns/aaaaaaaaaaaa", nil, http.StatusNotFound},
		{"reset unknown", http.MethodPost, "/api/v1/patterns/aaaaaaaaaaaa/reset", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Message)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/errors", bytes.NewReader([]byte("invalid json")))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get: %w", pattern.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("update: %w", pattern.ErrQuarantined), http.StatusConflict},
		{pattern.ErrInvariantViolation, http.StatusConflict},
		{engine.ErrPlanNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHandleStatus(t *testing.T) {
	s := setupTestServer(t)
	s.AddCheck("store", func(context.Context) error { return nil })
	do(t, s, http.MethodPost, "/api/v1/errors", SubmitErrorRequest{RawMessage: "Lock wait timeout exceeded; try restarting transaction"})

	rec := do(t, s, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[StatusResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Services["store"])
	require.NotNil(t, resp.Engine)
	assert.Equal(t, 1, resp.Engine.TotalPatterns)

	s.AddCheck("bus", func(context.Context) error { return errors.New("disconnected") })
	resp = decode[StatusResponse](t, do(t, s, http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "error: disconnected", resp.Services["bus"])
}

func TestHandleScrub(t *testing.T) {
	s := setupTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/scrub", ScrubRequest{
		Content: "dial tcp: mysql://app:hunter2@db:3306/shop refused",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ScrubResponse](t, rec)
	assert.NotContains(t, resp.Content, "hunter2")
	assert.GreaterOrEqual(t, resp.FindingsCount, 1)

	rec = do(t, s, http.MethodPost, "/api/v1/scrub", ScrubRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	scrubber, err := secrets.New(nil)
	require.NoError(t, err)
	server, err := NewServer(newTestEngine(t), scrubber, zap.NewNop(), &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start() }()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.True(t, err == nil || errors.Is(err, http.ErrServerClosed))
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
