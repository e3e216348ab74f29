package http

import (
	"time"

	"github.com/fyrsmithlabs/resolvd/internal/engine"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

// SubmitErrorRequest is the request body for POST /api/v1/errors.
type SubmitErrorRequest struct {
	RawMessage string         `json:"raw_message"`
	ErrorCode  int            `json:"error_code,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// OutcomeRequest is the request body for POST /api/v1/outcomes. Either
// Signature and Strategy, or PlanID, identify what the outcome is about.
type OutcomeRequest struct {
	Signature  string    `json:"signature,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Result     string    `json:"result"`
	ReportedAt time.Time `json:"reported_at,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Nonce      string    `json:"nonce,omitempty"`
	PlanID     string    `json:"plan_id,omitempty"`
}

// AcceptedResponse acknowledges an outcome report.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// PatternListResponse is the response body for GET /api/v1/patterns.
type PatternListResponse struct {
	Patterns []*pattern.Record `json:"patterns"`
	Count    int               `json:"count"`
}

// ResetResponse is the response body for POST /api/v1/patterns/:signature/reset.
type ResetResponse struct {
	Signature string    `json:"signature"`
	ResetAt   time.Time `json:"reset_at"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status   string               `json:"status"`
	Version  string               `json:"version,omitempty"`
	Services map[string]string    `json:"services"`
	Engine   *engine.HealthReport `json:"engine"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules,omitempty"`
}
