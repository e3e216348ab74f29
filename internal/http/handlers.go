package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/action"
	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/engine"
	"github.com/fyrsmithlabs/resolvd/internal/learner"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
	"github.com/fyrsmithlabs/resolvd/internal/signature"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

// errValidation marks request problems detected by the handlers.
var errValidation = errors.New("invalid request")

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pattern.ErrNotFound), errors.Is(err, engine.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, errValidation),
		errors.Is(err, learner.ErrInvalidOutcome),
		errors.Is(err, action.ErrActionValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, pattern.ErrQuarantined),
		errors.Is(err, pattern.ErrInvariantViolation),
		errors.Is(err, pattern.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// httpError writes err as a JSON error body.
func (s *Server) httpError(c echo.Context, err error) error {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err))
	}
	return c.JSON(code, ErrorResponse{Message: err.Error()})
}

func (s *Server) handleSubmitError(c echo.Context) error {
	var req SubmitErrorRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid error submission", zap.Error(err))
		return s.httpError(c, errors.Join(errValidation, errors.New("invalid request body")))
	}
	if req.RawMessage == "" {
		return s.httpError(c, errors.Join(errValidation, errors.New("raw_message field is required")))
	}

	plan, err := s.service.SubmitError(c.Request().Context(), classifier.ErrorEvent{
		RawMessage: req.RawMessage,
		ErrorCode:  req.ErrorCode,
		Timestamp:  req.Timestamp,
		Context:    req.Context,
	})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, plan)
}

func (s *Server) handleReportOutcome(c echo.Context) error {
	var req OutcomeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid outcome report", zap.Error(err))
		return s.httpError(c, errors.Join(errValidation, errors.New("invalid request body")))
	}
	if req.Signature == "" && req.PlanID == "" {
		return s.httpError(c, errors.Join(errValidation, errors.New("signature or plan_id is required")))
	}

	err := s.service.ReportOutcome(c.Request().Context(), learner.Outcome{
		Signature:  req.Signature,
		Strategy:   strategy.Strategy(req.Strategy),
		Result:     learner.Result(req.Result),
		ReportedAt: req.ReportedAt,
		DurationMs: req.DurationMs,
		Nonce:      req.Nonce,
		PlanID:     req.PlanID,
	})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

func (s *Server) handleListPatterns(c echo.Context) error {
	recs, err := s.service.ListPatternStats(c.Request().Context())
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, PatternListResponse{Patterns: recs, Count: len(recs)})
}

func (s *Server) signatureParam(c echo.Context) (string, error) {
	sig := c.Param("signature")
	if !signature.Valid(sig) {
		return "", errors.Join(errValidation, errors.New("signature must be 12 lowercase hex characters"))
	}
	return sig, nil
}

func (s *Server) handleGetPattern(c echo.Context) error {
	sig, err := s.signatureParam(c)
	if err != nil {
		return s.httpError(c, err)
	}
	rec, err := s.service.GetPatternStats(c.Request().Context(), sig)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleResetLearning(c echo.Context) error {
	sig, err := s.signatureParam(c)
	if err != nil {
		return s.httpError(c, err)
	}
	if err := s.service.ResetLearning(c.Request().Context(), sig); err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, ResetResponse{Signature: sig, ResetAt: time.Now().UTC()})
}

// handleScrub previews what the redaction rules remove from a message
// before it can reach an advisor or a log line.
func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		return s.httpError(c, errors.Join(errValidation, errors.New("invalid request body")))
	}
	if req.Content == "" {
		return s.httpError(c, errors.Join(errValidation, errors.New("content field is required")))
	}

	result := s.scrubber.Scrub(req.Content)
	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: len(result.Findings),
		Rules:         result.RuleIDs(),
	})
}
