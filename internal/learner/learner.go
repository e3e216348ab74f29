// Package learner folds executor outcomes into pattern statistics and
// adopts a preferred strategy once one has proven itself.
package learner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/metrics"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

var (
	// ErrDuplicateOutcome is returned for an outcome already ingested.
	ErrDuplicateOutcome = errors.New("duplicate outcome")

	// ErrInvalidOutcome wraps every validation failure.
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// DefaultThreshold is the success rate a strategy must exceed to be adopted.
const DefaultThreshold = 0.7

// Result is the executor's verdict on a plan.
type Result string

const (
	ResultSuccess      Result = "success"
	ResultFailure      Result = "failure"
	ResultAborted      Result = "aborted"
	ResultInconclusive Result = "inconclusive"
)

// Decisive reports whether r counts toward strategy statistics.
func (r Result) Decisive() bool {
	return r == ResultSuccess || r == ResultFailure
}

// ParseResult validates a result name.
func ParseResult(s string) (Result, error) {
	switch r := Result(s); r {
	case ResultSuccess, ResultFailure, ResultAborted, ResultInconclusive:
		return r, nil
	}
	return "", fmt.Errorf("unknown outcome result %q", s)
}

// Outcome is one executor report.
type Outcome struct {
	Signature  string            `json:"signature"`
	Strategy   strategy.Strategy `json:"strategy"`
	Result     Result            `json:"result"`
	ReportedAt time.Time         `json:"reported_at"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Nonce      string            `json:"nonce,omitempty"`
	PlanID     string            `json:"plan_id,omitempty"`
}

// Key identifies an outcome for deduplication. Reports tied to a plan are
// keyed on the plan, so a retry with a fresh timestamp is still a duplicate.
func (o Outcome) Key() string {
	if o.PlanID != "" {
		return "plan:" + o.PlanID + "|" + o.Nonce
	}
	return o.Signature + "|" + string(o.Strategy) + "|" + strconv.FormatInt(o.ReportedAt.UnixNano(), 10) + "|" + o.Nonce
}

// Validate checks required fields.
func (o Outcome) Validate() error {
	if o.Signature == "" {
		return fmt.Errorf("%w: signature is required", ErrInvalidOutcome)
	}
	if _, err := strategy.Parse(string(o.Strategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}
	if _, err := ParseResult(string(o.Result)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}
	if o.ReportedAt.IsZero() {
		return fmt.Errorf("%w: reported_at is required", ErrInvalidOutcome)
	}
	return nil
}

// Updater is the write side of the pattern tracker.
type Updater interface {
	Update(ctx context.Context, sig string, fn pattern.UpdateFunc) (*pattern.Record, error)
}

// Learner applies outcomes.
type Learner struct {
	tracker   Updater
	threshold float64
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a learner. A threshold outside (0,1) uses DefaultThreshold.
func New(tracker Updater, threshold float64, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Learner{
		tracker:   tracker,
		threshold: threshold,
		logger:    logger,
		metrics:   metrics.New(),
	}
}

// RecordOutcome ingests o exactly once. Aborted and inconclusive results
// are remembered but leave success statistics untouched. After a decisive
// result, a pattern that has tried at least two strategies adopts the best
// one if its rate exceeds the threshold.
func (l *Learner) RecordOutcome(ctx context.Context, o Outcome) (*pattern.Record, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	key := o.Key()
	var learned strategy.Strategy

	rec, err := l.tracker.Update(ctx, o.Signature, func(r *pattern.Record) error {
		learned = ""
		if r.HasOutcome(key) {
			return ErrDuplicateOutcome
		}
		r.AddOutcome(key)

		if !o.Result.Decisive() {
			r.Unknown++
			return nil
		}
		st := r.StrategyStats[string(o.Strategy)]
		st.Attempts++
		if o.Result == ResultSuccess {
			st.Successes++
		}
		r.StrategyStats[string(o.Strategy)] = st

		if !r.Learned() {
			if best, ok := Adapt(r, l.threshold); ok {
				r.Learn(string(best))
				learned = best
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateOutcome) {
		l.metrics.DuplicateOutcomes.Inc()
		l.logger.Debug("duplicate outcome ignored",
			zap.String("signature", o.Signature),
			zap.String("strategy", string(o.Strategy)),
			zap.String("nonce", o.Nonce))
		return nil, err
	}
	if err != nil {
		return rec, err
	}

	l.metrics.OutcomesReported.WithLabelValues(string(o.Strategy), string(o.Result)).Inc()
	if learned != "" {
		l.metrics.PatternsLearned.Inc()
		l.logger.Info("pattern learned preferred strategy",
			zap.String("signature", o.Signature),
			zap.String("strategy", string(learned)),
			zap.Float64("success_rate", rec.SuccessRate(string(learned))))
	}
	return rec, nil
}

// Adapt returns the strategy with the highest success rate when at least
// two strategies have been attempted and that rate exceeds threshold.
// Equal rates go to the more conservative strategy.
func Adapt(r *pattern.Record, threshold float64) (strategy.Strategy, bool) {
	if r.AttemptedStrategies() < 2 {
		return "", false
	}
	var (
		best     strategy.Strategy
		bestRate = -1.0
	)
	for _, st := range strategy.Conservative() {
		stats, ok := r.StrategyStats[string(st)]
		if !ok || stats.Attempts == 0 {
			continue
		}
		// Strict comparison keeps the earlier, more conservative strategy.
		if rate := stats.Rate(); rate > bestRate {
			best, bestRate = st, rate
		}
	}
	if bestRate > threshold {
		return best, true
	}
	return "", false
}
