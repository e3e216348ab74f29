package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/action"
	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/learner"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

// ResolutionPlan is what SubmitError hands to an executor.
type ResolutionPlan struct {
	ID             string                    `json:"id"`
	Signature      string                    `json:"signature"`
	Classification classifier.Classification `json:"classification"`
	Strategy       strategy.Strategy         `json:"strategy"`
	Rule           string                    `json:"rule"`
	Actions        []action.Action           `json:"actions"`
	Explanation    string                    `json:"explanation"`
	Recurrence     int                       `json:"recurrence"`
	Confidence     float64                   `json:"confidence"`
	CreatedAt      time.Time                 `json:"created_at"`
}

func confidence(c classifier.Classification, d strategy.Decision, chosen strategy.Strategy) float64 {
	conf := 0.8
	switch {
	case c.Unknown():
		conf = 0.3
	case d.Rule == strategy.RuleLearned:
		if rate, ok := d.Scores[string(d.Strategy)]; ok && rate > conf {
			conf = rate
		}
	case d.Rule == strategy.RuleCriticalOverride:
		conf = 0.9
	}
	if chosen != d.Strategy {
		conf *= 0.75
	}
	return conf
}

func (e *Engine) track(p *ResolutionPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[p.ID] = &pendingPlan{
		signature: p.Signature,
		strategy:  p.Strategy,
		createdAt: p.CreatedAt,
		done:      make(chan struct{}),
	}
}

func (e *Engine) markReported(planID string) {
	if planID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pending[planID]; ok && !p.reported {
		p.reported = true
		close(p.done)
	}
}

// AwaitOutcome blocks until an outcome for planID is reported or bound
// elapses. On timeout the plan is recorded as inconclusive and
// ErrExecutorTimeout is returned. A zero bound uses the configured wait.
func (e *Engine) AwaitOutcome(ctx context.Context, planID string, bound time.Duration) error {
	if bound <= 0 {
		bound = e.outcomeWait
	}
	e.mu.Lock()
	p, ok := e.pending[planID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}

	timer := time.NewTimer(bound)
	defer timer.Stop()

	select {
	case <-p.done:
		e.forget(planID)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := e.timeout(ctx, planID, p, bound); err != nil {
		return fmt.Errorf("%w: recording inconclusive outcome: %v", ErrExecutorTimeout, err)
	}
	return fmt.Errorf("%w: plan %s after %s", ErrExecutorTimeout, planID, bound)
}

// timeout records an inconclusive outcome for an unreported plan and
// forgets it.
func (e *Engine) timeout(ctx context.Context, planID string, p *pendingPlan, bound time.Duration) error {
	e.metrics.ExecutorTimeouts.Inc()
	e.logger.Warn("executor outcome timed out",
		zap.String("plan_id", planID),
		zap.String("signature", p.signature),
		zap.Duration("bound", bound))
	err := e.ReportOutcome(ctx, learner.Outcome{
		Signature:  p.signature,
		Strategy:   p.strategy,
		Result:     learner.ResultInconclusive,
		ReportedAt: e.now(),
		Nonce:      "timeout:" + planID,
		PlanID:     planID,
	})
	e.forget(planID)
	return err
}

// expirePending records every unreported plan older than the outcome wait
// as inconclusive.
func (e *Engine) expirePending(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-e.outcomeWait)
	type expired struct {
		id string
		p  *pendingPlan
	}
	var due []expired
	e.mu.Lock()
	for id, p := range e.pending {
		if !p.reported && !p.createdAt.After(cutoff) {
			due = append(due, expired{id, p})
		}
	}
	e.mu.Unlock()

	for _, x := range due {
		if err := e.timeout(ctx, x.id, x.p, e.outcomeWait); err != nil {
			e.logger.Warn("recording executor timeout failed",
				zap.String("plan_id", x.id), zap.Error(err))
		}
	}
	return len(due)
}

func (e *Engine) forget(planID string) {
	e.mu.Lock()
	delete(e.pending, planID)
	e.mu.Unlock()
}

// sweepPending drops reported plans older than twice the outcome wait.
func (e *Engine) sweepPending(now time.Time) int {
	cutoff := now.Add(-2 * e.outcomeWait)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, p := range e.pending {
		if p.createdAt.Before(cutoff) {
			delete(e.pending, id)
			n++
		}
	}
	return n
}

// PendingPlans reports how many plans are awaiting an outcome.
func (e *Engine) PendingPlans() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Run performs periodic maintenance until ctx is cancelled. Plans left
// unreported past the outcome wait are recorded as inconclusive, idle
// patterns are pruned when a retention is configured, and stale plans are
// dropped.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.maintain(ctx)
		}
	}
}

func (e *Engine) maintain(ctx context.Context) {
	e.expirePending(ctx, e.now())
	if _, err := e.tracker.Prune(ctx, e.retention); err != nil {
		e.logger.Warn("pattern prune failed", zap.Error(err))
	}
	if n := e.sweepPending(e.now()); n > 0 {
		e.logger.Debug("dropped stale pending plans", zap.Int("count", n))
	}
}
