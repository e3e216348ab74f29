// Package engine ties classification, pattern tracking, strategy
// selection, action generation and outcome learning into the four
// operations exposed over HTTP, NATS and the CLI.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/action"
	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/knowledge"
	"github.com/fyrsmithlabs/resolvd/internal/learner"
	"github.com/fyrsmithlabs/resolvd/internal/loadmon"
	"github.com/fyrsmithlabs/resolvd/internal/logging"
	"github.com/fyrsmithlabs/resolvd/internal/metrics"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
	"github.com/fyrsmithlabs/resolvd/internal/secrets"
	"github.com/fyrsmithlabs/resolvd/internal/signature"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

// ErrExecutorTimeout is returned by AwaitOutcome when no outcome arrived
// within the bound. The plan is recorded as inconclusive.
var ErrExecutorTimeout = errors.New("executor outcome timed out")

// ErrPlanNotFound is returned by AwaitOutcome for unknown plan IDs.
var ErrPlanNotFound = errors.New("plan not found")

// DefaultOutcomeWait bounds AwaitOutcome when the caller passes zero.
const DefaultOutcomeWait = 10 * time.Minute

// ConfirmDestructiveKey in ErrorEvent.Context pre-confirms destructive
// self-healing for that one event.
const ConfirmDestructiveKey = "confirm_destructive"

// Advisor produces explanatory text for the AI-powered strategy.
type Advisor interface {
	Advise(ctx context.Context, p action.AIRequestPayload) (string, error)
}

// PlanPublisher forwards generated plans to executors.
type PlanPublisher interface {
	PublishPlan(ctx context.Context, p *ResolutionPlan) error
}

// Options wires an Engine. Tracker is required; other nil fields take
// defaults.
type Options struct {
	Classifier *classifier.Classifier
	Tracker    *pattern.Tracker
	Selector   *strategy.Selector
	Actions    *action.Set
	Learner    *learner.Learner
	Advisor    Advisor
	Knowledge  *knowledge.Base
	Scrubber   secrets.Scrubber
	Load       loadmon.Provider
	Publisher  PlanPublisher

	Alerts      AlertConfig
	OutcomeWait time.Duration
	Retention   time.Duration

	Logger *zap.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

// Engine is safe for concurrent use.
type Engine struct {
	classifier *classifier.Classifier
	tracker    *pattern.Tracker
	selector   *strategy.Selector
	actions    *action.Set
	learner    *learner.Learner
	advisor    Advisor
	kb         *knowledge.Base
	scrubber   secrets.Scrubber
	load       loadmon.Provider
	publisher  PlanPublisher

	alerts      AlertConfig
	rates       rateWindow
	outcomeWait time.Duration
	retention   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingPlan

	logger  *zap.Logger
	tracer  trace.Tracer
	inst    *instruments
	metrics *metrics.Metrics
}

type pendingPlan struct {
	signature string
	strategy  strategy.Strategy
	createdAt time.Time
	done      chan struct{}
	reported  bool
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Tracker == nil {
		return nil, errors.New("engine requires a pattern tracker")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	kb := opts.Knowledge
	if kb == nil {
		var err error
		if kb, err = knowledge.Builtin(); err != nil {
			return nil, err
		}
	}
	scrubber := opts.Scrubber
	if scrubber == nil {
		scrubber = secrets.Noop{}
	}
	e := &Engine{
		classifier:  opts.Classifier,
		tracker:     opts.Tracker,
		selector:    opts.Selector,
		actions:     opts.Actions,
		learner:     opts.Learner,
		advisor:     opts.Advisor,
		kb:          kb,
		scrubber:    scrubber,
		load:        opts.Load,
		publisher:   opts.Publisher,
		alerts:      opts.Alerts,
		outcomeWait: opts.OutcomeWait,
		retention:   opts.Retention,
		pending:     make(map[string]*pendingPlan),
		logger:      logger,
		tracer:      opts.Tracer,
		metrics:     metrics.New(),
	}
	if e.classifier == nil {
		e.classifier = classifier.New(nil)
	}
	if e.selector == nil {
		sc := strategy.DefaultConfig()
		sc.Window = opts.Tracker.Window()
		e.selector = strategy.NewSelector(sc)
	}
	if e.actions == nil {
		e.actions = action.NewSet(action.Options{Knowledge: kb, Scrubber: scrubber})
	}
	if e.learner == nil {
		e.learner = learner.New(opts.Tracker, learner.DefaultThreshold, logger)
	}
	if e.load == nil {
		e.load = loadmon.NewStatic(loadmon.Snapshot{})
	}
	if e.outcomeWait <= 0 {
		e.outcomeWait = DefaultOutcomeWait
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(InstrumentationName)
	}
	inst, err := newInstruments(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("creating engine instruments: %w", err)
	}
	e.inst = inst
	return e, nil
}

// SetPublisher attaches a plan publisher after construction, for wiring
// where the publisher itself depends on the engine.
func (e *Engine) SetPublisher(p PlanPublisher) {
	e.mu.Lock()
	e.publisher = p
	e.mu.Unlock()
}

func (e *Engine) now() time.Time {
	return e.tracker.Now()
}

// SubmitError classifies ev, records the occurrence, selects a strategy and
// returns a resolution plan. Ambiguous classification never fails; it
// lowers the plan's confidence instead.
func (e *Engine) SubmitError(ctx context.Context, ev classifier.ErrorEvent) (plan *ResolutionPlan, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.SubmitError")
	defer func() { endSpan(span, err) }()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	c := e.classifier.Classify(ev)
	sig := signature.Generate(string(c.Kind), ev.RawMessage).String()
	span.SetAttributes(
		attribute.String("resolvd.kind", string(c.Kind)),
		attribute.String("resolvd.severity", string(c.Severity)),
		attribute.String("resolvd.signature", sig),
	)
	e.metrics.ErrorsSubmitted.WithLabelValues(string(c.Kind), string(c.Severity)).Inc()
	ctx = logging.WithErrorKind(logging.WithSignature(ctx, sig), string(c.Kind))

	if _, err := e.tracker.RecordOccurrence(ctx, sig, string(c.Kind), ev.Timestamp); err != nil {
		return nil, err
	}
	e.checkRates(ctx, c)

	load, lerr := e.load.Snapshot(ctx)
	if lerr != nil {
		e.logger.Warn("load snapshot unavailable, assuming idle",
			zap.String("signature", sig), zap.Error(lerr))
		load = loadmon.Snapshot{}
	}

	decision, err := e.selector.Select(ctx, c, sig, e.tracker, load)
	if err != nil {
		return nil, fmt.Errorf("selecting strategy for %s: %w", sig, err)
	}

	req := action.Request{
		Signature:  sig,
		Event:      ev,
		Recurrence: decision.Recurrence,
		Load:       load,
		Confirmed:  confirmed(ev),
	}
	chosen, act, fallbackNote, err := e.generate(ctx, decision.Strategy, c, req)
	if err != nil {
		return nil, err
	}

	explanation := decision.Explanation
	if fallbackNote != "" {
		explanation += " " + fallbackNote
	}
	if act.AIRequest != nil {
		text, err := e.advise(ctx, c, ev, *act.AIRequest)
		if err != nil {
			return nil, err
		}
		explanation += "\n\n" + text
	}

	plan = &ResolutionPlan{
		ID:             uuid.NewString(),
		Signature:      sig,
		Classification: c,
		Strategy:       chosen,
		Rule:           decision.Rule,
		Actions:        []action.Action{act},
		Explanation:    explanation,
		Recurrence:     decision.Recurrence,
		Confidence:     confidence(c, decision, chosen),
		CreatedAt:      e.now(),
	}
	if c.Unknown() {
		plan.Explanation = "Low confidence: " + plan.Explanation
	}
	span.SetAttributes(
		attribute.String("resolvd.strategy", string(chosen)),
		attribute.String("resolvd.plan_id", plan.ID),
	)

	e.track(plan)
	e.metrics.PlansGenerated.WithLabelValues(string(chosen), decision.Rule).Inc()
	e.inst.recordPlan(ctx, string(chosen), decision.Rule)
	e.logger.Info("resolution plan generated",
		append(logging.ContextFields(ctx),
			zap.String("plan_id", plan.ID),
			zap.String("strategy", string(chosen)),
			zap.String("rule", decision.Rule),
			zap.Int("recurrence", decision.Recurrence))...)

	e.mu.Lock()
	pub := e.publisher
	e.mu.Unlock()
	if pub != nil {
		if err := pub.PublishPlan(ctx, plan); err != nil {
			e.logger.Warn("plan publish failed", zap.String("plan_id", plan.ID), zap.Error(err))
		}
	}
	return plan, nil
}

// generate walks down the ladder until a generator produces a valid action.
func (e *Engine) generate(ctx context.Context, st strategy.Strategy, c classifier.Classification, req action.Request) (strategy.Strategy, action.Action, string, error) {
	original := st
	var lastErr error
	for {
		act, err := e.actions.Generate(ctx, st, c, req)
		if err == nil {
			note := ""
			if st != original {
				note = fmt.Sprintf("Fell back from %s to %s: %v.", original, st, lastErr)
			}
			return st, act, note, nil
		}
		lastErr = err
		next, ok := strategy.Ladder{}.Down(st)
		if !ok {
			return "", action.Action{}, "", fmt.Errorf("no action for %s: %w", req.Signature, err)
		}
		e.logger.Warn("action generation failed, falling back",
			zap.String("signature", req.Signature),
			zap.String("from", string(st)),
			zap.String("to", string(next)),
			zap.Error(err))
		e.metrics.ActionFallbacks.WithLabelValues(string(st), string(next)).Inc()
		e.inst.recordFallback(ctx, string(st), string(next))
		st = next
	}
}

// advise asks the advisor for text and substitutes the knowledge-base
// emergency explanation on any failure. Only cancellation of ctx itself is
// returned as an error.
func (e *Engine) advise(ctx context.Context, c classifier.Classification, ev classifier.ErrorEvent, p action.AIRequestPayload) (string, error) {
	if e.advisor != nil {
		ctx, span := e.tracer.Start(ctx, "engine.Advise")
		start := time.Now()
		text, err := e.advisor.Advise(ctx, p)
		e.inst.recordAdvisor(ctx, time.Since(start), err == nil)
		endSpan(span, err)
		if err == nil {
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.Warn("advisor unavailable, using fallback explanation",
			zap.String("signature", p.Signature), zap.Error(err))
	}
	msg := e.scrubber.Scrub(ev.RawMessage).Scrubbed
	return e.kb.Fallback(string(c.Kind), msg, action.EntityName(ev)), nil
}

func (e *Engine) checkRates(ctx context.Context, c classifier.Classification) {
	critical := c.Critical()
	s := e.rates.observe(e.now(), critical)
	errRate, critRate := e.alerts.crossed(s, critical)
	if errRate {
		e.metrics.ErrorRateAlerts.WithLabelValues("error_rate").Inc()
		e.logger.Warn("error rate threshold exceeded",
			append(logging.ContextFields(ctx),
				zap.Int("errors_last_hour", s.Errors),
				zap.Int("threshold", e.alerts.ErrorRatePerHour))...)
	}
	if critRate {
		e.metrics.ErrorRateAlerts.WithLabelValues("critical_rate").Inc()
		e.logger.Warn("critical error rate threshold exceeded",
			append(logging.ContextFields(ctx),
				zap.Int("critical_last_hour", s.Critical),
				zap.Int("threshold", e.alerts.CriticalPerHour))...)
	}
}

func confirmed(ev classifier.ErrorEvent) bool {
	v, ok := ev.Context[ConfirmDestructiveKey].(bool)
	return ok && v
}

// ReportOutcome applies an executor outcome. A duplicate report is
// accepted and ignored.
func (e *Engine) ReportOutcome(ctx context.Context, o learner.Outcome) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReportOutcome")
	defer func() { endSpan(span, err) }()

	if o.ReportedAt.IsZero() {
		o.ReportedAt = e.now()
	}
	if o.PlanID != "" {
		reported := false
		e.mu.Lock()
		if p, ok := e.pending[o.PlanID]; ok {
			reported = p.reported
			if o.Signature == "" {
				o.Signature = p.signature
			}
			if o.Strategy == "" {
				o.Strategy = p.strategy
			}
		}
		e.mu.Unlock()
		if reported {
			// One outcome per plan; later reports are ignored.
			e.metrics.DuplicateOutcomes.Inc()
			e.logger.Debug("outcome for already reported plan ignored",
				zap.String("plan_id", o.PlanID),
				zap.String("result", string(o.Result)))
			return nil
		}
		if o.Signature == "" {
			return fmt.Errorf("%w: %s", ErrPlanNotFound, o.PlanID)
		}
	}
	span.SetAttributes(
		attribute.String("resolvd.signature", o.Signature),
		attribute.String("resolvd.strategy", string(o.Strategy)),
		attribute.String("resolvd.result", string(o.Result)),
	)

	_, err = e.learner.RecordOutcome(ctx, o)
	if errors.Is(err, learner.ErrDuplicateOutcome) {
		e.markReported(o.PlanID)
		return nil
	}
	if err != nil {
		return err
	}
	e.markReported(o.PlanID)
	e.inst.recordOutcome(ctx, string(o.Strategy), string(o.Result))
	return nil
}

// GetPatternStats returns the record for sig.
func (e *Engine) GetPatternStats(ctx context.Context, sig string) (*pattern.Record, error) {
	return e.tracker.Get(ctx, sig)
}

// ListPatternStats returns every record ordered by signature.
func (e *Engine) ListPatternStats(ctx context.Context) ([]*pattern.Record, error) {
	return e.tracker.List(ctx)
}

// ResetLearning clears the learned preference for sig and forgets its
// preventive schedules.
func (e *Engine) ResetLearning(ctx context.Context, sig string) error {
	if _, err := e.tracker.ResetLearning(ctx, sig); err != nil {
		return err
	}
	e.actions.Preventive().Forget(sig)
	return nil
}
