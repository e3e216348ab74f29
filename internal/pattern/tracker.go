package pattern

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/metrics"
)

// DefaultWindow is the recurrence window used by the selector.
const DefaultWindow = 24 * time.Hour

// Config configures a Tracker.
type Config struct {
	// Window bounds RecurrenceCount when the caller passes zero.
	Window time.Duration
	// EscalateAt is the in-window recurrence that moves a record to ESCALATED.
	EscalateAt int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Tracker records occurrences and outcome statistics per signature.
type Tracker struct {
	store   Store
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.EscalateAt <= 0 {
		cfg.EscalateAt = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
}

// Now returns the tracker clock.
func (t *Tracker) Now() time.Time {
	return t.cfg.Now()
}

// Window returns the configured recurrence window.
func (t *Tracker) Window() time.Duration {
	return t.cfg.Window
}

// RecordOccurrence appends ts to the record for sig, creating it on first
// sight, and advances its state. Occurrences on a quarantined record are
// still counted; quarantine only blocks learning.
func (t *Tracker) RecordOccurrence(ctx context.Context, sig, kind string, ts time.Time) (*Record, error) {
	if ts.IsZero() {
		ts = t.cfg.Now()
	}
	created := false
	rec, err := t.store.Update(ctx, sig, true, func(r *Record) error {
		created = len(r.Occurrences) == 0
		if r.Kind == "" {
			r.Kind = kind
		}
		r.Occurrences = append(r.Occurrences, ts)
		if r.FirstSeen.IsZero() || ts.Before(r.FirstSeen) {
			r.FirstSeen = ts
		}
		if ts.After(r.LastSeen) {
			r.LastSeen = ts
		}

		if len(r.Occurrences) >= 2 {
			r.advance(StateTracking)
		}
		now := t.cfg.Now()
		if r.CountSince(now.Add(-t.cfg.Window), now) >= t.cfg.EscalateAt {
			r.advance(StateEscalated)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording occurrence for %s: %w", sig, err)
	}
	if created {
		t.refreshGauge(ctx)
	}
	return rec, nil
}

// RecurrenceCount counts occurrences of sig within window ending now. A
// zero window uses the configured default. Unknown signatures count 0.
func (t *Tracker) RecurrenceCount(ctx context.Context, sig string, window time.Duration) (int, error) {
	if window <= 0 {
		window = t.cfg.Window
	}
	rec, err := t.store.Get(ctx, sig)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	now := t.cfg.Now()
	return rec.CountSince(now.Add(-window), now), nil
}

// SuccessRate returns the observed success rate of strategy for sig.
func (t *Tracker) SuccessRate(ctx context.Context, sig, strategy string) (float64, error) {
	rec, err := t.store.Get(ctx, sig)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.SuccessRate(strategy), nil
}

// Get returns a snapshot of the record for sig.
func (t *Tracker) Get(ctx context.Context, sig string) (*Record, error) {
	return t.store.Get(ctx, sig)
}

// List returns snapshots of every record.
func (t *Tracker) List(ctx context.Context) ([]*Record, error) {
	return t.store.List(ctx)
}

// Update applies fn to an existing record under its exclusive section and
// validates the result. A mutation that breaks the counters is not
// applied; instead the record is quarantined and ErrInvariantViolation is
// returned.
func (t *Tracker) Update(ctx context.Context, sig string, fn UpdateFunc) (*Record, error) {
	var violation error
	rec, err := t.store.Update(ctx, sig, false, func(r *Record) error {
		violation = nil
		if r.Quarantined {
			return ErrQuarantined
		}
		work := r.Clone()
		if err := fn(work); err != nil {
			return err
		}
		if err := work.checkInvariants(); err != nil {
			violation = err
			r.Quarantined = true
			r.QuarantineReason = err.Error()
			return nil
		}
		*r = *work
		return nil
	})
	if err != nil {
		return nil, err
	}
	if violation != nil {
		t.metrics.InvariantViolations.Inc()
		t.logger.Error("pattern quarantined",
			zap.String("signature", sig),
			zap.Error(violation))
		return rec, fmt.Errorf("%w: %s: %v", ErrInvariantViolation, sig, violation)
	}
	return rec, nil
}

// ResetLearning clears the preferred strategy and returns the record to
// TRACKING. A quarantined record is released and its statistics cleared,
// since they can no longer be trusted.
func (t *Tracker) ResetLearning(ctx context.Context, sig string) (*Record, error) {
	rec, err := t.store.Update(ctx, sig, false, func(r *Record) error {
		r.PreferredStrategy = ""
		r.State = StateTracking
		if r.Quarantined {
			r.Quarantined = false
			r.QuarantineReason = ""
			r.StrategyStats = make(map[string]Stats)
			r.Unknown = 0
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resetting %s: %w", sig, err)
	}
	t.logger.Info("pattern learning reset", zap.String("signature", sig))
	return rec, nil
}

// Prune deletes records last seen before now-retention. LEARNED records
// are kept. Each record is re-checked under its exclusive section, so one
// that saw an occurrence after the listing survives. It returns the number
// of records removed.
func (t *Tracker) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	recs, err := t.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := t.cfg.Now().Add(-retention)
	stale := func(r *Record) bool {
		return r.State != StateLearned && r.LastSeen.Before(cutoff)
	}
	removed := 0
	for _, r := range recs {
		if !stale(r) {
			continue
		}
		ok, err := t.store.DeleteIf(ctx, r.Signature, stale)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		t.logger.Info("pruned stale patterns",
			zap.Int("removed", removed),
			zap.Duration("retention", retention))
		t.refreshGauge(ctx)
	}
	return removed, nil
}

func (t *Tracker) refreshGauge(ctx context.Context) {
	recs, err := t.store.List(ctx)
	if err != nil {
		t.logger.Debug("tracked pattern gauge refresh failed", zap.Error(err))
		return
	}
	t.metrics.TrackedPatterns.Set(float64(len(recs)))
}
