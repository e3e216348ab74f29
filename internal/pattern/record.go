// Package pattern tracks per-signature error history: occurrences,
// per-strategy success statistics, and the learned preferred strategy.
//
// All mutation goes through Store.Update, which gives each signature an
// exclusive section (a per-key mutex in memory, a WATCH transaction in
// redis), so concurrent occurrences and outcomes never lose an update.
package pattern

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned for signatures with no record.
	ErrNotFound = errors.New("pattern not found")

	// ErrInvariantViolation is returned when a mutation left successes
	// above attempts. The record is quarantined.
	ErrInvariantViolation = errors.New("pattern invariant violated")

	// ErrQuarantined is returned when mutating a quarantined record.
	ErrQuarantined = errors.New("pattern quarantined")

	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("pattern update conflict")
)

// State is the lifecycle position of a pattern.
type State string

const (
	StateNew       State = "NEW"
	StateTracking  State = "TRACKING"
	StateEscalated State = "ESCALATED"
	StateLearned   State = "LEARNED"
)

func (s State) rank() int {
	switch s {
	case StateTracking:
		return 1
	case StateEscalated:
		return 2
	case StateLearned:
		return 3
	default:
		return 0
	}
}

// Stats counts decisive outcomes for one strategy.
type Stats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// Rate returns successes/attempts, or 0 with no attempts.
func (s Stats) Rate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// maxOutcomeKeys bounds the per-record outcome dedup memory.
const maxOutcomeKeys = 256

// Record is the history of one error signature.
type Record struct {
	Signature         string           `json:"signature"`
	Kind              string           `json:"kind"`
	Occurrences       []time.Time      `json:"occurrences"`
	StrategyStats     map[string]Stats `json:"strategy_stats"`
	PreferredStrategy string           `json:"preferred_strategy,omitempty"`
	State             State            `json:"state"`
	FirstSeen         time.Time        `json:"first_seen"`
	LastSeen          time.Time        `json:"last_seen"`
	Quarantined       bool             `json:"quarantined,omitempty"`
	QuarantineReason  string           `json:"quarantine_reason,omitempty"`
	// Unknown counts outcomes that ended aborted, inconclusive or timed out.
	Unknown     int      `json:"unknown_results,omitempty"`
	OutcomeKeys []string `json:"outcome_keys,omitempty"`
}

func newRecord(sig string) *Record {
	return &Record{
		Signature:     sig,
		StrategyStats: make(map[string]Stats),
		State:         StateNew,
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Occurrences = append([]time.Time(nil), r.Occurrences...)
	c.OutcomeKeys = append([]string(nil), r.OutcomeKeys...)
	c.StrategyStats = make(map[string]Stats, len(r.StrategyStats))
	for k, v := range r.StrategyStats {
		c.StrategyStats[k] = v
	}
	return &c
}

// CountSince counts occurrences in [from, to].
func (r *Record) CountSince(from, to time.Time) int {
	n := 0
	for _, ts := range r.Occurrences {
		if !ts.Before(from) && !ts.After(to) {
			n++
		}
	}
	return n
}

// SuccessRate returns the success rate of strategy.
func (r *Record) SuccessRate(strategy string) float64 {
	return r.StrategyStats[strategy].Rate()
}

// AttemptedStrategies counts strategies with at least one attempt.
func (r *Record) AttemptedStrategies() int {
	n := 0
	for _, s := range r.StrategyStats {
		if s.Attempts > 0 {
			n++
		}
	}
	return n
}

// Learned reports whether a preferred strategy is set.
func (r *Record) Learned() bool {
	return r.PreferredStrategy != ""
}

// HasOutcome reports whether key was already ingested.
func (r *Record) HasOutcome(key string) bool {
	for _, k := range r.OutcomeKeys {
		if k == key {
			return true
		}
	}
	return false
}

// AddOutcome remembers key, evicting the oldest beyond the bound.
func (r *Record) AddOutcome(key string) {
	r.OutcomeKeys = append(r.OutcomeKeys, key)
	if over := len(r.OutcomeKeys) - maxOutcomeKeys; over > 0 {
		r.OutcomeKeys = append([]string(nil), r.OutcomeKeys[over:]...)
	}
}

// Learn sets the preferred strategy and moves to LEARNED.
func (r *Record) Learn(strategy string) {
	r.PreferredStrategy = strategy
	r.State = StateLearned
}

// advance moves State forward to s; it never moves backwards.
func (r *Record) advance(s State) {
	if s.rank() > r.State.rank() {
		r.State = s
	}
}

// checkInvariants validates the per-strategy counters.
func (r *Record) checkInvariants() error {
	for name, s := range r.StrategyStats {
		if s.Successes > s.Attempts || s.Successes < 0 || s.Attempts < 0 {
			return fmt.Errorf("strategy %s: successes=%d attempts=%d", name, s.Successes, s.Attempts)
		}
	}
	if r.PreferredStrategy != "" && r.State != StateLearned {
		return fmt.Errorf("preferred strategy %s set in state %s", r.PreferredStrategy, r.State)
	}
	return nil
}
