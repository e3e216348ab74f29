// Package strategy chooses a resolution strategy for a classified error from
// its severity, its recurrence history and any learned preference.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/loadmon"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

// Strategy names a resolution approach.
type Strategy string

const (
	ImmediateFix Strategy = "immediate_fix"
	SelfHealing  Strategy = "self_healing"
	Preventive   Strategy = "preventive"
	AIPowered    Strategy = "ai_powered"
)

// Rules that can decide a selection.
const (
	RuleCriticalOverride = "critical_override"
	RuleLearned          = "learned"
	RuleEscalation       = "escalation_ladder"
	RuleAutoFixCap       = "autofix_cap"
	RuleLoadHold         = "load_hold"
)

// Conservative returns strategies from most to least conservative. It
// breaks ties wherever two strategies score equally.
func Conservative() []Strategy {
	return []Strategy{ImmediateFix, SelfHealing, Preventive, AIPowered}
}

// Parse validates a strategy name.
func Parse(s string) (Strategy, error) {
	for _, st := range Conservative() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Rank is the position of s in Conservative order; lower is more
// conservative. Unknown strategies rank last.
func Rank(s Strategy) int {
	for i, st := range Conservative() {
		if st == s {
			return i
		}
	}
	return len(Conservative())
}

// Ladder is the escalation ladder used for fallback after a rejected
// action: self_healing -> preventive -> ai_powered.
type Ladder struct{}

// Down returns the next rung below s. ok is false at the bottom rung and
// for immediate_fix, which has no fallback.
func (Ladder) Down(s Strategy) (Strategy, bool) {
	switch s {
	case SelfHealing:
		return Preventive, true
	case Preventive:
		return AIPowered, true
	default:
		return "", false
	}
}

// Config holds the ladder thresholds and load hold.
type Config struct {
	// PreventiveAt is the in-window recurrence that selects preventive.
	PreventiveAt int
	// SelfHealAt is the in-window recurrence that selects self_healing.
	SelfHealAt int
	// Window bounds recurrence counting.
	Window time.Duration
	// LoadHoldThreshold holds self_healing at preventive when cpu or memory
	// reaches it. Zero disables the hold.
	LoadHoldThreshold float64
}

// DefaultConfig returns the 1 / 2 / >=3 ladder over 24h with a 0.9 load hold.
func DefaultConfig() Config {
	return Config{
		PreventiveAt:      2,
		SelfHealAt:        3,
		Window:            pattern.DefaultWindow,
		LoadHoldThreshold: 0.9,
	}
}

// History is the read side of the pattern tracker the selector needs.
type History interface {
	Get(ctx context.Context, sig string) (*pattern.Record, error)
	RecurrenceCount(ctx context.Context, sig string, window time.Duration) (int, error)
}

// Decision is the outcome of a selection.
type Decision struct {
	Strategy    Strategy           `json:"strategy"`
	Explanation string             `json:"explanation"`
	Rule        string             `json:"rule"`
	Recurrence  int                `json:"recurrence"`
	Scores      map[string]float64 `json:"scores,omitempty"`
}

// Selector applies the selection rules.
type Selector struct {
	cfg Config
}

// NewSelector creates a selector. Zero ladder and window fields take
// defaults; a zero LoadHoldThreshold disables the load hold.
func NewSelector(cfg Config) *Selector {
	def := DefaultConfig()
	if cfg.PreventiveAt <= 0 {
		cfg.PreventiveAt = def.PreventiveAt
	}
	if cfg.SelfHealAt <= cfg.PreventiveAt {
		cfg.SelfHealAt = cfg.PreventiveAt + 1
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Selector{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// Select chooses a strategy for sig. Rules apply in order:
//  1. critical severity or a critical kind selects immediate_fix;
//  2. a learned preference is used as is;
//  3. the recurrence ladder picks ai_powered, preventive or self_healing,
//     capped at preventive when no automatic fix is possible and held at
//     preventive while the database is under load.
func (s *Selector) Select(ctx context.Context, c classifier.Classification, sig string, h History, load loadmon.Snapshot) (Decision, error) {
	if c.Critical() {
		return Decision{
			Strategy:    ImmediateFix,
			Rule:        RuleCriticalOverride,
			Recurrence:  1,
			Explanation: fmt.Sprintf("Critical %s error (severity %s): immediate diagnostics and escalation", c.Kind, c.Severity),
		}, nil
	}

	rec, err := h.Get(ctx, sig)
	if err != nil && !errors.Is(err, pattern.ErrNotFound) {
		return Decision{}, fmt.Errorf("reading pattern %s: %w", sig, err)
	}

	var scores map[string]float64
	if rec != nil && len(rec.StrategyStats) > 0 {
		scores = make(map[string]float64, len(rec.StrategyStats))
		for name, st := range rec.StrategyStats {
			scores[name] = st.Rate()
		}
	}

	recurrence := 1
	quarantined := rec != nil && rec.Quarantined
	if !quarantined {
		n, err := h.RecurrenceCount(ctx, sig, s.cfg.Window)
		if err != nil {
			return Decision{}, fmt.Errorf("counting recurrence for %s: %w", sig, err)
		}
		if n > recurrence {
			recurrence = n
		}

		if rec != nil && rec.Learned() {
			if learned, err := Parse(rec.PreferredStrategy); err == nil {
				return Decision{
					Strategy:   learned,
					Rule:       RuleLearned,
					Recurrence: recurrence,
					Scores:     scores,
					Explanation: fmt.Sprintf("Strategy adapted from history: %s succeeded %.0f%% of the time for this pattern",
						learned, 100*rec.SuccessRate(rec.PreferredStrategy)),
				}, nil
			}
		}
	}

	d := s.ladder(c, recurrence, load)
	d.Scores = scores
	if quarantined {
		d.Explanation = "Pattern history quarantined, treated as first occurrence. " + d.Explanation
	}
	return d, nil
}

func (s *Selector) ladder(c classifier.Classification, recurrence int, load loadmon.Snapshot) Decision {
	d := Decision{Recurrence: recurrence, Rule: RuleEscalation}
	window := s.cfg.Window.String()

	switch {
	case recurrence >= s.cfg.SelfHealAt:
		d.Strategy = SelfHealing
		d.Explanation = fmt.Sprintf("Recurring error (%d times in %s): applying automatic fix", recurrence, window)
	case recurrence >= s.cfg.PreventiveAt:
		d.Strategy = Preventive
		d.Explanation = fmt.Sprintf("Repeated error (%d times in %s): scheduling preventive monitoring", recurrence, window)
	default:
		d.Strategy = AIPowered
		d.Explanation = "First occurrence: requesting detailed analysis"
		return d
	}

	if d.Strategy == SelfHealing && !c.AutoFixPossible {
		d.Strategy = Preventive
		d.Rule = RuleAutoFixCap
		d.Explanation = fmt.Sprintf("Recurring error (%d times in %s) but %s has no safe automatic fix: scheduling preventive monitoring",
			recurrence, window, c.Kind)
		return d
	}

	if d.Strategy == SelfHealing && load.UnderPressure(s.cfg.LoadHoldThreshold) {
		d.Strategy = Preventive
		d.Rule = RuleLoadHold
		d.Explanation = fmt.Sprintf("Recurring error (%d times in %s) but database under load (cpu %.0f%%, memory %.0f%%): deferring fix, scheduling preventive monitoring",
			recurrence, window, 100*load.CPU, 100*load.Memory)
	}
	return d
}
