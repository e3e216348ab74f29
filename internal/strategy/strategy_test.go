package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/loadmon"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	deadlock     = classifier.Classification{Kind: classifier.KindDeadlock, Severity: classifier.SeverityHigh, AutoFixPossible: true}
	syntax       = classifier.Classification{Kind: classifier.KindSyntax, Severity: classifier.SeverityLow}
	connection   = classifier.Classification{Kind: classifier.KindConnection, Severity: classifier.SeverityCritical, AutoFixPossible: true}
	criticalOnly = classifier.Classification{Kind: classifier.KindTimeout, Severity: classifier.SeverityCritical}
	idle         = loadmon.Snapshot{CPU: 0.2, Memory: 0.3}
)

func newTracker() *pattern.Tracker {
	return pattern.NewTracker(pattern.NewMemoryStore(), pattern.Config{Now: func() time.Time { return now }}, zap.NewNop())
}

func occur(t *testing.T, tr *pattern.Tracker, sig string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := tr.RecordOccurrence(context.Background(), sig, "DEADLOCK", now.Add(-time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
}

func TestSelect_Ladder(t *testing.T) {
	tests := []struct {
		name        string
		occurrences int
		class       classifier.Classification
		load        loadmon.Snapshot
		want        Strategy
		rule        string
	}{
		{"first occurrence", 1, deadlock, idle, AIPowered, RuleEscalation},
		{"second occurrence", 2, deadlock, idle, Preventive, RuleEscalation},
		{"third occurrence", 3, deadlock, idle, SelfHealing, RuleEscalation},
		{"many occurrences", 9, deadlock, idle, SelfHealing, RuleEscalation},
		{"no autofix caps at preventive", 5, syntax, idle, Preventive, RuleAutoFixCap},
		{"load holds self healing", 3, deadlock, loadmon.Snapshot{CPU: 0.95}, Preventive, RuleLoadHold},
		{"load does not affect preventive", 2, deadlock, loadmon.Snapshot{Memory: 0.99}, Preventive, RuleEscalation},
		{"critical kind overrides", 7, connection, idle, ImmediateFix, RuleCriticalOverride},
		{"critical severity overrides", 1, criticalOnly, idle, ImmediateFix, RuleCriticalOverride},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker()
			occur(t, tr, "abcabcabcabc", tt.occurrences)

			d, err := NewSelector(DefaultConfig()).Select(context.Background(), tt.class, "abcabcabcabc", tr, tt.load)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Strategy)
			assert.Equal(t, tt.rule, d.Rule)
			assert.NotEmpty(t, d.Explanation)
		})
	}
}

func TestSelect_UnknownSignature(t *testing.T) {
	d, err := NewSelector(DefaultConfig()).Select(context.Background(), deadlock, "000000000000", newTracker(), idle)
	require.NoError(t, err)
	assert.Equal(t, AIPowered, d.Strategy)
	assert.Equal(t, 1, d.Recurrence)
}

func TestSelect_Learned(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	occur(t, tr, "abcabcabcabc", 5)
	_, err := tr.Update(ctx, "abcabcabcabc", func(r *pattern.Record) error {
		r.StrategyStats[string(Preventive)] = pattern.Stats{Attempts: 5, Successes: 5}
		r.StrategyStats[string(SelfHealing)] = pattern.Stats{Attempts: 5, Successes: 1}
		r.Learn(string(Preventive))
		return nil
	})
	require.NoError(t, err)

	d, err := NewSelector(DefaultConfig()).Select(ctx, deadlock, "abcabcabcabc", tr, idle)
	require.NoError(t, err)
	assert.Equal(t, Preventive, d.Strategy)
	assert.Equal(t, RuleLearned, d.Rule)
	assert.Contains(t, d.Explanation, "adapted from history")
	assert.InDelta(t, 1.0, d.Scores["preventive"], 1e-9)
	assert.InDelta(t, 0.2, d.Scores["self_healing"], 1e-9)

	// Critical still wins over learned.
	d, err = NewSelector(DefaultConfig()).Select(ctx, criticalOnly, "abcabcabcabc", tr, idle)
	require.NoError(t, err)
	assert.Equal(t, ImmediateFix, d.Strategy)
}

func TestSelect_QuarantinedTreatedAsFirst(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	occur(t, tr, "abcabcabcabc", 4)
	_, err := tr.Update(ctx, "abcabcabcabc", func(r *pattern.Record) error {
		r.StrategyStats["preventive"] = pattern.Stats{Attempts: 1, Successes: 3}
		return nil
	})
	require.ErrorIs(t, err, pattern.ErrInvariantViolation)

	d, err := NewSelector(DefaultConfig()).Select(ctx, deadlock, "abcabcabcabc", tr, idle)
	require.NoError(t, err)
	assert.Equal(t, AIPowered, d.Strategy)
	assert.Equal(t, 1, d.Recurrence)
	assert.Contains(t, d.Explanation, "quarantined")
}

func TestSelect_CustomThresholds(t *testing.T) {
	tr := newTracker()
	occur(t, tr, "abcabcabcabc", 3)

	s := NewSelector(Config{PreventiveAt: 3, SelfHealAt: 5})
	d, err := s.Select(context.Background(), deadlock, "abcabcabcabc", tr, idle)
	require.NoError(t, err)
	assert.Equal(t, Preventive, d.Strategy)
	assert.Equal(t, 3, d.Recurrence)
}

type failingHistory struct{}

func (failingHistory) Get(ctx context.Context, sig string) (*pattern.Record, error) {
	return nil, errors.New("store down")
}

func (failingHistory) RecurrenceCount(ctx context.Context, sig string, window time.Duration) (int, error) {
	return 0, errors.New("store down")
}

func TestSelect_StoreError(t *testing.T) {
	_, err := NewSelector(DefaultConfig()).Select(context.Background(), deadlock, "abcabcabcabc", failingHistory{}, idle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")

	d, err := NewSelector(DefaultConfig()).Select(context.Background(), connection, "abcabcabcabc", failingHistory{}, idle)
	require.NoError(t, err, "critical override needs no history")
	assert.Equal(t, ImmediateFix, d.Strategy)
}

func TestLadder_Down(t *testing.T) {
	var l Ladder
	next, ok := l.Down(SelfHealing)
	assert.True(t, ok)
	assert.Equal(t, Preventive, next)

	next, ok = l.Down(Preventive)
	assert.True(t, ok)
	assert.Equal(t, AIPowered, next)

	_, ok = l.Down(AIPowered)
	assert.False(t, ok)
	_, ok = l.Down(ImmediateFix)
	assert.False(t, ok)
}

func TestConservativeOrder(t *testing.T) {
	assert.Equal(t, []Strategy{ImmediateFix, SelfHealing, Preventive, AIPowered}, Conservative())
	assert.Less(t, Rank(SelfHealing), Rank(Preventive))
	assert.Equal(t, 4, Rank("nope"))
}

func TestParse(t *testing.T) {
	s, err := Parse("preventive")
	require.NoError(t, err)
	assert.Equal(t, Preventive, s)

	_, err = Parse("yolo")
	assert.Error(t, err)
}
