package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name  string
		event ErrorEvent
		want  Classification
	}{
		{
			name:  "missing table",
			event: ErrorEvent{RawMessage: "Table 'orders' doesn't exist"},
			want:  Classification{Kind: KindTableMissing, Severity: SeverityMedium, AutoFixPossible: true},
		},
		{
			name:  "connection exhaustion",
			event: ErrorEvent{RawMessage: "Too many connections"},
			want:  Classification{Kind: KindConnection, Severity: SeverityCritical, AutoFixPossible: true},
		},
		{
			name:  "deadlock",
			event: ErrorEvent{RawMessage: "Deadlock found when trying to get lock; try restarting transaction"},
			want:  Classification{Kind: KindDeadlock, Severity: SeverityHigh, AutoFixPossible: true},
		},
		{
			name:  "lock wait before generic timeout",
			event: ErrorEvent{RawMessage: "Lock wait timeout exceeded; try restarting transaction"},
			want:  Classification{Kind: KindLockTimeout, Severity: SeverityHigh, AutoFixPossible: true},
		},
		{
			name:  "generic timeout",
			event: ErrorEvent{RawMessage: "context deadline: read timed out after 30s"},
			want:  Classification{Kind: KindTimeout, Severity: SeverityMedium, AutoFixPossible: true},
		},
		{
			name:  "access denied is not auto-fixable",
			event: ErrorEvent{RawMessage: "Access denied for user 'app'@'10.0.0.4' (using password: YES)"},
			want:  Classification{Kind: KindAccessDenied, Severity: SeverityHigh},
		},
		{
			name:  "syntax",
			event: ErrorEvent{RawMessage: "You have an error in your SQL syntax; check the manual near 'FORM users'"},
			want:  Classification{Kind: KindSyntax, Severity: SeverityLow},
		},
		{
			name:  "duplicate",
			event: ErrorEvent{RawMessage: "Duplicate entry '42' for key 'PRIMARY'"},
			want:  Classification{Kind: KindDuplicateKey, Severity: SeverityLow},
		},
		{
			name:  "disk full",
			event: ErrorEvent{RawMessage: "The table 'events' is full"},
			want:  Classification{Kind: KindDiskFull, Severity: SeverityCritical},
		},
		{
			name:  "matched by code only",
			event: ErrorEvent{RawMessage: "ERROR", ErrorCode: 1146},
			want:  Classification{Kind: KindTableMissing, Severity: SeverityMedium, AutoFixPossible: true},
		},
		{
			name:  "unknown",
			event: ErrorEvent{RawMessage: "something odd happened"},
			want:  Classification{Kind: KindUnknown, Severity: SeverityMedium},
		},
		{
			name:  "empty message",
			event: ErrorEvent{},
			want:  Classification{Kind: KindUnknown, Severity: SeverityMedium},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.event))
		})
	}
}

func TestClassify_FirstRuleWins(t *testing.T) {
	// Both rules match "deadlock timeout"; order decides.
	rules := []Rule{
		{Kind: KindTimeout, Keywords: []string{"timeout"}, Severity: SeverityMedium},
		{Kind: KindDeadlock, Keywords: []string{"deadlock"}, Severity: SeverityHigh},
	}
	got := New(rules).Classify(ErrorEvent{RawMessage: "deadlock timeout"})
	assert.Equal(t, KindTimeout, got.Kind)

	rules[0], rules[1] = rules[1], rules[0]
	got = New(rules).Classify(ErrorEvent{RawMessage: "deadlock timeout"})
	assert.Equal(t, KindDeadlock, got.Kind)
}

func TestClassify_KeywordsCaseInsensitive(t *testing.T) {
	c := New([]Rule{{Kind: KindDeadlock, Keywords: []string{"DeadLock"}, Severity: SeverityHigh}})
	assert.Equal(t, KindDeadlock, c.Classify(ErrorEvent{RawMessage: "DEADLOCK detected"}).Kind)
}

func TestDefaultRules_Order(t *testing.T) {
	rules := New(nil).Rules()
	index := make(map[Kind]int, len(rules))
	for i, r := range rules {
		index[r.Kind] = i
	}
	assert.Equal(t, 0, index[KindConnection])
	assert.Less(t, index[KindLockTimeout], index[KindTimeout])
	assert.Less(t, index[KindDeadlock], index[KindTimeout])
}

func TestClassification_Critical(t *testing.T) {
	assert.True(t, Classification{Kind: KindDiskFull, Severity: SeverityHigh}.Critical())
	assert.True(t, Classification{Kind: KindSyntax, Severity: SeverityCritical}.Critical())
	assert.False(t, Classification{Kind: KindDeadlock, Severity: SeverityHigh}.Critical())
	assert.True(t, Classification{Kind: KindUnknown}.Unknown())
}

func TestClassify_Pure(t *testing.T) {
	c := New(nil)
	ev := ErrorEvent{RawMessage: "Table 'orders' doesn't exist", Context: map[string]any{"table": "orders"}}
	first := c.Classify(ev)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(ev))
	}
	assert.Equal(t, "orders", ev.ContextString("table"))
	assert.Equal(t, "", ev.ContextString("missing"))
}
