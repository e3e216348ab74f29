// Package classifier maps raw database errors onto a kind, a severity and
// whether an automatic fix can be attempted.
//
// Classification walks an ordered rule table and stops at the first rule
// whose keywords occur in the lowercased message or whose error codes
// include the event's code. Rule order is configuration: earlier rules win.
package classifier

import (
	"errors"
	"strings"
	"time"
)

// ErrClassificationUnknown marks an event no rule matched. It is
// informational: unknown errors still produce a plan.
var ErrClassificationUnknown = errors.New("error classification unknown")

// Kind identifies a class of database error.
type Kind string

const (
	KindConnection   Kind = "CONNECTION_ERROR"
	KindDiskFull     Kind = "DISK_FULL"
	KindDeadlock     Kind = "DEADLOCK"
	KindLockTimeout  Kind = "LOCK_TIMEOUT"
	KindTableMissing Kind = "TABLE_NOT_FOUND"
	KindAccessDenied Kind = "ACCESS_DENIED"
	KindSyntax       Kind = "SYNTAX_ERROR"
	KindDuplicateKey Kind = "DUPLICATE_KEY"
	KindTimeout      Kind = "TIMEOUT"
	KindSlowQuery    Kind = "SLOW_QUERY"
	KindUnknown      Kind = "UNKNOWN"
)

// Severity ranks how urgently an error needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorEvent is one raw error as reported by a database connector.
type ErrorEvent struct {
	RawMessage string         `json:"raw_message"`
	ErrorCode  int            `json:"error_code,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Context    map[string]any `json:"context,omitempty"`
}

// ContextString returns Context[key] when it is a non-empty string.
func (e ErrorEvent) ContextString(key string) string {
	if s, ok := e.Context[key].(string); ok {
		return s
	}
	return ""
}

// Classification is the immutable result of classifying an event.
type Classification struct {
	Kind            Kind     `json:"kind"`
	Severity        Severity `json:"severity"`
	AutoFixPossible bool     `json:"auto_fix_possible"`
}

// Unknown reports whether no rule matched.
func (c Classification) Unknown() bool {
	return c.Kind == KindUnknown
}

// Critical reports whether c bypasses recurrence-based strategy selection.
func (c Classification) Critical() bool {
	return c.Severity == SeverityCritical || CriticalKinds[c.Kind]
}

// CriticalKinds always preempt history-based strategy selection.
var CriticalKinds = map[Kind]bool{
	KindConnection: true,
	KindDiskFull:   true,
}

// Rule is one row of the classification table.
type Rule struct {
	Kind            Kind
	Keywords        []string
	Codes           []int
	Severity        Severity
	AutoFixPossible bool
}

func (r Rule) matches(text string, code int) bool {
	for _, c := range r.Codes {
		if code != 0 && c == code {
			return true
		}
	}
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rule table. Connection exhaustion is
// checked first so "too many connections" never falls through to a
// generic timeout, and lock wait timeouts precede plain timeouts.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:            KindConnection,
			Keywords:        []string{"too many connections", "connection refused", "lost connection", "can't connect", "connection reset", "server has gone away"},
			Codes:           []int{1040, 2002, 2003, 2006, 2013},
			Severity:        SeverityCritical,
			AutoFixPossible: true,
		},
		{
			Kind:     KindDiskFull,
			Keywords: []string{"disk full", "no space left", "is full"},
			Codes:    []int{1114, 1021},
			Severity: SeverityCritical,
		},
		{
			Kind:            KindDeadlock,
			Keywords:        []string{"deadlock"},
			Codes:           []int{1213},
			Severity:        SeverityHigh,
			AutoFixPossible: true,
		},
		{
			Kind:            KindLockTimeout,
			Keywords:        []string{"lock wait timeout"},
			Codes:           []int{1205},
			Severity:        SeverityHigh,
			AutoFixPossible: true,
		},
		{
			Kind:            KindTableMissing,
			Keywords:        []string{"doesn't exist", "does not exist", "no such table", "unknown table"},
			Codes:           []int{1146, 1051},
			Severity:        SeverityMedium,
			AutoFixPossible: true,
		},
		{
			Kind:     KindAccessDenied,
			Keywords: []string{"access denied", "permission denied"},
			Codes:    []int{1045, 1142, 1044},
			Severity: SeverityHigh,
		},
		{
			Kind:     KindSyntax,
			Keywords: []string{"syntax error", "error in your sql syntax"},
			Codes:    []int{1064},
			Severity: SeverityLow,
		},
		{
			Kind:     KindDuplicateKey,
			Keywords: []string{"duplicate entry", "duplicate key"},
			Codes:    []int{1062},
			Severity: SeverityLow,
		},
		{
			Kind:            KindTimeout,
			Keywords:        []string{"timeout", "timed out"},
			Severity:        SeverityMedium,
			AutoFixPossible: true,
		},
		{
			Kind:            KindSlowQuery,
			Keywords:        []string{"slow query", "query execution was interrupted"},
			Codes:           []int{3024},
			Severity:        SeverityMedium,
			AutoFixPossible: true,
		},
	}
}

// Classifier holds an ordered rule table. It is immutable and safe for
// concurrent use.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier over rules, or DefaultRules when rules is empty.
// Keywords are lowercased once here.
func New(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	owned := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		r.Keywords = kws
		owned[i] = r
	}
	return &Classifier{rules: owned}
}

// Rules returns a copy of the rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the classification of the first matching rule, or
// UNKNOWN/medium/not auto-fixable.
func (c *Classifier) Classify(ev ErrorEvent) Classification {
	text := strings.ToLower(ev.RawMessage)
	for _, r := range c.rules {
		if r.matches(text, ev.ErrorCode) {
			return Classification{Kind: r.Kind, Severity: r.Severity, AutoFixPossible: r.AutoFixPossible}
		}
	}
	return Classification{Kind: KindUnknown, Severity: SeverityMedium}
}
