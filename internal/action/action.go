// Package action turns a chosen strategy into a concrete, validated action
// descriptor. Descriptors are data: nothing here executes against a
// database.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/loadmon"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

var (
	// ErrActionValidationFailed marks an action the validator rejected.
	ErrActionValidationFailed = errors.New("action validation failed")

	// ErrUnsupported marks a strategy/kind pair no generator handles.
	ErrUnsupported = errors.New("unsupported error kind for strategy")
)

// Kind tags which payload an Action carries.
type Kind string

const (
	KindSelfHeal     Kind = "self_heal"
	KindPreventive   Kind = "preventive"
	KindAIRequest    Kind = "ai_request"
	KindImmediateFix Kind = "immediate_fix"
)

// Action is a tagged variant. Exactly one payload field is set: one of
// Schema, Lock or Connection for self_heal, Schedule for preventive,
// AIRequest for ai_request and Immediate for immediate_fix.
type Action struct {
	Kind       Kind                  `json:"kind"`
	Schema     *SchemaDescriptor     `json:"schema,omitempty"`
	Lock       *LockDescriptor       `json:"lock,omitempty"`
	Connection *ConnectionDescriptor `json:"connection,omitempty"`
	Schedule   *ScheduleDescriptor   `json:"schedule,omitempty"`
	AIRequest  *AIRequestPayload     `json:"ai_request,omitempty"`
	Immediate  *ImmediateDescriptor  `json:"immediate,omitempty"`
}

// Column is one column of an inferred table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// Index is a secondary index.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// SchemaDescriptor describes a table to create for TABLE_NOT_FOUND. The
// DROP TABLE rollback is only attached when Confirmed.
type SchemaDescriptor struct {
	Table        string   `json:"table"`
	Columns      []Column `json:"columns"`
	PrimaryKey   string   `json:"primary_key"`
	Indexes      []Index  `json:"indexes,omitempty"`
	IfNotExists  bool     `json:"if_not_exists"`
	Verification []string `json:"verification,omitempty"`
	Rollback     []string `json:"rollback,omitempty"`
	Confirmed    bool     `json:"confirmed"`
}

// LockDescriptor tunes lock waits and monitoring for DEADLOCK and
// LOCK_TIMEOUT. Killing the longest blocker is destructive.
type LockDescriptor struct {
	LockWaitTimeoutSec     int      `json:"lock_wait_timeout_sec"`
	MonitorIntervalMinutes int      `json:"monitor_interval_minutes"`
	KillLongestBlocker     bool     `json:"kill_longest_blocker"`
	Confirmed              bool     `json:"confirmed"`
	Diagnostics            []string `json:"diagnostics,omitempty"`
}

// ConnectionDescriptor reclaims connection slots by killing idle sessions.
type ConnectionDescriptor struct {
	KillIdleAfterSec int      `json:"kill_idle_after_sec"`
	MaxToKill        int      `json:"max_to_kill"`
	Destructive      bool     `json:"destructive"`
	Confirmed        bool     `json:"confirmed"`
	Diagnostics      []string `json:"diagnostics,omitempty"`
}

// ScheduleDescriptor is a recurring check. ID is derived from Signature
// and CheckKind, so regenerating the same schedule is a no-op.
type ScheduleDescriptor struct {
	ID              string   `json:"id"`
	Signature       string   `json:"signature"`
	CheckKind       string   `json:"check_kind"`
	IntervalMinutes int      `json:"interval_minutes"`
	Checks          []string `json:"checks"`
	Measures        []string `json:"measures,omitempty"`
}

// AIRequestPayload is the request handed to the advisor. Message is
// already scrubbed of credentials.
type AIRequestPayload struct {
	Prompt    string `json:"prompt"`
	Kind      string `json:"kind"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Guidance  string `json:"guidance,omitempty"`
}

// ImmediateDescriptor is a diagnostic-only emergency runbook.
type ImmediateDescriptor struct {
	Diagnostics  []string `json:"diagnostics"`
	Verification []string `json:"verification,omitempty"`
	Escalate     bool     `json:"escalate"`
}

// Request carries what generators may look at beyond the classification.
type Request struct {
	Signature  string
	Event      classifier.ErrorEvent
	Recurrence int
	Load       loadmon.Snapshot
	// Confirmed pre-authorizes destructive operations for this request.
	Confirmed bool
}

// Generator produces an action for one strategy.
type Generator interface {
	Generate(ctx context.Context, s strategy.Strategy, c classifier.Classification, req Request) (Action, error)
}

// GenerationFailure reports why no action could be produced.
type GenerationFailure struct {
	Strategy strategy.Strategy
	Kind     classifier.Kind
	Reason   string
	Err      error
}

func (f *GenerationFailure) Error() string {
	return fmt.Sprintf("generate %s action for %s: %s", f.Strategy, f.Kind, f.Reason)
}

func (f *GenerationFailure) Unwrap() error {
	return f.Err
}

func failure(s strategy.Strategy, k classifier.Kind, err error) *GenerationFailure {
	return &GenerationFailure{Strategy: s, Kind: k, Reason: err.Error(), Err: err}
}
