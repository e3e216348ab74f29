package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
	"github.com/fyrsmithlabs/resolvd/internal/knowledge"
	"github.com/fyrsmithlabs/resolvd/internal/secrets"
	"github.com/fyrsmithlabs/resolvd/internal/strategy"
)

// SelfHeal builds schema, lock and connection descriptors.
type SelfHeal struct {
	// AllowDestructive confirms destructive operations for every request.
	AllowDestructive bool
}

// Generate implements Generator.
func (g SelfHeal) Generate(ctx context.Context, s strategy.Strategy, c classifier.Classification, req Request) (Action, error) {
	confirmed := g.AllowDestructive || req.Confirmed

	switch c.Kind {
	case classifier.KindTableMissing:
		table := EntityName(req.Event)
		if table == "" {
			return Action{}, failure(s, c.Kind, errors.New("no table name in event"))
		}
		schema := InferSchema(table, req.Event.ContextString("query"))
		if confirmed {
			schema.ConfirmRollback()
		}
		return Action{Kind: KindSelfHeal, Schema: schema}, nil

	case classifier.KindDeadlock, classifier.KindLockTimeout:
		lock := &LockDescriptor{
			LockWaitTimeoutSec:     50,
			MonitorIntervalMinutes: 5,
			Diagnostics: []string{
				"SHOW ENGINE INNODB STATUS",
				"SELECT * FROM information_schema.innodb_trx ORDER BY trx_started",
			},
		}
		if c.Kind == classifier.KindLockTimeout {
			lock.LockWaitTimeoutSec = 30
		}
		if req.Recurrence >= 5 {
			lock.MonitorIntervalMinutes = 1
		}
		// Killing the blocker is only proposed when it will be accepted.
		if confirmed {
			lock.KillLongestBlocker = true
			lock.Confirmed = true
		}
		return Action{Kind: KindSelfHeal, Lock: lock}, nil

	case classifier.KindConnection:
		return Action{
			Kind: KindSelfHeal,
			Connection: &ConnectionDescriptor{
				KillIdleAfterSec: 300,
				MaxToKill:        maxToKill(req.Load.ActiveConnections),
				Destructive:      true,
				Confirmed:        confirmed,
				Diagnostics: []string{
					"SHOW PROCESSLIST",
					"SHOW STATUS LIKE 'Threads_connected'",
				},
			},
		}, nil
	}
	return Action{}, failure(s, c.Kind, ErrUnsupported)
}

func maxToKill(active int) int {
	if n := active / 10; n > 10 {
		return n
	}
	return 10
}

// checkKinds maps error kinds to the recurring check that watches them.
var checkKinds = map[classifier.Kind]string{
	classifier.KindTableMissing: "table_existence",
	classifier.KindDeadlock:     "deadlock_monitor",
	classifier.KindLockTimeout:  "lock_wait_monitor",
	classifier.KindConnection:   "connection_usage",
	classifier.KindDiskFull:     "disk_usage",
	classifier.KindSlowQuery:    "slow_query_review",
	classifier.KindTimeout:      "slow_query_review",
}

// ScheduleID derives the stable ID of a schedule.
func ScheduleID(sig, checkKind string) string {
	sum := sha256.Sum256([]byte(sig + ":" + checkKind))
	return "sched-" + hex.EncodeToString(sum[:])[:12]
}

// Preventive builds recurring-check schedules and remembers them, so a
// schedule is created once per signature and check kind.
type Preventive struct {
	kb *knowledge.Base

	mu        sync.Mutex
	schedules map[string]ScheduleDescriptor
}

// NewPreventive creates a preventive generator.
func NewPreventive(kb *knowledge.Base) *Preventive {
	return &Preventive{kb: kb, schedules: make(map[string]ScheduleDescriptor)}
}

// Generate implements Generator.
func (g *Preventive) Generate(ctx context.Context, s strategy.Strategy, c classifier.Classification, req Request) (Action, error) {
	if req.Signature == "" {
		return Action{}, failure(s, c.Kind, errors.New("signature required for a schedule"))
	}
	checkKind, ok := checkKinds[c.Kind]
	if !ok {
		checkKind = "error_recurrence"
	}
	id := ScheduleID(req.Signature, checkKind)

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.schedules[id]; ok {
		return Action{Kind: KindPreventive, Schedule: cloneSchedule(existing)}, nil
	}

	entry := g.kb.Lookup(string(c.Kind)).ForTable(EntityName(req.Event))
	interval := 60
	if req.Recurrence >= 5 {
		interval = 15
	}
	sched := ScheduleDescriptor{
		ID:              id,
		Signature:       req.Signature,
		CheckKind:       checkKind,
		IntervalMinutes: interval,
		Checks:          append([]string(nil), entry.Diagnostics...),
		Measures:        append([]string(nil), entry.Prevention...),
	}
	g.schedules[id] = sched
	return Action{Kind: KindPreventive, Schedule: cloneSchedule(sched)}, nil
}

// Schedules lists registered schedules ordered by ID.
func (g *Preventive) Schedules() []ScheduleDescriptor {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ScheduleDescriptor, 0, len(g.schedules))
	for _, s := range g.schedules {
		out = append(out, *cloneSchedule(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Forget drops every schedule registered for sig.
func (g *Preventive) Forget(sig string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, s := range g.schedules {
		if s.Signature == sig {
			delete(g.schedules, id)
		}
	}
}

func cloneSchedule(s ScheduleDescriptor) *ScheduleDescriptor {
	s.Checks = append([]string(nil), s.Checks...)
	s.Measures = append([]string(nil), s.Measures...)
	return &s
}

// maxPromptMessage bounds how much of the raw message reaches a prompt.
const maxPromptMessage = 2000

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// AIRequest builds the advisor request. No model is called here.
type AIRequest struct {
	kb       *knowledge.Base
	scrubber secrets.Scrubber
}

// NewAIRequest creates the generator. A nil scrubber disables scrubbing.
func NewAIRequest(kb *knowledge.Base, scrubber secrets.Scrubber) *AIRequest {
	if scrubber == nil {
		scrubber = secrets.Noop{}
	}
	return &AIRequest{kb: kb, scrubber: scrubber}
}

// Generate implements Generator.
func (g *AIRequest) Generate(ctx context.Context, s strategy.Strategy, c classifier.Classification, req Request) (Action, error) {
	msg := truncate(g.scrubber.Scrub(req.Event.RawMessage).Scrubbed, maxPromptMessage)
	query := g.scrubber.Scrub(req.Event.ContextString("query")).Scrubbed
	table := EntityName(req.Event)
	guidance := g.kb.Lookup(string(c.Kind)).ForTable(table).Guidance()

	var b strings.Builder
	b.WriteString("You are assisting a database operator. Explain the likely cause of this error and give concrete, safe resolution steps. Prefer read-only diagnostics and mark any destructive statement clearly.\n\n")
	fmt.Fprintf(&b, "Error kind: %s\nSeverity: %s\n", c.Kind, c.Severity)
	if req.Event.ErrorCode != 0 {
		fmt.Fprintf(&b, "Error code: %d\n", req.Event.ErrorCode)
	}
	fmt.Fprintf(&b, "Occurrences in window: %d\n", req.Recurrence)
	fmt.Fprintf(&b, "Message: %s\n", msg)
	if query != "" {
		fmt.Fprintf(&b, "Failed query: %s\n", query)
	}
	if table != "" {
		fmt.Fprintf(&b, "Table: %s\n", table)
	}
	fmt.Fprintf(&b, "\nReference guidance:\n%s\n", guidance)

	return Action{
		Kind: KindAIRequest,
		AIRequest: &AIRequestPayload{
			Prompt:    b.String(),
			Kind:      string(c.Kind),
			Signature: req.Signature,
			Message:   msg,
			Guidance:  guidance,
		},
	}, nil
}

// Immediate builds diagnostic-only emergency runbooks.
type Immediate struct {
	kb *knowledge.Base
}

// NewImmediate creates the generator.
func NewImmediate(kb *knowledge.Base) *Immediate {
	return &Immediate{kb: kb}
}

// Generate implements Generator.
func (g *Immediate) Generate(ctx context.Context, s strategy.Strategy, c classifier.Classification, req Request) (Action, error) {
	entry := g.kb.Lookup(string(c.Kind)).ForTable(EntityName(req.Event))
	return Action{
		Kind: KindImmediateFix,
		Immediate: &ImmediateDescriptor{
			Diagnostics:  append([]string(nil), entry.Diagnostics...),
			Verification: []string{"SELECT 1"},
			Escalate:     entry.Escalate || c.Severity == classifier.SeverityCritical,
		},
	}, nil
}
