package action

import (
	"errors"
	"fmt"
	"regexp"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,63}$`)

// ValidIdentifier reports whether s is a safe unquoted SQL identifier.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

var columnTypes = map[string]bool{
	"BIGINT":        true,
	"INT":           true,
	"VARCHAR(255)":  true,
	"TEXT":          true,
	"DECIMAL(12,2)": true,
	"TIMESTAMP":     true,
	"DATETIME":      true,
	"BOOLEAN":       true,
	"JSON":          true,
}

// Validate checks an action before it leaves the engine. Errors wrap
// ErrActionValidationFailed.
func Validate(a Action) error {
	if err := validate(a); err != nil {
		return fmt.Errorf("%w: %v", ErrActionValidationFailed, err)
	}
	return nil
}

func validate(a Action) error {
	set := 0
	for _, p := range []bool{
		a.Schema != nil, a.Lock != nil, a.Connection != nil,
		a.Schedule != nil, a.AIRequest != nil, a.Immediate != nil,
	} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("action must carry exactly one payload, has %d", set)
	}

	switch a.Kind {
	case KindSelfHeal:
		switch {
		case a.Schema != nil:
			return validateSchema(a.Schema)
		case a.Lock != nil:
			return validateLock(a.Lock)
		case a.Connection != nil:
			return validateConnection(a.Connection)
		}
	case KindPreventive:
		if a.Schedule != nil {
			return validateSchedule(a.Schedule)
		}
	case KindAIRequest:
		if a.AIRequest != nil {
			if a.AIRequest.Prompt == "" {
				return errors.New("ai request prompt is empty")
			}
			return nil
		}
	case KindImmediateFix:
		if a.Immediate != nil {
			if len(a.Immediate.Diagnostics) == 0 {
				return errors.New("immediate fix has no diagnostics")
			}
			return nil
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return fmt.Errorf("payload does not match action kind %q", a.Kind)
}

func validateSchema(s *SchemaDescriptor) error {
	if !ValidIdentifier(s.Table) {
		return fmt.Errorf("invalid table name %q", s.Table)
	}
	if len(s.Columns) == 0 {
		return errors.New("schema has no columns")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if !ValidIdentifier(c.Name) {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		if !columnTypes[c.Type] {
			return fmt.Errorf("column %s: unsupported type %q", c.Name, c.Type)
		}
		seen[c.Name] = true
	}
	if !seen[s.PrimaryKey] {
		return fmt.Errorf("primary key %q is not a column", s.PrimaryKey)
	}
	if len(s.Rollback) > 0 && !s.Confirmed {
		return errors.New("dropping the table on rollback requires confirmation")
	}
	for _, idx := range s.Indexes {
		if !ValidIdentifier(idx.Name) {
			return fmt.Errorf("invalid index name %q", idx.Name)
		}
		if len(idx.Columns) == 0 {
			return fmt.Errorf("index %s has no columns", idx.Name)
		}
		for _, c := range idx.Columns {
			if !seen[c] {
				return fmt.Errorf("index %s references unknown column %q", idx.Name, c)
			}
		}
	}
	return nil
}

func validateLock(l *LockDescriptor) error {
	if l.LockWaitTimeoutSec < 1 || l.LockWaitTimeoutSec > 3600 {
		return fmt.Errorf("lock wait timeout %ds out of range [1,3600]", l.LockWaitTimeoutSec)
	}
	if l.MonitorIntervalMinutes < 1 {
		return errors.New("monitor interval must be positive")
	}
	if l.KillLongestBlocker && !l.Confirmed {
		return errors.New("killing the longest blocker requires confirmation")
	}
	return nil
}

func validateConnection(c *ConnectionDescriptor) error {
	if c.KillIdleAfterSec < 1 {
		return errors.New("idle threshold must be positive")
	}
	if c.MaxToKill < 1 {
		return errors.New("max connections to kill must be positive")
	}
	if c.Destructive && !c.Confirmed {
		return errors.New("killing connections requires confirmation")
	}
	return nil
}

func validateSchedule(s *ScheduleDescriptor) error {
	switch {
	case s.ID == "":
		return errors.New("schedule id is empty")
	case s.Signature == "":
		return errors.New("schedule signature is empty")
	case s.CheckKind == "":
		return errors.New("schedule check kind is empty")
	case s.IntervalMinutes < 1:
		return errors.New("schedule interval must be positive")
	case len(s.Checks) == 0:
		return errors.New("schedule has no checks")
	}
	return nil
}
