package secrets

// Result is the outcome of scrubbing one string.
type Result struct {
	// Scrubbed is the input with secrets redacted.
	Scrubbed string `json:"scrubbed"`

	// Findings describe what was redacted. Matched values are never kept.
	Findings []Finding `json:"findings,omitempty"`

	// ByRule counts findings per rule ID.
	ByRule map[string]int `json:"by_rule,omitempty"`
}

// Finding is one redacted span, by offset into the original input.
type Finding struct {
	RuleID     string `json:"rule_id"`
	Severity   string `json:"severity"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the IDs of rules that matched.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	return ids
}
