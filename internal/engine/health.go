package engine

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

// topPatternLimit bounds HealthReport.TopPatterns.
const topPatternLimit = 5

// PatternSummary is one row of the health report.
type PatternSummary struct {
	Signature         string        `json:"signature"`
	Kind              string        `json:"kind"`
	Occurrences       int           `json:"occurrences"`
	State             pattern.State `json:"state"`
	PreferredStrategy string        `json:"preferred_strategy,omitempty"`
}

// HealthReport summarizes what the engine has seen and how well its plans
// have worked.
type HealthReport struct {
	TotalPatterns      int                      `json:"total_patterns"`
	TotalOccurrences   int                      `json:"total_occurrences"`
	ByState            map[pattern.State]int    `json:"by_state"`
	ByStrategy         map[string]pattern.Stats `json:"by_strategy"`
	UnknownResults     int                      `json:"unknown_results"`
	OverallSuccessRate float64                  `json:"overall_success_rate"`
	Quarantined        int                      `json:"quarantined"`
	ErrorsLastHour     int                      `json:"errors_last_hour"`
	CriticalLastHour   int                      `json:"critical_last_hour"`
	PendingPlans       int                      `json:"pending_plans"`
	TopPatterns        []PatternSummary         `json:"top_patterns"`
}

// Health builds a report over every tracked pattern.
func (e *Engine) Health(ctx context.Context) (*HealthReport, error) {
	recs, err := e.tracker.List(ctx)
	if err != nil {
		return nil, err
	}
	h := &HealthReport{
		TotalPatterns: len(recs),
		ByState:       make(map[pattern.State]int),
		ByStrategy:    make(map[string]pattern.Stats),
		TopPatterns:   []PatternSummary{},
	}
	var attempts, successes int
	for _, r := range recs {
		h.TotalOccurrences += len(r.Occurrences)
		h.ByState[r.State]++
		h.UnknownResults += r.Unknown
		if r.Quarantined {
			h.Quarantined++
		}
		for name, st := range r.StrategyStats {
			agg := h.ByStrategy[name]
			agg.Attempts += st.Attempts
			agg.Successes += st.Successes
			h.ByStrategy[name] = agg
			attempts += st.Attempts
			successes += st.Successes
		}
	}
	h.OverallSuccessRate = pattern.Stats{Attempts: attempts, Successes: successes}.Rate()

	sort.SliceStable(recs, func(i, j int) bool {
		return len(recs[i].Occurrences) > len(recs[j].Occurrences)
	})
	for i, r := range recs {
		if i == topPatternLimit {
			break
		}
		h.TopPatterns = append(h.TopPatterns, PatternSummary{
			Signature:         r.Signature,
			Kind:              r.Kind,
			Occurrences:       len(r.Occurrences),
			State:             r.State,
			PreferredStrategy: r.PreferredStrategy,
		})
	}

	s := e.rates.sample(e.now())
	h.ErrorsLastHour = s.Errors
	h.CriticalLastHour = s.Critical
	h.PendingPlans = e.PendingPlans()
	return h, nil
}
