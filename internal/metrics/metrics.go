// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the resolution engine.
type Metrics struct {
	// Ingestion
	ErrorsSubmitted *prometheus.CounterVec
	ErrorRateAlerts *prometheus.CounterVec

	// Strategy and plan generation
	PlansGenerated  *prometheus.CounterVec
	ActionFallbacks *prometheus.CounterVec

	// Learning
	OutcomesReported  *prometheus.CounterVec
	DuplicateOutcomes prometheus.Counter
	ExecutorTimeouts  prometheus.Counter
	PatternsLearned   prometheus.Counter

	// Pattern store
	TrackedPatterns     prometheus.Gauge
	InvariantViolations prometheus.Counter
	StoreConflicts      prometheus.Counter

	// Advisor
	AdvisorRequests *prometheus.CounterVec
	AdvisorDuration prometheus.Histogram
}

// New creates and registers the collectors once per process; later calls
// return the same instance.
//
// Metrics:
//   - resolvd_errors_submitted_total{kind,severity}
//   - resolvd_error_rate_alerts_total{type}
//   - resolvd_plans_generated_total{strategy,rule}
//   - resolvd_action_fallbacks_total{from,to}
//   - resolvd_outcomes_reported_total{strategy,result}
//   - resolvd_duplicate_outcomes_total
//   - resolvd_executor_timeouts_total
//   - resolvd_patterns_learned_total
//   - resolvd_tracked_patterns
//   - resolvd_pattern_invariant_violations_total
//   - resolvd_pattern_store_conflicts_total
//   - resolvd_advisor_requests_total{result}
//   - resolvd_advisor_duration_seconds
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ErrorsSubmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resolvd_errors_submitted_total",
					Help: "Database errors submitted for resolution",
				},
				[]string{"kind", "severity"},
			),
			ErrorRateAlerts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resolvd_error_rate_alerts_total",
					Help: "Error-rate alert thresholds crossed",
				},
				[]string{"type"}, // "error_rate" or "critical_rate"
			),
			PlansGenerated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resolvd_plans_generated_total",
					Help: "Resolution plans generated by chosen strategy and deciding rule",
				},
				[]string{"strategy", "rule"},
			),
			ActionFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resolvd_action_fallbacks_total",
					Help: "Rejected actions that fell back one rung down the ladder",
				},
				[]string{"from", "to"},
			),
			OutcomesReported: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resolvd_outcomes_reported_total",
					Help: "Executor outcomes ingested",
				},
				[]string{"strategy", "result"},
			),
			DuplicateOutcomes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "resolvd_duplicate_outcomes_total",
				Help: "Outcomes ignored as duplicates",
			}),
			ExecutorTimeouts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "resolvd_executor_timeouts_total",
				Help: "Plans with no executor outcome within the wait bound",
			}),
			PatternsLearned: promauto.NewCounter(prometheus.CounterOpts{
				Name: "resolvd_patterns_learned_total",
				Help: "Patterns that adopted a learned preferred strategy",
			}),
			TrackedPatterns: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "resolvd_tracked_patterns",
				Help: "Patterns currently held by the pattern store",
			}),
			InvariantViolations: promauto.NewCounter(prometheus.CounterOpts{
				Name: "resolvd_pattern_invariant_violations_total",
				Help: "Pattern records quarantined after successes exceeded attempts",
			}),
			StoreConflicts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "resolvd_pattern_store_conflicts_total",
				Help: "Optimistic transaction retries in the pattern store",
			}),
			AdvisorRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "resolvd_advisor_requests_total",
					Help: "Advisory text requests by result",
				},
				[]string{"result"}, // hit, miss, timeout, canceled, error
			),
			AdvisorDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "resolvd_advisor_duration_seconds",
				Help:    "Latency of uncached advisory requests",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
			}),
		}
	})
	return globalMetrics
}
