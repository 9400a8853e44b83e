// Package metrics exposes Prometheus collectors for the lifecycle core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState tracks circuit breaker state per operation key
	// (0=closed, 1=open, 2=half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handoff_breaker_state",
		Help: "Circuit breaker state per operation key (0=closed, 1=open, 2=half-open)",
	}, []string{"key"})

	// BreakerTransitions counts circuit breaker state transitions.
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_breaker_transitions_total",
		Help: "Circuit breaker state transitions by operation key and target state",
	}, []string{"key", "to"})

	// RecoveryAttempts counts recovery executor outcomes by strategy.
	RecoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_recovery_attempts_total",
		Help: "Recovery executor attempts by strategy and outcome",
	}, []string{"strategy", "outcome"})

	// AlertsTriggered counts alerts that passed the cooldown gate.
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_alerts_total",
		Help: "Alerts triggered by severity",
	}, []string{"severity"})

	// AlertsSuppressed counts alerts dropped by the cooldown gate.
	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_alerts_suppressed_total",
		Help: "Alerts suppressed by the per-component cooldown",
	}, []string{"severity"})

	// SessionsSwept counts lifecycle transitions applied by sweeps.
	SessionsSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_sessions_swept_total",
		Help: "Sessions transitioned by lifecycle sweeps, by action",
	}, []string{"action"})

	// JobRuns counts scheduler job completions.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handoff_job_runs_total",
		Help: "Scheduler job runs by job name and outcome",
	}, []string{"job", "outcome"})

	// JobDuration observes job body execution time.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "handoff_job_duration_seconds",
		Help:    "Scheduler job execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// JobActive tracks which jobs are currently executing.
	JobActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handoff_job_active",
		Help: "Whether a scheduler job is currently executing (0 or 1)",
	}, []string{"job"})

	// CacheHits mirrors the cache's hit counter.
	CacheHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "handoff_cache_hits",
		Help: "Cache hits reported by the cache backend",
	})

	// CacheMisses mirrors the cache's miss counter.
	CacheMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "handoff_cache_misses",
		Help: "Cache misses reported by the cache backend",
	})

	// CacheEntries mirrors the cache's entry count.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "handoff_cache_entries",
		Help: "Entries currently held by the cache backend",
	})
)
