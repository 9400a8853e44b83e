package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/handoff/internal/infra/cache"
	"github.com/vietddude/handoff/internal/lifecycle"
	"github.com/vietddude/handoff/internal/metrics"
)

// Standard sweep job names.
const (
	JobCleanup              = "cleanup"
	JobDormantDetection     = "dormant-detection"
	JobRetentionEnforcement = "retention-enforcement"
	JobCacheOptimization    = "cache-optimization"
)

// DefaultJobConfigs returns the standard schedule for the four sweeps.
func DefaultJobConfigs() map[string]JobConfig {
	return map[string]JobConfig{
		JobCleanup:              {Interval: time.Hour, Enabled: true, MaxRetries: 3, RetryDelay: 5 * time.Minute},
		JobDormantDetection:     {Interval: 6 * time.Hour, Enabled: true, MaxRetries: 3, RetryDelay: 5 * time.Minute},
		JobRetentionEnforcement: {Interval: 24 * time.Hour, Enabled: true, MaxRetries: 3, RetryDelay: 10 * time.Minute},
		JobCacheOptimization:    {Interval: 12 * time.Hour, Enabled: true, MaxRetries: 2, RetryDelay: 5 * time.Minute},
	}
}

// NewCleanupJob expires orphaned sessions and sessions past their natural
// expiry.
func NewCleanupJob(mgr *lifecycle.Manager, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := mgr.CleanupOrphanedSessions(ctx)
		if err != nil {
			return err
		}
		log.Debug("cleanup pass complete", "expired", n)
		return nil
	}
}

// NewDormantDetectionJob flags idle sessions dormant per their policy
// threshold.
func NewDormantDetectionJob(mgr *lifecycle.Manager, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := mgr.DetectDormantSessions(ctx)
		if err != nil {
			return err
		}
		log.Debug("dormant detection pass complete", "marked", n)
		return nil
	}
}

// NewRetentionEnforcementJob archives sessions past their active TTL and
// physically deletes sessions past their archived TTL.
func NewRetentionEnforcementJob(mgr *lifecycle.Manager, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		archived, deleted, err := mgr.EnforceRetention(ctx)
		if err != nil {
			return err
		}
		log.Debug("retention pass complete", "archived", archived, "deleted", deleted)
		return nil
	}
}

type pruner interface {
	Prune() int
}

// NewCacheOptimizationJob evicts expired cache entries (for backends that
// need it), refreshes the cache gauges, and prunes aged lifecycle-event and
// performance-log rows.
func NewCacheOptimizationJob(mgr *lifecycle.Manager, c cache.Cache, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		if p, ok := c.(pruner); ok {
			if n := p.Prune(); n > 0 {
				log.Debug("cache entries pruned", "count", n)
			}
		}
		stats := c.Stats()
		metrics.CacheHits.Set(float64(stats.Hits))
		metrics.CacheMisses.Set(float64(stats.Misses))
		metrics.CacheEntries.Set(float64(stats.Entries))

		rows, err := mgr.PruneAuxiliaryData(ctx)
		if err != nil {
			return err
		}
		log.Debug("cache optimization pass complete", "rows_pruned", rows)
		return nil
	}
}

// RegisterLifecycleJobs registers the four standard sweeps, taking each
// job's config from cfgs and falling back to the defaults for any missing
// entry.
func RegisterLifecycleJobs(s *Scheduler, mgr *lifecycle.Manager, c cache.Cache, log *slog.Logger, cfgs map[string]JobConfig) error {
	defaults := DefaultJobConfigs()
	register := func(name string, body JobFunc) error {
		cfg, ok := cfgs[name]
		if !ok {
			cfg = defaults[name]
		}
		return s.Register(name, cfg, body)
	}

	if err := register(JobCleanup, NewCleanupJob(mgr, log)); err != nil {
		return err
	}
	if err := register(JobDormantDetection, NewDormantDetectionJob(mgr, log)); err != nil {
		return err
	}
	if err := register(JobRetentionEnforcement, NewRetentionEnforcementJob(mgr, log)); err != nil {
		return err
	}
	return register(JobCacheOptimization, NewCacheOptimizationJob(mgr, c, log))
}
