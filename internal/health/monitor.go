package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/infra/cache"
	"github.com/vietddude/handoff/internal/lifecycle"
	"github.com/vietddude/handoff/internal/resilience"
	"github.com/vietddude/handoff/internal/scheduler"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor aggregates health status from the store, cache, breakers, and
// scheduler. A nil db or cachePing means the corresponding backend is
// in-process and always reachable.
type Monitor struct {
	db        Pinger
	cachePing Pinger
	cache     cache.Cache
	mgr       *lifecycle.Manager
	sched     *scheduler.Scheduler
	breakers  *resilience.BreakerRegistry
	clk       clock.Clock

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	db Pinger,
	cachePing Pinger,
	c cache.Cache,
	mgr *lifecycle.Manager,
	sched *scheduler.Scheduler,
	breakers *resilience.BreakerRegistry,
	clk clock.Clock,
) *Monitor {
	if clk == nil {
		clk = clock.System()
	}
	return &Monitor{
		db:        db,
		cachePing: cachePing,
		cache:     c,
		mgr:       mgr,
		sched:     sched,
		breakers:  breakers,
		clk:       clk,
	}
}

// CheckHealth builds the current health report. Checks are rate limited to
// once per 10s to keep probes off the hot path.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clk.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Database:     ComponentHealth{Status: StatusHealthy},
		Cache:        ComponentHealth{Status: StatusHealthy},
		CheckedAt:    m.clk.Now(),
	}

	if m.db != nil {
		if err := m.db.Ping(ctx); err != nil {
			report.Database = ComponentHealth{Status: StatusCritical, Detail: err.Error()}
		}
	} else {
		report.Database.Detail = "in-memory"
	}

	if m.cachePing != nil {
		if err := m.cachePing.Ping(ctx); err != nil {
			report.Cache = ComponentHealth{Status: StatusDegraded, Detail: err.Error()}
		}
	} else {
		report.Cache.Detail = "in-process"
	}
	if m.cache != nil {
		report.CacheStats = m.cache.Stats()
	}

	if m.mgr != nil {
		stats, err := m.mgr.CleanupStats(ctx)
		if err == nil {
			report.Sessions = stats
		} else if report.Database.Status == StatusHealthy {
			report.Database = ComponentHealth{Status: StatusDegraded, Detail: err.Error()}
		}
	}

	if m.breakers != nil {
		report.Breakers = make(map[string]resilience.BreakerState)
		for key, state := range m.breakers.States() {
			report.Breakers[key] = state
			if state == resilience.StateOpen {
				bumpTo(&report.SystemStatus, StatusDegraded)
			}
		}
	}

	if m.sched != nil {
		report.Jobs = m.sched.Statuses()
		for _, j := range report.Jobs {
			if j.Stats.TotalRuns > 0 && j.Stats.LastFailure.After(j.Stats.LastSuccess) {
				bumpTo(&report.SystemStatus, StatusDegraded)
			}
		}
	}

	bumpTo(&report.SystemStatus, report.Database.Status)
	bumpTo(&report.SystemStatus, report.Cache.Status)

	m.lastCheck = m.clk.Now()
	m.lastReport = report
	return report
}

// bumpTo raises current to candidate if candidate is worse.
func bumpTo(current *SystemStatus, candidate SystemStatus) {
	if rank(candidate) > rank(*current) {
		*current = candidate
	}
}

func rank(s SystemStatus) int {
	switch s {
	case StatusCritical:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}
