// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/handoff/internal/infra/cache"
	"github.com/vietddude/handoff/internal/lifecycle"
	"github.com/vietddude/handoff/internal/resilience"
	"github.com/vietddude/handoff/internal/scheduler"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the health of a single dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus                       `json:"system_status"`
	Database     ComponentHealth                    `json:"database"`
	Cache        ComponentHealth                    `json:"cache"`
	CacheStats   cache.Stats                        `json:"cache_stats"`
	Sessions     *lifecycle.CleanupStats            `json:"sessions,omitempty"`
	Breakers     map[string]resilience.BreakerState `json:"breakers"`
	Jobs         []scheduler.JobStatus              `json:"jobs"`
	CheckedAt    time.Time                          `json:"checked_at"`
}
