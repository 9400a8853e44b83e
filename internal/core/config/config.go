package config

import (
	"time"

	"github.com/vietddude/handoff/internal/core/domain"
	redisclient "github.com/vietddude/handoff/internal/infra/redis"
	"github.com/vietddude/handoff/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig         `yaml:"server"`
	Logging    LoggingConfig        `yaml:"logging"`
	Database   postgres.Config      `yaml:"database"`
	Redis      redisclient.Config   `yaml:"redis"`
	Resilience ResilienceConfig     `yaml:"resilience"`
	Retention  RetentionConfig      `yaml:"retention"`
	Jobs       map[string]JobConfig `yaml:"jobs"`
}

// ServerConfig holds health/metrics endpoint settings.
type ServerConfig struct {
	Port                   int `yaml:"port"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// ShutdownTimeout is how long a graceful stop may take before it is abandoned.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ResilienceConfig tunes the circuit breakers and alerting shared across
// call sites.
type ResilienceConfig struct {
	BreakerThreshold      int `yaml:"breaker_threshold"`
	BreakerTimeoutSeconds int `yaml:"breaker_timeout_seconds"`
	AlertCooldownMinutes  int `yaml:"alert_cooldown_minutes"`
}

func (c ResilienceConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

func (c ResilienceConfig) AlertCooldown() time.Duration {
	return time.Duration(c.AlertCooldownMinutes) * time.Minute
}

// RetentionConfig seeds the retention policies applied at startup.
type RetentionConfig struct {
	Policies []PolicyConfig `yaml:"policies"`
}

// PolicyConfig is one retention policy as configured.
type PolicyConfig struct {
	Name                   string `yaml:"name"`
	ActiveSessionTTLHours  int    `yaml:"active_session_ttl_hours"`
	ArchivedSessionTTLDays int    `yaml:"archived_session_ttl_days"`
	LogRetentionDays       int    `yaml:"log_retention_days"`
	MetricsRetentionDays   int    `yaml:"metrics_retention_days"`
	DormantThresholdHours  int    `yaml:"dormant_threshold_hours"`
}

// ToDomain converts the config entry into a domain policy.
func (p PolicyConfig) ToDomain() *domain.RetentionPolicy {
	return &domain.RetentionPolicy{
		Name:                   p.Name,
		ActiveSessionTTLHours:  p.ActiveSessionTTLHours,
		ArchivedSessionTTLDays: p.ArchivedSessionTTLDays,
		LogRetentionDays:       p.LogRetentionDays,
		MetricsRetentionDays:   p.MetricsRetentionDays,
		DormantThresholdHours:  p.DormantThresholdHours,
	}
}

// JobConfig holds settings for one scheduled sweep. A nil Enabled means
// enabled.
type JobConfig struct {
	IntervalMinutes   int   `yaml:"interval_minutes"`
	Enabled           *bool `yaml:"enabled"`
	MaxRetries        int   `yaml:"max_retries"`
	RetryDelaySeconds int   `yaml:"retry_delay_seconds"`
}

func (j JobConfig) Interval() time.Duration {
	return time.Duration(j.IntervalMinutes) * time.Minute
}

func (j JobConfig) RetryDelay() time.Duration {
	return time.Duration(j.RetryDelaySeconds) * time.Second
}

func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}
