package domain

import (
	"errors"
	"fmt"
	"time"
)

// RetentionPolicy bundles the TTLs governing how long sessions, logs, and
// metrics live before archival or deletion. Referenced by name from Session;
// a policy must exist before a session can use it.
type RetentionPolicy struct {
	Name                   string    `db:"name" json:"name"`
	ActiveSessionTTLHours  int       `db:"active_session_ttl_hours" json:"active_session_ttl_hours"`
	ArchivedSessionTTLDays int       `db:"archived_session_ttl_days" json:"archived_session_ttl_days"`
	LogRetentionDays       int       `db:"log_retention_days" json:"log_retention_days"`
	MetricsRetentionDays   int       `db:"metrics_retention_days" json:"metrics_retention_days"`
	DormantThresholdHours  int       `db:"dormant_threshold_hours" json:"dormant_threshold_hours"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultPolicyName is the policy assigned to sessions that don't pick one.
const DefaultPolicyName = "default"

func (p *RetentionPolicy) ActiveSessionTTL() time.Duration {
	return time.Duration(p.ActiveSessionTTLHours) * time.Hour
}

func (p *RetentionPolicy) ArchivedSessionTTL() time.Duration {
	return time.Duration(p.ArchivedSessionTTLDays) * 24 * time.Hour
}

func (p *RetentionPolicy) LogRetention() time.Duration {
	return time.Duration(p.LogRetentionDays) * 24 * time.Hour
}

func (p *RetentionPolicy) MetricsRetention() time.Duration {
	return time.Duration(p.MetricsRetentionDays) * 24 * time.Hour
}

func (p *RetentionPolicy) DormantThreshold() time.Duration {
	return time.Duration(p.DormantThresholdHours) * time.Hour
}

// Validate checks that the name is set and every TTL is positive.
func (p *RetentionPolicy) Validate() error {
	if p.Name == "" {
		return errors.New("policy name must not be empty")
	}

	fields := []struct {
		name  string
		value int
	}{
		{"active_session_ttl_hours", p.ActiveSessionTTLHours},
		{"archived_session_ttl_days", p.ArchivedSessionTTLDays},
		{"log_retention_days", p.LogRetentionDays},
		{"metrics_retention_days", p.MetricsRetentionDays},
		{"dormant_threshold_hours", p.DormantThresholdHours},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", f.name, f.value)
		}
	}
	return nil
}
