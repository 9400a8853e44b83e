package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vietddude/handoff/internal/core/domain"
)

// PolicyRepo implements storage.PolicyRepository using PostgreSQL.
type PolicyRepo struct {
	db *DB
}

// NewPolicyRepo creates a new PostgreSQL retention policy repository.
func NewPolicyRepo(db *DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

const policyColumns = `name, active_session_ttl_hours, archived_session_ttl_days,
	log_retention_days, metrics_retention_days, dormant_threshold_hours,
	created_at, updated_at`

// Upsert inserts or updates a policy by name.
func (r *PolicyRepo) Upsert(ctx context.Context, p *domain.RetentionPolicy) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO retention_policies (name, active_session_ttl_hours,
			archived_session_ttl_days, log_retention_days, metrics_retention_days,
			dormant_threshold_hours, created_at, updated_at)
		VALUES (:name, :active_session_ttl_hours, :archived_session_ttl_days,
			:log_retention_days, :metrics_retention_days, :dormant_threshold_hours,
			:created_at, :updated_at)
		ON CONFLICT (name) DO UPDATE SET
			active_session_ttl_hours = EXCLUDED.active_session_ttl_hours,
			archived_session_ttl_days = EXCLUDED.archived_session_ttl_days,
			log_retention_days = EXCLUDED.log_retention_days,
			metrics_retention_days = EXCLUDED.metrics_retention_days,
			dormant_threshold_hours = EXCLUDED.dormant_threshold_hours,
			updated_at = EXCLUDED.updated_at`, p)
	if err != nil {
		return fmt.Errorf("failed to upsert retention policy: %w", err)
	}
	return nil
}

// GetByName retrieves a policy by name.
func (r *PolicyRepo) GetByName(ctx context.Context, name string) (*domain.RetentionPolicy, error) {
	var p domain.RetentionPolicy
	err := r.db.GetContext(ctx, &p, `SELECT `+policyColumns+` FROM retention_policies WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retention policy: %w", err)
	}
	return &p, nil
}

// List returns all policies.
func (r *PolicyRepo) List(ctx context.Context) ([]*domain.RetentionPolicy, error) {
	var out []*domain.RetentionPolicy
	err := r.db.SelectContext(ctx, &out, `SELECT `+policyColumns+` FROM retention_policies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list retention policies: %w", err)
	}
	return out, nil
}
