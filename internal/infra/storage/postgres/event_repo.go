package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/handoff/internal/core/domain"
)

// EventRepo implements storage.EventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL lifecycle event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append records a lifecycle event.
func (r *EventRepo) Append(ctx context.Context, e *domain.LifecycleEvent) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO lifecycle_events (id, session_id, event_type, details, created_at)
		VALUES (:id, :session_id, :event_type, :details, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("failed to append lifecycle event: %w", err)
	}
	return nil
}

// ListBySession returns a session's events, oldest first.
func (r *EventRepo) ListBySession(ctx context.Context, sessionID string) ([]*domain.LifecycleEvent, error) {
	var out []*domain.LifecycleEvent
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, session_id, event_type, details, created_at
		FROM lifecycle_events WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle events: %w", err)
	}
	return out, nil
}

// CountBySession returns the number of events for a session.
func (r *EventRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM lifecycle_events WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count lifecycle events: %w", err)
	}
	return count, nil
}

// DeleteBySession removes all events for a session.
func (r *EventRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM lifecycle_events WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete lifecycle events: %w", err)
	}
	return nil
}

// DeleteOlderThan removes events created before cutoff.
func (r *EventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lifecycle_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune lifecycle events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
