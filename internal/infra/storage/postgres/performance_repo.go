package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/handoff/internal/core/domain"
)

// PerformanceRepo implements storage.PerformanceRepository using PostgreSQL.
type PerformanceRepo struct {
	db *DB
}

// NewPerformanceRepo creates a new PostgreSQL performance log repository.
func NewPerformanceRepo(db *DB) *PerformanceRepo {
	return &PerformanceRepo{db: db}
}

// Record stores a performance log row.
func (r *PerformanceRepo) Record(ctx context.Context, l *domain.PerformanceLog) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO performance_logs (id, session_id, operation, duration_ms, success, created_at)
		VALUES (:id, :session_id, :operation, :duration_ms, :success, :created_at)`, l)
	if err != nil {
		return fmt.Errorf("failed to record performance log: %w", err)
	}
	return nil
}

// CountBySession returns the number of rows for a session.
func (r *PerformanceRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM performance_logs WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count performance logs: %w", err)
	}
	return count, nil
}

// DeleteBySession removes all rows for a session.
func (r *PerformanceRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM performance_logs WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete performance logs: %w", err)
	}
	return nil
}

// DeleteOlderThan removes rows created before cutoff.
func (r *PerformanceRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM performance_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune performance logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
