package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/handoff/internal/core/domain"
)

// ContextRepo implements storage.ContextRepository using PostgreSQL.
type ContextRepo struct {
	db *DB
}

// NewContextRepo creates a new PostgreSQL context history repository.
func NewContextRepo(db *DB) *ContextRepo {
	return &ContextRepo{db: db}
}

// Append stores a context entry.
func (r *ContextRepo) Append(ctx context.Context, e *domain.ContextEntry) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO context_history (id, session_id, entry_type, content, metadata, created_at)
		VALUES (:id, :session_id, :entry_type, :content, :metadata, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("failed to append context entry: %w", err)
	}
	return nil
}

// CountBySession returns the number of entries for a session.
func (r *ContextRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM context_history WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count context entries: %w", err)
	}
	return count, nil
}

// DeleteBySession removes all entries for a session.
func (r *ContextRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM context_history WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete context entries: %w", err)
	}
	return nil
}
