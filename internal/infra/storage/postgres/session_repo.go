package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/handoff/internal/core/domain"
)

// SessionRepo implements storage.SessionRepository using PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new PostgreSQL session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, session_key, agent_from, agent_to, status, is_dormant,
	retention_policy, created_at, updated_at, last_activity_at, expires_at,
	archived_at, metadata`

// Create inserts a new session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, session_key, agent_from, agent_to, status, is_dormant,
			retention_policy, created_at, updated_at, last_activity_at, expires_at,
			archived_at, metadata)
		VALUES (:id, :session_key, :agent_from, :agent_to, :status, :is_dormant,
			:retention_policy, :created_at, :updated_at, :last_activity_at, :expires_at,
			:archived_at, :metadata)`, s)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// GetByKey retrieves a session by its session key.
func (r *SessionRepo) GetByKey(ctx context.Context, key string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE session_key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by key: %w", err)
	}
	return &s, nil
}

// TouchActivity refreshes last_activity_at.
func (r *SessionRepo) TouchActivity(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity_at = $2, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("failed to touch session activity: %w", err)
	}
	return nil
}

// SetExpiresAt schedules expiration.
func (r *SessionRepo) SetExpiresAt(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET expires_at = $2, updated_at = $3 WHERE id = $1`, id, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to set expiration: %w", err)
	}
	return updated(res)
}

// UpdateStatus sets the session status.
func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1`, id, status, now)
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}
	return updated(res)
}

// SetArchived stamps archived_at and forces the dormant flag in one write.
func (r *SessionRepo) SetArchived(ctx context.Context, id string, archivedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET archived_at = $2, is_dormant = TRUE, updated_at = $2 WHERE id = $1`, id, archivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to archive session: %w", err)
	}
	return updated(res)
}

// MarkDormant sets the dormant flag.
func (r *SessionRepo) MarkDormant(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_dormant = TRUE, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark session dormant: %w", err)
	}
	return updated(res)
}

// Reactivate clears the dormant flag and refreshes last_activity_at.
func (r *SessionRepo) Reactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_dormant = FALSE, last_activity_at = $2, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to reactivate session: %w", err)
	}
	return updated(res)
}

// ListDormantCandidates returns active, non-dormant sessions on a policy whose
// last activity predates cutoff.
func (r *SessionRepo) ListDormantCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'active' AND is_dormant = FALSE
		  AND retention_policy = $1 AND last_activity_at < $2
		ORDER BY last_activity_at`, policy, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list dormant candidates: %w", err)
	}
	return out, nil
}

// ListOrphaned returns active sessions with no context whose activity predates cutoff.
func (r *SessionRepo) ListOrphaned(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'active' AND last_activity_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM context_history WHERE context_history.session_id = sessions.id
		  )
		ORDER BY last_activity_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned sessions: %w", err)
	}
	return out, nil
}

// ListPastExpiry returns active sessions whose expires_at has passed.
func (r *SessionRepo) ListPastExpiry(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions past expiry: %w", err)
	}
	return out, nil
}

// ListArchiveCandidates returns unarchived sessions on a policy whose activity
// predates cutoff.
func (r *SessionRepo) ListArchiveCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE archived_at IS NULL AND retention_policy = $1 AND last_activity_at < $2
		ORDER BY last_activity_at`, policy, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive candidates: %w", err)
	}
	return out, nil
}

// ListDeleteCandidates returns sessions on a policy archived before cutoff.
func (r *SessionRepo) ListDeleteCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE archived_at IS NOT NULL AND retention_policy = $1 AND archived_at < $2
		ORDER BY archived_at`, policy, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list delete candidates: %w", err)
	}
	return out, nil
}

// CountByStatus returns the number of sessions with the given status.
func (r *SessionRepo) CountByStatus(ctx context.Context, status domain.SessionStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE status = $1`, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions by status: %w", err)
	}
	return count, nil
}

// CountArchived returns the number of archived sessions.
func (r *SessionRepo) CountArchived(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE archived_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived sessions: %w", err)
	}
	return count, nil
}

// CountOrphaned returns the number of sessions ListOrphaned would select.
func (r *SessionRepo) CountOrphaned(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sessions
		WHERE status = 'active' AND last_activity_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM context_history WHERE context_history.session_id = sessions.id
		  )`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to count orphaned sessions: %w", err)
	}
	return count, nil
}

// Delete removes a session row.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// updated reports whether an UPDATE touched at least one row.
func updated(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
