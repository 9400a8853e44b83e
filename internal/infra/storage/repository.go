package storage

import (
	"context"
	"time"

	"github.com/vietddude/handoff/internal/core/domain"
)

// SessionRepository persists sessions. Lookup methods return (nil, nil) when
// the row does not exist; mutation methods report whether a row was updated.
type SessionRepository interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *domain.Session) error

	// GetByID retrieves a session by ID.
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// GetByKey retrieves a session by its globally unique session key.
	GetByKey(ctx context.Context, key string) (*domain.Session, error)

	// TouchActivity refreshes last_activity_at.
	TouchActivity(ctx context.Context, id string, now time.Time) error

	// SetExpiresAt schedules expiration.
	SetExpiresAt(ctx context.Context, id string, expiresAt, now time.Time) (bool, error)

	// UpdateStatus sets the session status.
	UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, now time.Time) (bool, error)

	// SetArchived stamps archived_at and forces the dormant flag in the same
	// write, keeping the archived-implies-dormant invariant atomic.
	SetArchived(ctx context.Context, id string, archivedAt time.Time) (bool, error)

	// MarkDormant sets the dormant flag.
	MarkDormant(ctx context.Context, id string, now time.Time) (bool, error)

	// Reactivate clears the dormant flag and refreshes last_activity_at.
	Reactivate(ctx context.Context, id string, now time.Time) (bool, error)

	// ListDormantCandidates returns active, non-dormant sessions on the given
	// policy whose last activity predates cutoff.
	ListDormantCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error)

	// ListOrphaned returns active sessions with zero context entries whose
	// last activity predates cutoff.
	ListOrphaned(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)

	// ListPastExpiry returns active sessions whose expires_at has passed.
	ListPastExpiry(ctx context.Context, now time.Time) ([]*domain.Session, error)

	// ListArchiveCandidates returns unarchived sessions on the given policy
	// whose last activity predates cutoff.
	ListArchiveCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error)

	// ListDeleteCandidates returns sessions on the given policy archived
	// before cutoff.
	ListDeleteCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error)

	// CountByStatus returns the number of sessions with the given status.
	CountByStatus(ctx context.Context, status domain.SessionStatus) (int, error)

	// CountArchived returns the number of archived sessions.
	CountArchived(ctx context.Context) (int, error)

	// CountOrphaned returns the number of sessions ListOrphaned would select.
	CountOrphaned(ctx context.Context, cutoff time.Time) (int, error)

	// Delete removes a session row.
	Delete(ctx context.Context, id string) error
}

// PolicyRepository persists retention policies.
type PolicyRepository interface {
	// Upsert inserts or updates a policy by name.
	Upsert(ctx context.Context, p *domain.RetentionPolicy) error

	// GetByName retrieves a policy. Returns (nil, nil) when absent.
	GetByName(ctx context.Context, name string) (*domain.RetentionPolicy, error)

	// List returns all policies.
	List(ctx context.Context) ([]*domain.RetentionPolicy, error)
}

// EventRepository persists lifecycle audit events.
type EventRepository interface {
	// Append records an event.
	Append(ctx context.Context, e *domain.LifecycleEvent) error

	// ListBySession returns a session's events, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.LifecycleEvent, error)

	// CountBySession returns the number of events for a session.
	CountBySession(ctx context.Context, sessionID string) (int, error)

	// DeleteBySession removes all events for a session.
	DeleteBySession(ctx context.Context, sessionID string) error

	// DeleteOlderThan removes events created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ContextRepository persists handoff context entries.
type ContextRepository interface {
	// Append stores a context entry.
	Append(ctx context.Context, e *domain.ContextEntry) error

	// CountBySession returns the number of entries for a session.
	CountBySession(ctx context.Context, sessionID string) (int, error)

	// DeleteBySession removes all entries for a session.
	DeleteBySession(ctx context.Context, sessionID string) error
}

// PerformanceRepository persists per-operation timing rows.
type PerformanceRepository interface {
	// Record stores a performance log row.
	Record(ctx context.Context, l *domain.PerformanceLog) error

	// CountBySession returns the number of rows for a session.
	CountBySession(ctx context.Context, sessionID string) (int, error)

	// DeleteBySession removes all rows for a session.
	DeleteBySession(ctx context.Context, sessionID string) error

	// DeleteOlderThan removes rows created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles the repositories backing the lifecycle core.
type Store struct {
	Sessions    SessionRepository
	Policies    PolicyRepository
	Events      EventRepository
	Contexts    ContextRepository
	Performance PerformanceRepository
}
