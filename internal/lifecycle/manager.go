// Package lifecycle owns session state transitions and retention-policy
// management. The manager is the sole writer of status, is_dormant and
// archived_at; the scheduler and any controller reach those fields only
// through its operations.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/core/domain"
	"github.com/vietddude/handoff/internal/infra/cache"
	"github.com/vietddude/handoff/internal/infra/storage"
	"github.com/vietddude/handoff/internal/metrics"
)

var (
	// ErrSessionNotFound is returned when an operation targets an unknown
	// session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidConfiguration is returned when a retention policy fails
	// validation.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrIntegrityViolation is returned when related rows outlive their
	// session.
	ErrIntegrityViolation = errors.New("referential integrity violation")
)

const (
	// OrphanWindow is how long an active session may sit with zero context
	// entries before the cleanup sweep expires it.
	OrphanWindow = 7 * 24 * time.Hour

	// ArchivedSnapshotTTL is the cache lifetime of an archived-session
	// snapshot.
	ArchivedSnapshotTTL = 7 * 24 * time.Hour
)

// ArchivedSessionKey is the cache key holding a session's archived snapshot.
func ArchivedSessionKey(id string) string {
	return "archived_session:" + id
}

// CleanupStats summarizes the sweepable state of the session table.
type CleanupStats struct {
	Expired  int `json:"expired"`
	Archived int `json:"archived"`
	Orphaned int `json:"orphaned"`
	// Deleted is reserved: deleted rows are gone, so the count is always
	// zero until a delete ledger exists.
	Deleted int `json:"deleted"`
}

// Manager coordinates session lifecycle transitions against the store and
// cache.
type Manager struct {
	store *storage.Store
	cache cache.Cache
	clk   clock.Clock
	log   *slog.Logger
}

// NewManager builds a lifecycle manager. The cache may be nil; snapshot
// writes are then skipped.
func NewManager(store *storage.Store, c cache.Cache, clk clock.Clock, log *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	return &Manager{
		store: store,
		cache: c,
		clk:   clk,
		log:   log,
	}
}

// RegisterSession inserts a new session with sane defaults and stamps the
// initial activity time. The session key must be globally unique.
func (m *Manager) RegisterSession(ctx context.Context, s *domain.Session) error {
	if s.SessionKey == "" {
		return fmt.Errorf("%w: session key must not be empty", ErrInvalidConfiguration)
	}
	now := m.clk.Now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = domain.SessionStatusActive
	}
	if s.RetentionPolicy == "" {
		s.RetentionPolicy = domain.DefaultPolicyName
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	s.LastActivityAt = now

	policy, err := m.store.Policies.GetByName(ctx, s.RetentionPolicy)
	if err != nil {
		return fmt.Errorf("get retention policy: %w", err)
	}
	if policy == nil {
		return fmt.Errorf("%w: retention policy %q does not exist", ErrInvalidConfiguration, s.RetentionPolicy)
	}

	if err := m.store.Sessions.Create(ctx, s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	m.log.Info("session registered", "session_id", s.ID, "session_key", s.SessionKey, "policy", s.RetentionPolicy)
	return nil
}

// ScheduleExpiration sets the session's expiry. A nil expiresAt defaults to
// now + the session policy's active TTL.
func (m *Manager) ScheduleExpiration(ctx context.Context, id string, expiresAt *time.Time) error {
	s, err := m.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}

	now := m.clk.Now()
	var at time.Time
	if expiresAt != nil {
		at = *expiresAt
	} else {
		policy, err := m.policyFor(ctx, s)
		if err != nil {
			return err
		}
		at = now.Add(policy.ActiveSessionTTL())
	}

	ok, err := m.store.Sessions.SetExpiresAt(ctx, id, at, now)
	if err != nil {
		return fmt.Errorf("set expires_at: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	m.recordEvent(ctx, id, domain.EventExpirationScheduled, domain.Metadata{
		"expires_at": at.UTC().Format(time.RFC3339),
	})
	m.log.Info("expiration scheduled", "session_id", id, "expires_at", at)
	return nil
}

// ExpireSession transitions the session to expired. Expiring an
// already-expired session is a no-op.
func (m *Manager) ExpireSession(ctx context.Context, id string) error {
	s, err := m.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Status == domain.SessionStatusExpired {
		return nil
	}
	if !domain.CanTransition(s.Status, domain.SessionStatusExpired) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, s.Status, domain.SessionStatusExpired)
	}

	ok, err := m.store.Sessions.UpdateStatus(ctx, id, domain.SessionStatusExpired, m.clk.Now())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	metrics.SessionsSwept.WithLabelValues("expired").Inc()
	m.recordEvent(ctx, id, domain.EventExpired, nil)
	m.log.Info("session expired", "session_id", id)
	return nil
}

// ArchiveSession stamps archived_at, forces the dormant flag, and caches a
// snapshot under archived_session:{id}. Archiving twice is a no-op.
func (m *Manager) ArchiveSession(ctx context.Context, id string) error {
	s, err := m.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}
	if s.IsArchived() {
		return nil
	}

	now := m.clk.Now()
	ok, err := m.store.Sessions.SetArchived(ctx, id, now)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	m.cacheSnapshot(ctx, s, now)
	metrics.SessionsSwept.WithLabelValues("archived").Inc()
	m.recordEvent(ctx, id, domain.EventArchived, domain.Metadata{
		"archived_at": now.UTC().Format(time.RFC3339),
	})
	m.log.Info("session archived", "session_id", id)
	return nil
}

// MarkSessionDormant flags the session dormant. Marking twice is a no-op.
func (m *Manager) MarkSessionDormant(ctx context.Context, id string) error {
	s, err := m.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}
	if s.IsDormant {
		return nil
	}

	ok, err := m.store.Sessions.MarkDormant(ctx, id, m.clk.Now())
	if err != nil {
		return fmt.Errorf("mark dormant: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	metrics.SessionsSwept.WithLabelValues("marked_dormant").Inc()
	m.recordEvent(ctx, id, domain.EventMarkedDormant, nil)
	m.log.Info("session marked dormant", "session_id", id)
	return nil
}

// ReactivateSession clears the dormant flag and refreshes last_activity_at.
// Reactivating a non-dormant session performs no write.
func (m *Manager) ReactivateSession(ctx context.Context, id string) error {
	s, err := m.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return ErrSessionNotFound
	}
	if !s.IsDormant {
		return nil
	}

	ok, err := m.store.Sessions.Reactivate(ctx, id, m.clk.Now())
	if err != nil {
		return fmt.Errorf("reactivate: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	metrics.SessionsSwept.WithLabelValues("reactivated").Inc()
	m.recordEvent(ctx, id, domain.EventReactivated, nil)
	m.log.Info("session reactivated", "session_id", id)
	return nil
}

// DetectDormantSessions marks active sessions dormant once their activity
// predates their policy's dormant threshold. Returns the number marked.
func (m *Manager) DetectDormantSessions(ctx context.Context) (int, error) {
	policies, err := m.store.Policies.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list policies: %w", err)
	}

	now := m.clk.Now()
	total := 0
	for _, p := range policies {
		cutoff := now.Add(-p.DormantThreshold())
		candidates, err := m.store.Sessions.ListDormantCandidates(ctx, p.Name, cutoff)
		if err != nil {
			return total, fmt.Errorf("list dormant candidates for %s: %w", p.Name, err)
		}
		for _, s := range candidates {
			if err := m.MarkSessionDormant(ctx, s.ID); err != nil {
				m.log.Warn("mark dormant failed", "session_id", s.ID, "error", err.Error())
				continue
			}
			total++
		}
	}

	if total > 0 {
		m.log.Info("dormant sessions detected", "count", total)
	}
	return total, nil
}

// CleanupOrphanedSessions expires active sessions that have no context
// entries past the orphan window, then active sessions past their natural
// expiry. Returns the number expired.
func (m *Manager) CleanupOrphanedSessions(ctx context.Context) (int, error) {
	now := m.clk.Now()
	expired := 0

	orphans, err := m.store.Sessions.ListOrphaned(ctx, now.Add(-OrphanWindow))
	if err != nil {
		return 0, fmt.Errorf("list orphaned sessions: %w", err)
	}
	for _, s := range orphans {
		if err := m.ExpireSession(ctx, s.ID); err != nil {
			m.log.Warn("expire orphan failed", "session_id", s.ID, "error", err.Error())
			continue
		}
		expired++
	}

	// Listed after the orphan pass so a session expired above is not
	// counted twice.
	past, err := m.store.Sessions.ListPastExpiry(ctx, now)
	if err != nil {
		return expired, fmt.Errorf("list sessions past expiry: %w", err)
	}
	for _, s := range past {
		if err := m.ExpireSession(ctx, s.ID); err != nil {
			m.log.Warn("expire session failed", "session_id", s.ID, "error", err.Error())
			continue
		}
		expired++
	}

	if expired > 0 {
		m.log.Info("orphaned sessions cleaned up", "count", expired)
	}
	return expired, nil
}

// CleanupStats reports expired/archived/orphaned counts.
func (m *Manager) CleanupStats(ctx context.Context) (*CleanupStats, error) {
	expired, err := m.store.Sessions.CountByStatus(ctx, domain.SessionStatusExpired)
	if err != nil {
		return nil, fmt.Errorf("count expired: %w", err)
	}
	archived, err := m.store.Sessions.CountArchived(ctx)
	if err != nil {
		return nil, fmt.Errorf("count archived: %w", err)
	}
	orphaned, err := m.store.Sessions.CountOrphaned(ctx, m.clk.Now().Add(-OrphanWindow))
	if err != nil {
		return nil, fmt.Errorf("count orphaned: %w", err)
	}
	return &CleanupStats{Expired: expired, Archived: archived, Orphaned: orphaned}, nil
}

// UpdateRetentionPolicy validates and upserts a policy.
func (m *Manager) UpdateRetentionPolicy(ctx context.Context, p *domain.RetentionPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	now := m.clk.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := m.store.Policies.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	m.log.Info("retention policy updated", "policy", p.Name,
		"active_ttl_hours", p.ActiveSessionTTLHours,
		"archived_ttl_days", p.ArchivedSessionTTLDays)
	return nil
}

// AllRetentionPolicies returns every registered policy.
func (m *Manager) AllRetentionPolicies(ctx context.Context) ([]*domain.RetentionPolicy, error) {
	return m.store.Policies.List(ctx)
}

// EnsureReferentialIntegrity verifies a session's related rows are still
// reachable: a missing session must not leave context, event, or log rows
// behind.
func (m *Manager) EnsureReferentialIntegrity(ctx context.Context, id string) error {
	s, err := m.store.Sessions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	contexts, err := m.store.Contexts.CountBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("count context entries: %w", err)
	}
	events, err := m.store.Events.CountBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("count lifecycle events: %w", err)
	}
	logs, err := m.store.Performance.CountBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("count performance logs: %w", err)
	}

	if s == nil {
		if contexts > 0 || events > 0 || logs > 0 {
			return fmt.Errorf("%w: session %s is gone but %d context, %d event, %d log rows remain",
				ErrIntegrityViolation, id, contexts, events, logs)
		}
		return ErrSessionNotFound
	}
	return nil
}

// EnforceRetention applies every policy: archives sessions whose activity
// predates the active TTL, then physically deletes sessions archived longer
// than the archived TTL. Per-session failures are logged and skipped so one
// bad row cannot stall the sweep.
func (m *Manager) EnforceRetention(ctx context.Context) (archived, deleted int, err error) {
	policies, err := m.store.Policies.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list policies: %w", err)
	}

	now := m.clk.Now()
	for _, p := range policies {
		candidates, err := m.store.Sessions.ListArchiveCandidates(ctx, p.Name, now.Add(-p.ActiveSessionTTL()))
		if err != nil {
			m.log.Error("list archive candidates failed", "policy", p.Name, "error", err.Error())
			continue
		}
		for _, s := range candidates {
			if err := m.ArchiveSession(ctx, s.ID); err != nil {
				m.log.Warn("archive failed", "session_id", s.ID, "error", err.Error())
				continue
			}
			archived++
		}

		doomed, err := m.store.Sessions.ListDeleteCandidates(ctx, p.Name, now.Add(-p.ArchivedSessionTTL()))
		if err != nil {
			m.log.Error("list delete candidates failed", "policy", p.Name, "error", err.Error())
			continue
		}
		for _, s := range doomed {
			if err := m.DeleteSessionData(ctx, s.ID); err != nil {
				m.log.Warn("delete failed", "session_id", s.ID, "error", err.Error())
				continue
			}
			deleted++
		}
	}

	if archived > 0 || deleted > 0 {
		m.log.Info("retention enforced", "archived", archived, "deleted", deleted)
	}
	return archived, deleted, nil
}

// DeleteSessionData physically removes a session and everything attached to
// it. Related rows go first so a partial failure can never leave them
// orphaned behind a deleted session.
func (m *Manager) DeleteSessionData(ctx context.Context, id string) error {
	var errs error
	if err := m.store.Contexts.DeleteBySession(ctx, id); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("delete context entries: %w", err))
	}
	if err := m.store.Performance.DeleteBySession(ctx, id); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("delete performance logs: %w", err))
	}
	if err := m.store.Events.DeleteBySession(ctx, id); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("delete lifecycle events: %w", err))
	}
	if errs != nil {
		return errs
	}

	if err := m.store.Sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if m.cache != nil {
		if err := m.cache.Delete(ctx, ArchivedSessionKey(id)); err != nil {
			m.log.Warn("snapshot cache delete failed", "session_id", id, "error", err.Error())
		}
	}

	metrics.SessionsSwept.WithLabelValues("deleted").Inc()
	m.log.Info("session data deleted", "session_id", id)
	return nil
}

// PruneAuxiliaryData removes lifecycle events and performance logs older
// than the longest retention any policy demands. Context rows are excluded:
// they only ever leave together with their session.
func (m *Manager) PruneAuxiliaryData(ctx context.Context) (int64, error) {
	policies, err := m.store.Policies.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list policies: %w", err)
	}

	var logDays, metricDays int
	for _, p := range policies {
		if p.LogRetentionDays > logDays {
			logDays = p.LogRetentionDays
		}
		if p.MetricsRetentionDays > metricDays {
			metricDays = p.MetricsRetentionDays
		}
	}

	now := m.clk.Now()
	var total int64
	var errs error
	if logDays > 0 {
		n, err := m.store.Events.DeleteOlderThan(ctx, now.Add(-time.Duration(logDays)*24*time.Hour))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune lifecycle events: %w", err))
		}
		total += n
	}
	if metricDays > 0 {
		n, err := m.store.Performance.DeleteOlderThan(ctx, now.Add(-time.Duration(metricDays)*24*time.Hour))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune performance logs: %w", err))
		}
		total += n
	}

	if total > 0 {
		m.log.Info("auxiliary data pruned", "rows", total)
	}
	return total, errs
}

// cacheSnapshot writes the archived-session snapshot, best effort.
func (m *Manager) cacheSnapshot(ctx context.Context, s *domain.Session, archivedAt time.Time) {
	if m.cache == nil {
		return
	}
	data, err := json.Marshal(s.Snapshot(archivedAt))
	if err != nil {
		m.log.Warn("snapshot encode failed", "session_id", s.ID, "error", err.Error())
		return
	}
	if err := m.cache.Set(ctx, ArchivedSessionKey(s.ID), data, ArchivedSnapshotTTL); err != nil {
		m.log.Warn("snapshot cache write failed", "session_id", s.ID, "error", err.Error())
	}
}

// ArchivedSnapshot returns the cached archived-session snapshot, if any.
func (m *Manager) ArchivedSnapshot(ctx context.Context, id string) (*domain.ArchivedSession, bool, error) {
	if m.cache == nil {
		return nil, false, nil
	}
	data, ok, err := m.cache.Get(ctx, ArchivedSessionKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var snap domain.ArchivedSession
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, true, nil
}

// policyFor resolves a session's policy, falling back to the default policy
// when the named one is missing.
func (m *Manager) policyFor(ctx context.Context, s *domain.Session) (*domain.RetentionPolicy, error) {
	name := s.RetentionPolicy
	if name == "" {
		name = domain.DefaultPolicyName
	}
	p, err := m.store.Policies.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", name, err)
	}
	if p == nil && name != domain.DefaultPolicyName {
		p, err = m.store.Policies.GetByName(ctx, domain.DefaultPolicyName)
		if err != nil {
			return nil, fmt.Errorf("get default policy: %w", err)
		}
	}
	if p == nil {
		return nil, fmt.Errorf("%w: retention policy %q not found", ErrInvalidConfiguration, name)
	}
	return p, nil
}

// recordEvent appends an audit event. Audit failures are logged and
// swallowed: they never roll back the state change they describe.
func (m *Manager) recordEvent(ctx context.Context, sessionID string, typ domain.LifecycleEventType, details domain.Metadata) {
	e := &domain.LifecycleEvent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		EventType: typ,
		Details:   details,
		CreatedAt: m.clk.Now(),
	}
	if err := m.store.Events.Append(ctx, e); err != nil {
		m.log.Warn("lifecycle event write failed",
			"session_id", sessionID,
			"event", string(typ),
			"error", err.Error())
	}
}
