package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/handoff/internal/core/domain"
	"github.com/vietddude/handoff/internal/infra/storage"
)

// Storage keeps all aggregates in mutex-guarded maps. Used by tests and by
// service runs without a configured database.
type Storage struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	keys     map[string]string // session_key -> id
	policies map[string]*domain.RetentionPolicy
	events   map[string][]*domain.LifecycleEvent
	contexts map[string][]*domain.ContextEntry
	perf     map[string][]*domain.PerformanceLog
}

func NewStorage() *Storage {
	return &Storage{
		sessions: make(map[string]*domain.Session),
		keys:     make(map[string]string),
		policies: make(map[string]*domain.RetentionPolicy),
		events:   make(map[string][]*domain.LifecycleEvent),
		contexts: make(map[string][]*domain.ContextEntry),
		perf:     make(map[string][]*domain.PerformanceLog),
	}
}

// NewStore builds the repository bundle over this storage.
func (s *Storage) NewStore() *storage.Store {
	return &storage.Store{
		Sessions:    &SessionRepo{store: s},
		Policies:    &PolicyRepo{store: s},
		Events:      &EventRepo{store: s},
		Contexts:    &ContextRepo{store: s},
		Performance: &PerformanceRepo{store: s},
	}
}

// -----------------------------------------------------------------------------
// Session Repository
// -----------------------------------------------------------------------------

type SessionRepo struct {
	store *Storage
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	if other, ok := r.store.keys[s.SessionKey]; ok {
		return fmt.Errorf("session key %q already used by %s", s.SessionKey, other)
	}
	cp := *s
	r.store.sessions[s.ID] = &cp
	r.store.keys[s.SessionKey] = s.ID
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepo) GetByKey(ctx context.Context, key string) (*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.keys[key]
	if !ok {
		return nil, nil
	}
	cp := *r.store.sessions[id]
	return &cp, nil
}

func (r *SessionRepo) TouchActivity(ctx context.Context, id string, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s, ok := r.store.sessions[id]; ok {
		s.LastActivityAt = now
		s.UpdatedAt = now
	}
	return nil
}

func (r *SessionRepo) SetExpiresAt(ctx context.Context, id string, expiresAt, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return false, nil
	}
	t := expiresAt
	s.ExpiresAt = &t
	s.UpdatedAt = now
	return true, nil
}

func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return false, nil
	}
	s.Status = status
	s.UpdatedAt = now
	return true, nil
}

func (r *SessionRepo) SetArchived(ctx context.Context, id string, archivedAt time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return false, nil
	}
	t := archivedAt
	s.ArchivedAt = &t
	s.IsDormant = true
	s.UpdatedAt = archivedAt
	return true, nil
}

func (r *SessionRepo) MarkDormant(ctx context.Context, id string, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return false, nil
	}
	s.IsDormant = true
	s.UpdatedAt = now
	return true, nil
}

func (r *SessionRepo) Reactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return false, nil
	}
	s.IsDormant = false
	s.LastActivityAt = now
	s.UpdatedAt = now
	return true, nil
}

func (r *SessionRepo) ListDormantCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.store.sessions {
		if s.Status == domain.SessionStatusActive && !s.IsDormant &&
			s.RetentionPolicy == policy && s.LastActivityAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *SessionRepo) ListOrphaned(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.store.sessions {
		if s.Status == domain.SessionStatusActive && s.LastActivityAt.Before(cutoff) &&
			len(r.store.contexts[s.ID]) == 0 {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *SessionRepo) ListPastExpiry(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.store.sessions {
		if s.Status == domain.SessionStatusActive && s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *SessionRepo) ListArchiveCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.store.sessions {
		if s.ArchivedAt == nil && s.RetentionPolicy == policy && s.LastActivityAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *SessionRepo) ListDeleteCandidates(ctx context.Context, policy string, cutoff time.Time) ([]*domain.Session, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Session
	for _, s := range r.store.sessions {
		if s.ArchivedAt != nil && s.RetentionPolicy == policy && s.ArchivedAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *SessionRepo) CountByStatus(ctx context.Context, status domain.SessionStatus) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, s := range r.store.sessions {
		if s.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *SessionRepo) CountArchived(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, s := range r.store.sessions {
		if s.ArchivedAt != nil {
			count++
		}
	}
	return count, nil
}

func (r *SessionRepo) CountOrphaned(ctx context.Context, cutoff time.Time) (int, error) {
	sessions, err := r.ListOrphaned(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s, ok := r.store.sessions[id]; ok {
		delete(r.store.keys, s.SessionKey)
		delete(r.store.sessions, id)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Policy Repository
// -----------------------------------------------------------------------------

type PolicyRepo struct {
	store *Storage
}

func (r *PolicyRepo) Upsert(ctx context.Context, p *domain.RetentionPolicy) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *p
	if existing, ok := r.store.policies[p.Name]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	r.store.policies[p.Name] = &cp
	return nil
}

func (r *PolicyRepo) GetByName(ctx context.Context, name string) (*domain.RetentionPolicy, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	p, ok := r.store.policies[name]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *PolicyRepo) List(ctx context.Context) ([]*domain.RetentionPolicy, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.RetentionPolicy, 0, len(r.store.policies))
	for _, p := range r.store.policies {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Lifecycle Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *Storage
}

func (r *EventRepo) Append(ctx context.Context, e *domain.LifecycleEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *e
	r.store.events[e.SessionID] = append(r.store.events[e.SessionID], &cp)
	return nil
}

func (r *EventRepo) ListBySession(ctx context.Context, sessionID string) ([]*domain.LifecycleEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	events := r.store.events[sessionID]
	out := make([]*domain.LifecycleEvent, 0, len(events))
	for _, e := range events {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (r *EventRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.events[sessionID]), nil
}

func (r *EventRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.events, sessionID)
	return nil
}

func (r *EventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var removed int64
	for id, events := range r.store.events {
		kept := events[:0]
		for _, e := range events {
			if e.CreatedAt.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.store.events, id)
		} else {
			r.store.events[id] = kept
		}
	}
	return removed, nil
}

// -----------------------------------------------------------------------------
// Context History Repository
// -----------------------------------------------------------------------------

type ContextRepo struct {
	store *Storage
}

func (r *ContextRepo) Append(ctx context.Context, e *domain.ContextEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *e
	r.store.contexts[e.SessionID] = append(r.store.contexts[e.SessionID], &cp)
	return nil
}

func (r *ContextRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.contexts[sessionID]), nil
}

func (r *ContextRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.contexts, sessionID)
	return nil
}

// -----------------------------------------------------------------------------
// Performance Log Repository
// -----------------------------------------------------------------------------

type PerformanceRepo struct {
	store *Storage
}

func (r *PerformanceRepo) Record(ctx context.Context, l *domain.PerformanceLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *l
	r.store.perf[l.SessionID] = append(r.store.perf[l.SessionID], &cp)
	return nil
}

func (r *PerformanceRepo) CountBySession(ctx context.Context, sessionID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.perf[sessionID]), nil
}

func (r *PerformanceRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.perf, sessionID)
	return nil
}

func (r *PerformanceRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var removed int64
	for id, logs := range r.store.perf {
		kept := logs[:0]
		for _, l := range logs {
			if l.CreatedAt.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(r.store.perf, id)
		} else {
			r.store.perf[id] = kept
		}
	}
	return removed, nil
}
