package domain

import (
	"errors"
	"time"
)

// Session represents a unit of agent-to-agent handoff context.
// Status tracks the hard lifecycle; IsDormant is an orthogonal overlay on
// active sessions. ArchivedAt non-nil implies IsDormant.
type Session struct {
	ID              string        `db:"id" json:"id"`
	SessionKey      string        `db:"session_key" json:"session_key"`
	AgentFrom       string        `db:"agent_from" json:"agent_from"`
	AgentTo         string        `db:"agent_to" json:"agent_to,omitempty"`
	Status          SessionStatus `db:"status" json:"status"`
	IsDormant       bool          `db:"is_dormant" json:"is_dormant"`
	RetentionPolicy string        `db:"retention_policy" json:"retention_policy"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	LastActivityAt  time.Time     `db:"last_activity_at" json:"last_activity_at"`
	ExpiresAt       *time.Time    `db:"expires_at" json:"expires_at,omitempty"`
	ArchivedAt      *time.Time    `db:"archived_at" json:"archived_at,omitempty"`
	Metadata        Metadata      `db:"metadata" json:"metadata,omitempty"`
}

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidStatusTransitions defines allowed status changes.
// Key is the current status, value is the list of valid next statuses.
var ValidStatusTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusActive:    {SessionStatusCompleted, SessionStatusExpired},
	SessionStatusCompleted: {SessionStatusExpired},
	SessionStatusExpired:   {},
}

// CanTransition checks if a status change from one value to another is valid.
func CanTransition(from, to SessionStatus) bool {
	validTargets, ok := ValidStatusTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsArchived reports whether the session has been archived.
func (s *Session) IsArchived() bool {
	return s.ArchivedAt != nil
}

// ArchivedSession is the lightweight snapshot cached when a session is
// archived. It carries everything except the context payload.
type ArchivedSession struct {
	ID              string        `json:"id"`
	SessionKey      string        `json:"session_key"`
	AgentFrom       string        `json:"agent_from"`
	AgentTo         string        `json:"agent_to,omitempty"`
	Status          SessionStatus `json:"status"`
	RetentionPolicy string        `json:"retention_policy"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActivityAt  time.Time     `json:"last_activity_at"`
	ArchivedAt      time.Time     `json:"archived_at"`
	Metadata        Metadata      `json:"metadata,omitempty"`
}

// Snapshot builds the archived-session snapshot for the cache.
func (s *Session) Snapshot(archivedAt time.Time) *ArchivedSession {
	return &ArchivedSession{
		ID:              s.ID,
		SessionKey:      s.SessionKey,
		AgentFrom:       s.AgentFrom,
		AgentTo:         s.AgentTo,
		Status:          s.Status,
		RetentionPolicy: s.RetentionPolicy,
		CreatedAt:       s.CreatedAt,
		LastActivityAt:  s.LastActivityAt,
		ArchivedAt:      archivedAt,
		Metadata:        s.Metadata,
	}
}
