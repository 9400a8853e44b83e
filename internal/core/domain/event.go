package domain

import "time"

// LifecycleEvent is an append-only audit record of a session transition.
type LifecycleEvent struct {
	ID        string             `db:"id" json:"id"`
	SessionID string             `db:"session_id" json:"session_id"`
	EventType LifecycleEventType `db:"event_type" json:"event_type"`
	Details   Metadata           `db:"details" json:"details,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

type LifecycleEventType string

const (
	EventExpirationScheduled LifecycleEventType = "expiration_scheduled"
	EventExpired             LifecycleEventType = "expired"
	EventArchived            LifecycleEventType = "archived"
	EventMarkedDormant       LifecycleEventType = "marked_dormant"
	EventReactivated         LifecycleEventType = "reactivated"
)
