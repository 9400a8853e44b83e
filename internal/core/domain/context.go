package domain

import "time"

// ContextEntry is one unit of handoff context attached to a session. The
// lifecycle core only counts and deletes these rows; it never interprets
// the content.
type ContextEntry struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	EntryType string    `db:"entry_type" json:"entry_type"`
	Content   string    `db:"content" json:"content"`
	Metadata  Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
