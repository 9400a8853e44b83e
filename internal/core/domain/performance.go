package domain

import "time"

// PerformanceLog records one timed operation against a session.
type PerformanceLog struct {
	ID         string    `db:"id" json:"id"`
	SessionID  string    `db:"session_id" json:"session_id"`
	Operation  string    `db:"operation" json:"operation"`
	DurationMs int64     `db:"duration_ms" json:"duration_ms"`
	Success    bool      `db:"success" json:"success"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
