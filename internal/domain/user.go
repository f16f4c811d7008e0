// Package domain contains core domain types for the For the Record application.
package domain

import (
	"time"
)

// User represents an anonymous per-device identity that owns stories and a profile.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
