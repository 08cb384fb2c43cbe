package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/launch-bridge/internal/session"
)

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// User is the stored record of a dashboard user. Only profile metadata and
// timestamps are kept; tokens and handoff URLs never reach storage.
type User struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	LastLaunch  *time.Time `json:"last_launch,omitempty"`
	Launches    int64      `json:"launches"`
}

// Storage keeps user records
type Storage interface {
	// UpsertUser creates the user on first sign-in and refreshes the profile and
	// last seen time afterwards
	UpsertUser(ctx context.Context, sess session.Session) error
	GetUser(ctx context.Context, userID string) (*User, error)
	// RecordLaunch notes a redirect to the destination application
	RecordLaunch(ctx context.Context, userID string, at time.Time) error
	ListUsers(ctx context.Context) ([]User, error)
	Close() error
}
