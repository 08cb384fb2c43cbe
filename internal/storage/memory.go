package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgellow/launch-bridge/internal/session"
)

// MemoryStorage is an in-memory Storage. Records are lost on restart.
type MemoryStorage struct {
	clock      clock.Clock
	users      map[string]*User
	usersMutex sync.RWMutex
}

// Ensure MemoryStorage implements Storage interface
var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		clock: clock.New(),
		users: make(map[string]*User),
	}
}

// UpsertUser creates or updates a user's profile and last seen time
func (s *MemoryStorage) UpsertUser(ctx context.Context, sess session.Session) error {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	now := s.clock.Now()
	user, exists := s.users[sess.UserID]
	if !exists {
		user = &User{UserID: sess.UserID, FirstSeen: now}
		s.users[sess.UserID] = user
	}
	user.Username = sess.Username
	user.DisplayName = sess.DisplayName
	user.Email = sess.Email
	user.Provider = sess.Provider
	user.LastSeen = now
	return nil
}

// GetUser returns a copy of the user's record
func (s *MemoryStorage) GetUser(ctx context.Context, userID string) (*User, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, ErrUserNotFound
	}
	userCopy := copyUser(user)
	return &userCopy, nil
}

func copyUser(user *User) User {
	userCopy := *user
	if user.LastLaunch != nil {
		at := *user.LastLaunch
		userCopy.LastLaunch = &at
	}
	return userCopy
}

// RecordLaunch sets the last launch time and bumps the launch count
func (s *MemoryStorage) RecordLaunch(ctx context.Context, userID string, at time.Time) error {
	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrUserNotFound
	}
	user.LastLaunch = &at
	user.Launches++
	return nil
}

// ListUsers returns every stored user, most recently seen first
func (s *MemoryStorage) ListUsers(ctx context.Context) ([]User, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, copyUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].LastSeen.After(users[j].LastSeen)
	})
	return users, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
