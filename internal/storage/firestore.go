package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/session"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStorage implements Storage using Google Cloud Firestore, one document
// per user keyed by user id.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// Ensure FirestoreStorage implements Storage interface
var _ Storage = (*FirestoreStorage)(nil)

// UserDoc represents a user document in Firestore
type UserDoc struct {
	UserID      string     `firestore:"user_id"`
	Username    string     `firestore:"username,omitempty"`
	DisplayName string     `firestore:"display_name,omitempty"`
	Email       string     `firestore:"email,omitempty"`
	Provider    string     `firestore:"provider,omitempty"`
	FirstSeen   time.Time  `firestore:"first_seen"`
	LastSeen    time.Time  `firestore:"last_seen"`
	LastLaunch  *time.Time `firestore:"last_launch,omitempty"`
	Launches    int64      `firestore:"launches"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	// Validate required parameters
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
	}, nil
}

func (s *FirestoreStorage) users() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

// UpsertUser creates or updates a user's profile and last seen time
func (s *FirestoreStorage) UpsertUser(ctx context.Context, sess session.Session) error {
	now := time.Now()
	ref := s.users().Doc(sess.UserID)

	// Try to update existing user first
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "username", Value: sess.Username},
		{Path: "display_name", Value: sess.DisplayName},
		{Path: "email", Value: sess.Email},
		{Path: "provider", Value: sess.Provider},
		{Path: "last_seen", Value: now},
	})
	if err == nil {
		return nil
	}

	// User doesn't exist, create new
	if status.Code(err) == codes.NotFound {
		_, err = ref.Set(ctx, UserDoc{
			UserID:      sess.UserID,
			Username:    sess.Username,
			DisplayName: sess.DisplayName,
			Email:       sess.Email,
			Provider:    sess.Provider,
			FirstSeen:   now,
			LastSeen:    now,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to update user: %w", err)
}

// GetUser returns the user's record
func (s *FirestoreStorage) GetUser(ctx context.Context, userID string) (*User, error) {
	doc, err := s.users().Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var userDoc UserDoc
	if err := doc.DataTo(&userDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	user := User(userDoc)
	return &user, nil
}

// RecordLaunch sets the last launch time and bumps the launch count
func (s *FirestoreStorage) RecordLaunch(ctx context.Context, userID string, at time.Time) error {
	_, err := s.users().Doc(userID).Update(ctx, []firestore.Update{
		{Path: "last_launch", Value: at},
		{Path: "launches", Value: firestore.Increment(1)},
	})
	if status.Code(err) == codes.NotFound {
		return ErrUserNotFound
	}
	return err
}

// ListUsers returns every stored user, most recently seen first
func (s *FirestoreStorage) ListUsers(ctx context.Context) ([]User, error) {
	iter := s.users().OrderBy("last_seen", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var users []User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate users: %w", err)
		}

		var userDoc UserDoc
		if err := doc.DataTo(&userDoc); err != nil {
			log.LogError("Failed to unmarshal user: %v", err)
			continue
		}
		users = append(users, User(userDoc))
	}
	return users, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
