// Package storage keeps the user directory: who has signed in and when.
// Sessions themselves are never stored; the cookie is the only copy.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/depo-front/internal/session"
)

// ErrUserNotFound is returned when a user doesn't exist
var ErrUserNotFound = errors.New("user not found")

// UserRecord is a directory entry, upserted on every successful sign-in
type UserRecord struct {
	ID          string    `json:"id" firestore:"id"`
	Email       string    `json:"email" firestore:"email"`
	FirstSeen   time.Time `json:"first_seen" firestore:"first_seen"`
	LastSeen    time.Time `json:"last_seen" firestore:"last_seen"`
	SignInCount int64     `json:"sign_in_count" firestore:"sign_in_count"`
}

// UserStore is the user directory
type UserStore interface {
	// RecordSignIn creates or updates the record for user and returns it.
	RecordSignIn(ctx context.Context, user session.User, at time.Time) (*UserRecord, error)

	GetUser(ctx context.Context, id string) (*UserRecord, error)
	ListUsers(ctx context.Context) ([]UserRecord, error)

	// DeleteUsersNotSeenSince removes entries whose last sign-in is before
	// cutoff and returns how many were removed.
	DeleteUsersNotSeenSince(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
