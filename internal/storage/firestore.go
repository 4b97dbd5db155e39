package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/session"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ UserStore = (*FirestoreStorage)(nil)

// FirestoreStorage keeps the user directory in a Firestore collection
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

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

// docID maps a provider user ID to a valid document ID
func docID(userID string) string {
	return strings.ReplaceAll(userID, "/", "_")
}

// RecordSignIn upserts the user in a transaction so concurrent sign-ins
// of the same user count correctly
func (s *FirestoreStorage) RecordSignIn(ctx context.Context, user session.User, at time.Time) (*UserRecord, error) {
	ref := s.client.Collection(s.collection).Doc(docID(user.ID))

	var rec UserRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		switch {
		case err == nil:
			if err := doc.DataTo(&rec); err != nil {
				return fmt.Errorf("failed to unmarshal user: %w", err)
			}
		case status.Code(err) == codes.NotFound:
			rec = UserRecord{ID: user.ID, FirstSeen: at}
		default:
			return err
		}

		rec.Email = user.Email
		rec.LastSeen = at
		rec.SignInCount++
		return tx.Set(ref, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record sign-in: %w", err)
	}
	return &rec, nil
}

// GetUser returns one user
func (s *FirestoreStorage) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	doc, err := s.client.Collection(s.collection).Doc(docID(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var rec UserRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &rec, nil
}

// ListUsers returns all users, most recently seen first
func (s *FirestoreStorage) ListUsers(ctx context.Context) ([]UserRecord, error) {
	iter := s.client.Collection(s.collection).OrderBy("last_seen", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var users []UserRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate users: %w", err)
		}

		var rec UserRecord
		if err := doc.DataTo(&rec); err != nil {
			log.LogError("Failed to unmarshal user: %v", err)
			continue
		}
		users = append(users, rec)
	}
	return users, nil
}

// DeleteUsersNotSeenSince removes stale entries
func (s *FirestoreStorage) DeleteUsersNotSeenSince(ctx context.Context, cutoff time.Time) (int, error) {
	iter := s.client.Collection(s.collection).Where("last_seen", "<", cutoff).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate stale users: %w", err)
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.LogError("Failed to delete stale user %s: %v", doc.Ref.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
