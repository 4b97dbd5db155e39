package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dgellow/depo-front/internal/session"
)

var _ UserStore = (*MemoryStorage)(nil)

// MemoryStorage is an in-process user directory
type MemoryStorage struct {
	users map[string]*UserRecord
	mu    sync.RWMutex
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[string]*UserRecord),
	}
}

// RecordSignIn creates or updates a user's last seen time
func (s *MemoryStorage) RecordSignIn(_ context.Context, user session.User, at time.Time) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.users[user.ID]
	if !exists {
		rec = &UserRecord{ID: user.ID, FirstSeen: at}
		s.users[user.ID] = rec
	}
	rec.Email = user.Email
	rec.LastSeen = at
	rec.SignInCount++

	out := *rec
	return &out, nil
}

// GetUser returns a copy of the user's record
func (s *MemoryStorage) GetUser(_ context.Context, id string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	out := *rec
	return &out, nil
}

// ListUsers returns all users, most recently seen first
func (s *MemoryStorage) ListUsers(_ context.Context) ([]UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		users = append(users, *rec)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].LastSeen.After(users[j].LastSeen)
	})
	return users, nil
}

// DeleteUsersNotSeenSince removes stale entries
func (s *MemoryStorage) DeleteUsersNotSeenSince(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, rec := range s.users {
		if rec.LastSeen.Before(cutoff) {
			delete(s.users, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op
func (s *MemoryStorage) Close() error {
	return nil
}
