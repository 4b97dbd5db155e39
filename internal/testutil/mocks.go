package testutil

import (
	"context"
	"time"

	"github.com/dgellow/depo-front/internal/session"
	"github.com/dgellow/depo-front/internal/storage"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a testify mock of idp.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Type() string {
	return "mock"
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockProvider) Refresh(ctx context.Context, current *session.Session) (*session.Session, error) {
	args := m.Called(ctx, current)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockProvider) SignOut(ctx context.Context, s *session.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

// MockUserStore is a testify mock of storage.UserStore.
type MockUserStore struct {
	mock.Mock
}

var _ storage.UserStore = (*MockUserStore)(nil)

func (m *MockUserStore) RecordSignIn(ctx context.Context, user session.User, at time.Time) (*storage.UserRecord, error) {
	args := m.Called(ctx, user, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UserRecord), args.Error(1)
}

func (m *MockUserStore) GetUser(ctx context.Context, id string) (*storage.UserRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UserRecord), args.Error(1)
}

func (m *MockUserStore) ListUsers(ctx context.Context) ([]storage.UserRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.UserRecord), args.Error(1)
}

func (m *MockUserStore) DeleteUsersNotSeenSince(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockUserStore) Close() error {
	return m.Called().Error(0)
}

// TestSession returns a session for user id expiring at expiresAt.
func TestSession(id string, expiresAt time.Time) *session.Session {
	return &session.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         session.User{ID: id, Email: id + "@example.com"},
		Provider:     "mock",
	}
}

// TestKey is a 32 byte key for codecs and CSRF protection in tests.
var TestKey = []byte("0123456789abcdef0123456789abcdef")
