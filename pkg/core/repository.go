package core

import (
	"context"
	"sync"
)

// AuthClient is a stateful handle on the backend's authentication service.
// It holds at most one session, persisted through a SessionStorage.
type AuthClient interface {
	// SignInWithPassword authenticates and stores the resulting session.
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)

	// SignUp registers a new account. The result carries no session while
	// the account awaits email confirmation.
	SignUp(ctx context.Context, email, password string, metadata Metadata) (*SignUpResult, error)

	// SignOut ends the stored session, locally and on the backend.
	SignOut(ctx context.Context) error

	// GetSession returns the stored session, or nil when there is none.
	GetSession(ctx context.Context) (*AuthSession, error)

	// OnAuthStateChange registers fn for every session transition.
	// The returned function removes the registration.
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
}

// NoteStore performs the table operations on the remote notes resource.
// The caller's access token travels in the context (see WithAccessToken).
type NoteStore interface {
	// Select returns the notes whose user_id equals userID, ordered by note_date descending.
	Select(ctx context.Context, userID string) ([]Note, error)

	// Insert creates a note and returns it with its generated id and created_at.
	Insert(ctx context.Context, n Note) (Note, error)

	// Update overwrites the mutable fields of the note with the given id.
	Update(ctx context.Context, id string, in NoteInput) (Note, error)

	// Delete removes the note with the given id.
	Delete(ctx context.Context, id string) error
}

// Backend is a hosted authentication + storage provider.
type Backend interface {
	// NewAuthClient returns an auth handle whose session lives in storage.
	NewAuthClient(storage SessionStorage) AuthClient

	// Notes returns the shared table client.
	Notes() NoteStore
}

// SessionStorage persists the session held by an AuthClient.
type SessionStorage interface {
	// Load returns the stored session, or nil when there is none.
	Load(ctx context.Context) (*AuthSession, error)
	Save(ctx context.Context, s *AuthSession) error
	Clear(ctx context.Context) error
}

// TokenSource hands out the access token for the next store call. An empty
// token means nobody is signed in.
type TokenSource interface {
	ValidAccessToken(ctx context.Context) string
}

type contextKey string

// AccessTokenKey is the context key carrying the caller's access token to a NoteStore.
const AccessTokenKey contextKey = "access_token"

// WithAccessToken returns a context carrying token.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, AccessTokenKey, token)
}

// AccessTokenFrom returns the token attached by WithAccessToken, or "".
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(AccessTokenKey).(string)
	return token
}

// MemoryStorage keeps the session in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	session *AuthSession
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(ctx context.Context) (*AuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStorage) Save(ctx context.Context, s *AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		m.session = nil
		return nil
	}
	cp := *s
	m.session = &cp
	return nil
}

func (m *MemoryStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
