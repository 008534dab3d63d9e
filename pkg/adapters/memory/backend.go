// Package memory provides an in-process backend that honours the same
// contract as the hosted one: password accounts with optional email
// confirmation, signed access tokens, and a notes table whose rows are only
// visible to their owner. It backs tests and offline development.
package memory

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aretw0/diary/pkg/core"
)

// Config holds the configuration for the in-memory backend.
type Config struct {
	AutoConfirm bool          // Signups receive a session immediately instead of awaiting confirmation.
	TokenTTL    time.Duration // Access token lifetime. Defaults to one hour.
	SessionTTL  time.Duration // Refresh tokens stop working this long after sign-in. Zero means never.
	Secret      []byte        // HS256 signing key. Random when empty.
	BcryptCost  int           // Defaults to bcrypt.DefaultCost.
	Logger      *slog.Logger
	Now         func() time.Time
}

type account struct {
	user      core.User
	hash      []byte
	confirmed bool
}

// refreshGrant is what a refresh token stands for.
type refreshGrant struct {
	userID  string
	expires time.Time // zero: never
}

type claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Backend implements core.Backend in memory.
type Backend struct {
	config Config

	mu      sync.RWMutex
	byEmail map[string]*account
	byID    map[string]*account
	refresh map[string]refreshGrant
	notes   map[string]core.Note
	table   *noteTable
}

// New creates an empty backend.
func New(config Config) *Backend {
	if config.TokenTTL <= 0 {
		config.TokenTTL = time.Hour
	}
	if len(config.Secret) == 0 {
		config.Secret = make([]byte, 32)
		if _, err := rand.Read(config.Secret); err != nil {
			panic(fmt.Sprintf("memory backend: generate secret: %v", err))
		}
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	b := &Backend{
		config:  config,
		byEmail: make(map[string]*account),
		byID:    make(map[string]*account),
		refresh: make(map[string]refreshGrant),
		notes:   make(map[string]core.Note),
	}
	b.table = &noteTable{b: b}
	return b
}

// NewAuthClient implements core.Backend.
func (b *Backend) NewAuthClient(storage core.SessionStorage) core.AuthClient {
	if storage == nil {
		storage = core.NewMemoryStorage()
	}
	return &authClient{backend: b, storage: storage}
}

// Notes implements core.Backend.
func (b *Backend) Notes() core.NoteStore {
	return b.table
}

// ConfirmUser marks the account as confirmed, as following the emailed link would.
func (b *Backend) ConfirmUser(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.byEmail[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("confirm %q: %w", email, core.ErrNotFound)
	}
	acc.confirmed = true
	return nil
}

// issueLocked mints a session for acc, valid for refresh until expires.
// The caller holds b.mu.
func (b *Backend) issueLocked(acc *account, expires time.Time) (*core.AuthSession, error) {
	now := b.config.Now()
	exp := now.Add(b.config.TokenTTL).Truncate(time.Second)
	c := claims{
		Email: acc.user.Email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if acc.user.DisplayName != "" {
		c.UserMetadata = map[string]any{core.DisplayNameKey: acc.user.DisplayName}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(b.config.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh := uuid.NewString()
	b.refresh[refresh] = refreshGrant{userID: acc.user.ID, expires: expires}
	return &core.AuthSession{
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		User:         acc.user,
	}, nil
}

// sessionExpiry is the refresh deadline of a session started now.
func (b *Backend) sessionExpiry() time.Time {
	if b.config.SessionTTL <= 0 {
		return time.Time{}
	}
	return b.config.Now().Add(b.config.SessionTTL)
}

// verify returns the user id carried by a valid access token.
func (b *Backend) verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("missing access token")
	}
	c := &claims{}
	_, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return b.config.Secret, nil
	}, jwt.WithTimeFunc(b.config.Now))
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}
