package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aretw0/diary/pkg/core"
)

const minPasswordLength = 6

var (
	errInvalidCredentials = &core.AuthError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	errEmailNotConfirmed  = &core.AuthError{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	errUserExists         = &core.AuthError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	errWeakPassword       = &core.AuthError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: fmt.Sprintf("Password should be at least %d characters.", minPasswordLength)}
	errInvalidEmail       = &core.AuthError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Unable to validate email address: invalid format"}
	errRefreshNotFound    = &core.AuthError{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	errSessionExpired     = &core.AuthError{Status: http.StatusBadRequest, Code: "session_expired", Message: "Session Expired"}
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// authClient holds one session against the shared Backend.
type authClient struct {
	core.AuthBroadcaster
	backend *Backend
	storage core.SessionStorage
}

func (c *authClient) SignInWithPassword(ctx context.Context, email, password string) (*core.AuthSession, error) {
	b := c.backend
	b.mu.Lock()
	acc, ok := b.byEmail[normalizeEmail(email)]
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		b.mu.Unlock()
		return nil, errInvalidCredentials
	}
	if !acc.confirmed {
		b.mu.Unlock()
		return nil, errEmailNotConfirmed
	}
	sess, err := b.issueLocked(acc, b.sessionExpiry())
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := c.storage.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	b.config.Logger.Debug("memory backend: signed in", "user_id", sess.User.ID)
	c.Emit(core.AuthSignedIn, sess)
	return sess, nil
}

func (c *authClient) SignUp(ctx context.Context, email, password string, metadata core.Metadata) (*core.SignUpResult, error) {
	key := normalizeEmail(email)
	if !strings.Contains(key, "@") {
		return nil, errInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, errWeakPassword
	}

	b := c.backend
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := core.User{ID: uuid.NewString(), Email: strings.TrimSpace(email)}
	if name, ok := metadata[core.DisplayNameKey].(string); ok {
		user.DisplayName = name
	}

	b.mu.Lock()
	if _, exists := b.byEmail[key]; exists {
		b.mu.Unlock()
		return nil, errUserExists
	}
	acc := &account{user: user, hash: hash, confirmed: b.config.AutoConfirm}
	b.byEmail[key] = acc
	b.byID[user.ID] = acc

	res := &core.SignUpResult{User: user}
	if acc.confirmed {
		res.Session, err = b.issueLocked(acc, b.sessionExpiry())
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if res.Session != nil {
		if err := c.storage.Save(ctx, res.Session); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
		c.Emit(core.AuthSignedIn, res.Session)
	}
	b.config.Logger.Debug("memory backend: signed up", "user_id", user.ID, "confirmed", acc.confirmed)
	return res, nil
}

func (c *authClient) SignOut(ctx context.Context) error {
	sess, err := c.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess != nil {
		c.backend.mu.Lock()
		delete(c.backend.refresh, sess.RefreshToken)
		c.backend.mu.Unlock()
	}
	if err := c.storage.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.Emit(core.AuthSignedOut, nil)
	return nil
}

// GetSession returns the stored session, refreshing it first when the
// access token has expired. A failed refresh signs the client out.
func (c *authClient) GetSession(ctx context.Context) (*core.AuthSession, error) {
	sess, err := c.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || !sess.Expired(c.backend.config.Now()) {
		return sess, nil
	}

	refreshed, err := c.backend.refreshSession(sess.RefreshToken)
	if err != nil {
		_ = c.storage.Clear(ctx)
		c.Emit(core.AuthSignedOut, nil)
		return nil, nil
	}
	if err := c.storage.Save(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	c.Emit(core.AuthTokenRefreshed, refreshed)
	return refreshed, nil
}

// refreshSession rotates a refresh token into a new session.
func (b *Backend) refreshSession(refresh string) (*core.AuthSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	grant, ok := b.refresh[refresh]
	if !ok {
		return nil, errRefreshNotFound
	}
	delete(b.refresh, refresh)
	if !grant.expires.IsZero() && !b.config.Now().Before(grant.expires) {
		return nil, errSessionExpired
	}
	acc, ok := b.byID[grant.userID]
	if !ok {
		return nil, errRefreshNotFound
	}
	return b.issueLocked(acc, grant.expires)
}
