package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/diary/pkg/core"
)

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u gotrueUser) toUser() core.User {
	user := core.User{ID: u.ID, Email: u.Email}
	if name, ok := u.UserMetadata[core.DisplayNameKey].(string); ok {
		user.DisplayName = name
	}
	return user
}

type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *gotrueUser `json:"user"`
}

// signupResponse is a session when the project auto-confirms, and the bare
// user object otherwise.
type signupResponse struct {
	gotrueSession
	gotrueUser
}

// AuthClient is a GoTrue session holder. It implements core.AuthClient.
type AuthClient struct {
	core.AuthBroadcaster
	backend *Backend
	storage core.SessionStorage

	refreshMu sync.Mutex
}

func (c *AuthClient) toSession(s gotrueSession) (*core.AuthSession, error) {
	if s.AccessToken == "" {
		return nil, nil
	}
	sess := &core.AuthSession{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}

	claims, err := parseToken(s.AccessToken)
	if err != nil {
		return nil, err
	}
	switch {
	case s.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		sess.ExpiresAt = c.backend.config.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	case claims.ExpiresAt != nil:
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	if s.User != nil {
		sess.User = s.User.toUser()
	} else {
		sess.User = claims.user()
	}
	return sess, nil
}

func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*core.AuthSession, error) {
	var out gotrueSession
	err := c.backend.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	if err != nil {
		return nil, authError(err)
	}
	sess, err := c.toSession(out)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &core.AuthError{Status: http.StatusBadGateway, Message: "sign in returned no session"}
	}
	if err := c.storage.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	c.Emit(core.AuthSignedIn, sess)
	return sess, nil
}

func (c *AuthClient) SignUp(ctx context.Context, email, password string, metadata core.Metadata) (*core.SignUpResult, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	var out signupResponse
	err := c.backend.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: body}, &out)
	if err != nil {
		return nil, authError(err)
	}

	sess, err := c.toSession(out.gotrueSession)
	if err != nil {
		return nil, err
	}
	res := &core.SignUpResult{Session: sess}
	switch {
	case sess != nil:
		res.User = sess.User
	case out.User != nil:
		res.User = out.User.toUser()
	default:
		res.User = out.gotrueUser.toUser()
	}

	if sess != nil {
		if err := c.storage.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
		c.Emit(core.AuthSignedIn, sess)
	}
	return res, nil
}

// SignOut revokes the session on the project and clears it locally. The
// local session is cleared even when the revocation fails.
func (c *AuthClient) SignOut(ctx context.Context) error {
	sess, err := c.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	var remoteErr error
	if sess != nil {
		remoteErr = c.backend.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			token:  sess.AccessToken,
		}, nil)
		var he *httpError
		if errors.As(remoteErr, &he) && (he.status == http.StatusUnauthorized || he.status == http.StatusForbidden || he.status == http.StatusNotFound) {
			remoteErr = nil // already gone
		}
	}

	if err := c.storage.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.Emit(core.AuthSignedOut, nil)
	if remoteErr != nil {
		return fmt.Errorf("revoke session: %w", authError(remoteErr))
	}
	return nil
}

// GetSession returns the stored session, refreshing it when the access
// token has expired. A refresh token the project rejects signs the client out.
func (c *AuthClient) GetSession(ctx context.Context) (*core.AuthSession, error) {
	sess, err := c.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || !sess.Expired(c.backend.config.Now()) {
		return sess, nil
	}
	return c.refresh(ctx, sess)
}

// GetUser fetches the user of the stored session from the project.
func (c *AuthClient) GetUser(ctx context.Context) (*core.User, error) {
	sess, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, core.ErrNotAuthenticated
	}
	var out gotrueUser
	if err := c.backend.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: sess.AccessToken}, &out); err != nil {
		return nil, authError(err)
	}
	u := out.toUser()
	return &u, nil
}

// StartAutoRefresh renews the access token shortly before it expires until
// ctx is cancelled.
func (c *AuthClient) StartAutoRefresh(ctx context.Context) {
	cfg := c.backend.config
	lifecycle.Go(ctx, func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := c.refreshIfDue(ctx); err != nil {
					cfg.Logger.Warn("token auto-refresh failed", "error", err)
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		cfg.Logger.Error("token auto-refresh panic", "error", err)
	}))
}

func (c *AuthClient) refreshIfDue(ctx context.Context) error {
	sess, err := c.storage.Load(ctx)
	if err != nil || sess == nil {
		return err
	}
	cfg := c.backend.config
	if sess.ExpiresAt.Sub(cfg.Now()) > cfg.RefreshMargin {
		return nil
	}
	_, err = c.refresh(ctx, sess)
	return err
}

func (c *AuthClient) refresh(ctx context.Context, stale *core.AuthSession) (*core.AuthSession, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have rotated the token while we waited.
	if cur, err := c.storage.Load(ctx); err == nil && cur != nil && cur.RefreshToken != stale.RefreshToken {
		return cur, nil
	}

	var out gotrueSession
	err := c.backend.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": stale.RefreshToken},
	}, &out)
	if err != nil {
		var he *httpError
		if errors.As(err, &he) && he.status < http.StatusInternalServerError {
			c.backend.config.Logger.Info("refresh token rejected, signing out", "error", err)
			_ = c.storage.Clear(ctx)
			c.Emit(core.AuthSignedOut, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	sess, err := c.toSession(out)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("refresh session: empty response")
	}
	if err := c.storage.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	c.Emit(core.AuthTokenRefreshed, sess)
	return sess, nil
}
