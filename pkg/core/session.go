package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SessionManager holds the authenticated identity of one client and drives
// the CheckingSession -> {Unauthenticated, SignupPending, Authenticated}
// state machine. It is created once per client and passed to every
// component that needs the current user.
type SessionManager struct {
	auth   AuthClient
	logger *slog.Logger

	mu        sync.RWMutex
	state     SessionState
	session   *AuthSession
	observers map[uint64]func(SessionEvent)
	nextObs   uint64

	busy        atomic.Bool
	unsubscribe func()
	closeOnce   sync.Once
}

// NewSessionManager creates a manager in the CheckingSession state and
// subscribes it to the auth client's notifications. Call Close to release
// the subscription.
func NewSessionManager(auth AuthClient, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &SessionManager{
		auth:      auth,
		logger:    logger,
		state:     StateCheckingSession,
		observers: make(map[uint64]func(SessionEvent)),
	}
	m.unsubscribe = auth.OnAuthStateChange(m.handleAuthEvent)
	return m
}

// GetCurrentSession asks the backend for a stored session and settles the
// initial state. It returns nil when nobody is signed in.
func (m *SessionManager) GetCurrentSession(ctx context.Context) (*User, error) {
	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		m.logger.Warn("session lookup failed", "error", err)
		m.transition(StateUnauthenticated, nil, AuthSignedOut)
		return nil, err
	}
	if sess == nil {
		m.transition(StateUnauthenticated, nil, "")
		return nil, nil
	}
	m.transition(StateAuthenticated, sess, AuthSignedIn)
	u := sess.User
	return &u, nil
}

// Restart re-enters CheckingSession and looks the session up again, as a
// page reload would. It is the way back to the login form after a signup
// has been confirmed out of band.
func (m *SessionManager) Restart(ctx context.Context) (*User, error) {
	m.transition(StateCheckingSession, nil, "")
	return m.GetCurrentSession(ctx)
}

// Login submits credentials. A rejection is returned as an error value
// (usually *AuthError) and leaves the state untouched.
func (m *SessionManager) Login(ctx context.Context, email, password string) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.busy.Store(false)

	if m.Status() == StateSignupPending {
		return ErrSignupPending
	}

	sess, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.logger.Debug("login rejected", "email", email, "error", err)
		return err
	}
	m.transition(StateAuthenticated, sess, AuthSignedIn)
	m.logger.Info("user logged in", "user_id", sess.User.ID)
	return nil
}

// Signup registers an account tagged with the display name. Without an
// immediate session the manager moves to SignupPending.
func (m *SessionManager) Signup(ctx context.Context, name, email, password string) (SignupOutcome, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return SignupFailed, ErrBusy
	}
	defer m.busy.Store(false)

	switch m.Status() {
	case StateSignupPending:
		return SignupFailed, ErrSignupPending
	case StateAuthenticated:
		return SignupFailed, ErrAlreadyAuthenticated
	}

	res, err := m.auth.SignUp(ctx, email, password, Metadata{DisplayNameKey: name})
	if err != nil {
		m.logger.Debug("signup rejected", "email", email, "error", err)
		return SignupFailed, err
	}
	if res.Session != nil {
		m.transition(StateAuthenticated, res.Session, AuthSignedIn)
		return SignupWithSession, nil
	}
	m.transition(StateSignupPending, nil, "")
	m.logger.Info("signup awaiting confirmation", "user_id", res.User.ID)
	return SignupAwaitingConfirmation, nil
}

// Logout ends the backend session and clears the local identity. A backend
// failure is logged; the local state is cleared regardless.
func (m *SessionManager) Logout(ctx context.Context) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.busy.Store(false)

	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Warn("backend sign out failed", "error", err)
	}
	m.transition(StateUnauthenticated, nil, AuthSignedOut)
	return nil
}

// OnSessionChange registers fn for every state or identity change. The
// returned function deregisters it and may be called more than once.
func (m *SessionManager) OnSessionChange(fn func(SessionEvent)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// Close releases the auth client subscription.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

// Status returns the current state.
func (m *SessionManager) Status() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentUser returns the signed-in user, or nil.
func (m *SessionManager) CurrentUser() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.state != StateAuthenticated {
		return nil
	}
	u := m.session.User
	return &u
}

// UserID returns the id of the signed-in user, or "".
func (m *SessionManager) UserID() string {
	if u := m.CurrentUser(); u != nil {
		return u.ID
	}
	return ""
}

// AccessToken implements TokenSource.
func (m *SessionManager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// ValidAccessToken implements TokenSource. It looks the stored session up
// through the auth client first, so an expired token is refreshed, or the
// session ends, before the token is handed out.
func (m *SessionManager) ValidAccessToken(ctx context.Context) string {
	if m.Status() != StateAuthenticated {
		return ""
	}
	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		m.logger.Warn("session lookup failed", "error", err)
		return m.AccessToken()
	}
	if sess == nil {
		m.transition(StateUnauthenticated, nil, AuthSignedOut)
		return ""
	}
	m.transition(StateAuthenticated, sess, AuthTokenRefreshed)
	return sess.AccessToken
}

// Busy reports whether an auth request is in flight.
func (m *SessionManager) Busy() bool {
	return m.busy.Load()
}

func (m *SessionManager) handleAuthEvent(e AuthEvent) {
	switch e.Type {
	case AuthSignedOut:
		// A pending signup has no session to lose.
		if m.Status() == StateSignupPending {
			return
		}
		m.transition(StateUnauthenticated, nil, e.Type)
	case AuthSignedIn, AuthTokenRefreshed, AuthUserUpdated:
		if e.Session == nil {
			return
		}
		m.transition(StateAuthenticated, e.Session, e.Type)
	}
}

// transition applies the new state and notifies observers outside the lock.
// Repeating the current state with the same token is a no-op.
func (m *SessionManager) transition(state SessionState, sess *AuthSession, cause AuthEventType) {
	m.mu.Lock()
	if m.state == state && sameSession(m.session, sess) {
		m.mu.Unlock()
		return
	}
	m.state = state
	if sess != nil {
		cp := *sess
		m.session = &cp
	} else {
		m.session = nil
	}

	evt := SessionEvent{State: state, Cause: cause, Timestamp: time.Now().Unix()}
	if m.session != nil {
		u := m.session.User
		evt.User = &u
	}
	observers := make([]func(SessionEvent), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	m.logger.Debug("session state changed", "state", state, "cause", cause)
	for _, fn := range observers {
		fn(evt)
	}
}

func sameSession(a, b *AuthSession) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken && a.User == b.User
}
