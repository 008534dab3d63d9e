package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrNotAuthenticated is returned when an action runs without a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound is wrapped by BackendError when the row does not exist or is not visible.
	ErrNotFound = errors.New("not found")
	// ErrBusy is returned while another auth request of the same session is in flight.
	ErrBusy = errors.New("another request is already in progress")
	// ErrSignupPending is returned when login or signup is attempted before the
	// pending account has been confirmed.
	ErrSignupPending = errors.New("account is waiting for email confirmation")
	// ErrAlreadyAuthenticated is returned by signup while a user is signed in.
	ErrAlreadyAuthenticated = errors.New("already logged in, log out before creating another account")
)

// AuthError reports a rejected authentication request: bad credentials,
// duplicate signup or an unconfirmed account.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (status %d)", e.Status)
	}
	return e.Message
}

// BackendError reports a failure of the remote store: network, permission or not-found.
type BackendError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// AuthRequiredError is ErrNotAuthenticated annotated with the action that
// needed a session.
type AuthRequiredError struct {
	Action string // e.g. "create a note"
}

func (e *AuthRequiredError) Error() string {
	return "not authenticated: " + e.Action
}

func (e *AuthRequiredError) Is(target error) bool {
	return target == ErrNotAuthenticated
}

func notAuthenticated(action string) error {
	return &AuthRequiredError{Action: action}
}

// ValidationError reports a missing or malformed form field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsNotFound reports whether err means the row does not exist (or is hidden by access control).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// asBackendError wraps untyped store failures so callers only see the taxonomy.
func asBackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	var ve *ValidationError
	if errors.As(err, &be) || errors.As(err, &ve) || errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// UserMessage converts any error into the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ar *AuthRequiredError
	if errors.As(err, &ar) {
		return "You must be logged in to " + ar.Action + "."
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return "You must be logged in."
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var be *BackendError
	if errors.As(err, &be) {
		if be.Message != "" {
			return be.Message
		}
		if be.Err != nil {
			return be.Err.Error()
		}
	}
	return err.Error()
}
