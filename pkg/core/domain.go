// Package core holds the diary domain: users, notes, sessions and the
// contracts the backend adapters implement.
package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metadata represents the flexible key-value pairs attached to a user profile.
type Metadata map[string]any

// DisplayNameKey is the profile metadata key holding the user's display name.
const DisplayNameKey = "display_name"

// User is the authenticated identity. It is owned by the backend.
type User struct {
	ID          string `json:"id" yaml:"id"`
	Email       string `json:"email" yaml:"email"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
}

// Name returns the display name, falling back to the local part of the
// email address and finally to "User".
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		local, _, _ := strings.Cut(u.Email, "@")
		if local != "" {
			return local
		}
	}
	return "User"
}

// DateLayout is the wire format of a calendar date.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on error. Intended for tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Valid reports whether d names an existing calendar day.
func (d Date) Valid() bool {
	if d.IsZero() || d.Month < time.January || d.Month > time.December {
		return false
	}
	return DateOf(d.Time()) == d
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler (JSON and YAML use it).
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Timestamps are accepted and truncated to their date.
func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			*d = DateOf(t)
			return nil
		}
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Note is a single diary entry owned by one user.
type Note struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	NoteDate    Date      `json:"note_date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// NoteInput carries the three mutable fields of a note.
type NoteInput struct {
	Title       string
	NoteDate    Date
	Description string
}

// ParseNoteInput builds a NoteInput from raw form values.
func ParseNoteInput(title, date, description string) (NoteInput, error) {
	in := NoteInput{Title: title, Description: description}
	if strings.TrimSpace(date) == "" {
		return in, &ValidationError{Field: "note_date", Message: "date is required"}
	}
	d, err := ParseDate(date)
	if err != nil {
		return in, &ValidationError{Field: "note_date", Message: "a valid date is required"}
	}
	in.NoteDate = d
	return in, in.Validate()
}

// Validate checks that all three fields are present.
func (in NoteInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if !in.NoteDate.Valid() {
		return &ValidationError{Field: "note_date", Message: "a valid date is required"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return &ValidationError{Field: "description", Message: "description is required"}
	}
	return nil
}

// Input returns the mutable fields of n.
func (n Note) Input() NoteInput {
	return NoteInput{Title: n.Title, NoteDate: n.NoteDate, Description: n.Description}
}

// SortNotes orders notes by NoteDate descending. Ties fall back to
// CreatedAt descending and then ID so the order is deterministic.
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if c := a.NoteDate.Compare(b.NoteDate); c != 0 {
			return c > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// FilterByTitle returns the notes whose title contains query, ignoring case.
// An empty query matches everything.
func FilterByTitle(notes []Note, query string) []Note {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if q == "" || strings.Contains(strings.ToLower(n.Title), q) {
			out = append(out, n)
		}
	}
	return out
}

// AuthSession is an authenticated backend session.
type AuthSession struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" yaml:"expires_at"`
	User         User      `json:"user" yaml:"user"`
}

// Expired reports whether the access token is past its expiry at now.
func (s *AuthSession) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SignUpResult is the backend answer to a signup. Session is nil while the
// account awaits email confirmation.
type SignUpResult struct {
	User    User
	Session *AuthSession
}

// AuthEventType names a backend authentication transition.
type AuthEventType string

const (
	AuthSignedIn       AuthEventType = "SIGNED_IN"
	AuthSignedOut      AuthEventType = "SIGNED_OUT"
	AuthTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is emitted by an AuthClient whenever its session changes.
type AuthEvent struct {
	Type      AuthEventType
	Session   *AuthSession
	Timestamp int64 // Unix timestamp
}

// SessionState is the client-side authentication state.
type SessionState string

const (
	StateCheckingSession SessionState = "CHECKING_SESSION"
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	StateSignupPending   SessionState = "SIGNUP_PENDING"
	StateAuthenticated   SessionState = "AUTHENTICATED"
)

// SessionEvent is delivered to OnSessionChange observers.
type SessionEvent struct {
	State     SessionState
	User      *User
	Cause     AuthEventType
	Timestamp int64 // Unix timestamp
}

// SignupOutcome tells the caller which view to show after a signup.
type SignupOutcome string

const (
	SignupFailed               SignupOutcome = "failed"
	SignupWithSession          SignupOutcome = "session"
	SignupAwaitingConfirmation SignupOutcome = "pending"
)
