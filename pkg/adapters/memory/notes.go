package memory

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aretw0/diary/pkg/core"
)

// noteTable is the notes resource. Rows are filtered by the user id carried
// in the caller's access token, the way the hosted row-level policy does.
type noteTable struct {
	b *Backend
}

func rlsViolation(op string) error {
	return &core.BackendError{
		Op:      op,
		Status:  http.StatusForbidden,
		Code:    "42501",
		Message: `new row violates row-level security policy for table "notes"`,
	}
}

func notFound(op string) error {
	return &core.BackendError{Op: op, Status: http.StatusNotFound, Code: "PGRST116", Message: "note not found", Err: core.ErrNotFound}
}

// jwtRejected is the answer to a request whose access token does not verify.
func jwtRejected(op string, err error) error {
	msg := "JWT invalid"
	if errors.Is(err, jwt.ErrTokenExpired) {
		msg = "JWT expired"
	}
	return &core.BackendError{Op: op, Status: http.StatusUnauthorized, Code: "PGRST301", Message: msg, Err: err}
}

// caller resolves the requesting user. A request without a token is
// anonymous and gets ""; a token that fails verification is rejected.
func (t *noteTable) caller(ctx context.Context, op string) (string, error) {
	token := core.AccessTokenFrom(ctx)
	if token == "" {
		return "", nil
	}
	uid, err := t.b.verify(token)
	if err != nil {
		return "", jwtRejected(op, err)
	}
	return uid, nil
}

func (t *noteTable) Select(ctx context.Context, userID string) ([]core.Note, error) {
	uid, err := t.caller(ctx, "select notes")
	if err != nil {
		return nil, err
	}
	t.b.mu.RLock()
	defer t.b.mu.RUnlock()

	out := []core.Note{}
	for _, n := range t.b.notes {
		if n.UserID == userID && n.UserID == uid {
			out = append(out, n)
		}
	}
	core.SortNotes(out)
	return out, nil
}

func (t *noteTable) Insert(ctx context.Context, n core.Note) (core.Note, error) {
	uid, err := t.caller(ctx, "insert notes")
	if err != nil {
		return core.Note{}, err
	}
	if uid == "" || uid != n.UserID {
		return core.Note{}, rlsViolation("insert notes")
	}
	n.ID = uuid.NewString()
	n.CreatedAt = t.b.config.Now().UTC()

	t.b.mu.Lock()
	t.b.notes[n.ID] = n
	t.b.mu.Unlock()
	return n, nil
}

func (t *noteTable) Update(ctx context.Context, id string, in core.NoteInput) (core.Note, error) {
	uid, err := t.caller(ctx, "update notes")
	if err != nil {
		return core.Note{}, err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()

	n, ok := t.b.notes[id]
	if !ok || uid == "" || n.UserID != uid {
		return core.Note{}, notFound("update notes")
	}
	n.Title = in.Title
	n.NoteDate = in.NoteDate
	n.Description = in.Description
	t.b.notes[id] = n
	return n, nil
}

func (t *noteTable) Delete(ctx context.Context, id string) error {
	uid, err := t.caller(ctx, "delete notes")
	if err != nil {
		return err
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()

	n, ok := t.b.notes[id]
	if !ok || uid == "" || n.UserID != uid {
		return notFound("delete notes")
	}
	delete(t.b.notes, id)
	return nil
}
