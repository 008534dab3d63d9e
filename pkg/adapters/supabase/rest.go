package supabase

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aretw0/diary/pkg/core"
)

const (
	notesPath    = "/rest/v1/notes"
	notesColumns = "id,user_id,title,note_date,description,created_at"
	returnRows   = "return=representation"
)

// noteTable is the PostgREST client for the notes table.
type noteTable struct {
	b *Backend
}

type noteRow struct {
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	NoteDate    core.Date `json:"note_date"`
	Description string    `json:"description"`
}

type notePatch struct {
	Title       string    `json:"title"`
	NoteDate    core.Date `json:"note_date"`
	Description string    `json:"description"`
}

func byID(id string) url.Values {
	return url.Values{"id": {"eq." + id}, "select": {notesColumns}}
}

func (t *noteTable) Select(ctx context.Context, userID string) ([]core.Note, error) {
	var out []core.Note
	err := t.b.do(ctx, request{
		method: http.MethodGet,
		path:   notesPath,
		query: url.Values{
			"select":  {notesColumns},
			"user_id": {"eq." + userID},
			"order":   {"note_date.desc"},
		},
		token: core.AccessTokenFrom(ctx),
	}, &out)
	if err != nil {
		return nil, backendError("list notes", err)
	}
	if out == nil {
		out = []core.Note{}
	}
	return out, nil
}

func (t *noteTable) Insert(ctx context.Context, n core.Note) (core.Note, error) {
	var out []core.Note
	err := t.b.do(ctx, request{
		method: http.MethodPost,
		path:   notesPath,
		query:  url.Values{"select": {notesColumns}},
		body: noteRow{
			UserID:      n.UserID,
			Title:       n.Title,
			NoteDate:    n.NoteDate,
			Description: n.Description,
		},
		token:  core.AccessTokenFrom(ctx),
		prefer: returnRows,
	}, &out)
	if err != nil {
		return core.Note{}, backendError("create note", err)
	}
	if len(out) == 0 {
		return core.Note{}, &core.BackendError{Op: "create note", Message: "insert returned no row"}
	}
	return out[0], nil
}

// Update patches the row. Rows hidden by row-level security match nothing,
// so an empty representation means not found.
func (t *noteTable) Update(ctx context.Context, id string, in core.NoteInput) (core.Note, error) {
	var out []core.Note
	err := t.b.do(ctx, request{
		method: http.MethodPatch,
		path:   notesPath,
		query:  byID(id),
		body:   notePatch{Title: in.Title, NoteDate: in.NoteDate, Description: in.Description},
		token:  core.AccessTokenFrom(ctx),
		prefer: returnRows,
	}, &out)
	if err != nil {
		return core.Note{}, backendError("update note", err)
	}
	if len(out) == 0 {
		return core.Note{}, &core.BackendError{Op: "update note", Status: http.StatusNotFound, Message: "note not found", Err: core.ErrNotFound}
	}
	return out[0], nil
}

func (t *noteTable) Delete(ctx context.Context, id string) error {
	var out []core.Note
	err := t.b.do(ctx, request{
		method: http.MethodDelete,
		path:   notesPath,
		query:  byID(id),
		token:  core.AccessTokenFrom(ctx),
		prefer: returnRows,
	}, &out)
	if err != nil {
		return backendError("delete note", err)
	}
	if len(out) == 0 {
		return &core.BackendError{Op: "delete note", Status: http.StatusNotFound, Message: "note not found", Err: core.ErrNotFound}
	}
	return nil
}
