package core

import (
	"context"
	"log/slog"
	"strings"
)

// Notes is the note repository façade used by the views. It validates
// input, scopes every store call with the session's access token and keeps
// no cache: callers re-fetch after each mutation.
type Notes struct {
	store  NoteStore
	tokens TokenSource
	logger *slog.Logger
}

// NewNotes creates a Notes façade. tokens may be nil for anonymous access.
func NewNotes(store NoteStore, tokens TokenSource, logger *slog.Logger) *Notes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notes{store: store, tokens: tokens, logger: logger}
}

// scoped attaches the session's access token to ctx. Without a token
// source the call stays anonymous; with one, a missing token fails with
// ErrNotAuthenticated for the given action.
func (n *Notes) scoped(ctx context.Context, action string) (context.Context, error) {
	if n.tokens == nil {
		return ctx, nil
	}
	token := n.tokens.ValidAccessToken(ctx)
	if token == "" {
		return ctx, notAuthenticated(action)
	}
	return WithAccessToken(ctx, token), nil
}

// ListNotes returns every note owned by userID, newest note_date first.
// A user without notes gets an empty, non-nil slice.
func (n *Notes) ListNotes(ctx context.Context, userID string) ([]Note, error) {
	const action = "view your notes"
	if userID == "" {
		return nil, notAuthenticated(action)
	}
	ctx, err := n.scoped(ctx, action)
	if err != nil {
		return nil, err
	}
	notes, err := n.store.Select(ctx, userID)
	if err != nil {
		n.logger.Debug("list notes failed", "user_id", userID, "error", err)
		return nil, asBackendError("list notes", err)
	}
	if notes == nil {
		notes = []Note{}
	}
	SortNotes(notes)
	return notes, nil
}

// CreateNote inserts a note for userID. Without a user it fails with
// ErrNotAuthenticated before reaching the store.
func (n *Notes) CreateNote(ctx context.Context, userID string, in NoteInput) (Note, error) {
	const action = "create a note"
	if userID == "" {
		return Note{}, notAuthenticated(action)
	}
	if err := in.Validate(); err != nil {
		return Note{}, err
	}
	ctx, err := n.scoped(ctx, action)
	if err != nil {
		return Note{}, err
	}
	created, err := n.store.Insert(ctx, Note{
		UserID:      userID,
		Title:       in.Title,
		NoteDate:    in.NoteDate,
		Description: in.Description,
	})
	if err != nil {
		return Note{}, asBackendError("create note", err)
	}
	n.logger.Debug("note created", "id", created.ID, "user_id", userID)
	return created, nil
}

// UpdateNote overwrites title, date and description of the note with the
// given id. Ownership is left to the backend's access control.
func (n *Notes) UpdateNote(ctx context.Context, id string, in NoteInput) (Note, error) {
	if strings.TrimSpace(id) == "" {
		return Note{}, &ValidationError{Field: "id", Message: "note id is required"}
	}
	if err := in.Validate(); err != nil {
		return Note{}, err
	}
	ctx, err := n.scoped(ctx, "edit a note")
	if err != nil {
		return Note{}, err
	}
	updated, err := n.store.Update(ctx, id, in)
	if err != nil {
		return Note{}, asBackendError("update note", err)
	}
	n.logger.Debug("note updated", "id", id)
	return updated, nil
}

// DeleteNote removes the note with the given id. Deleting a note that no
// longer exists succeeds.
func (n *Notes) DeleteNote(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Message: "note id is required"}
	}
	ctx, err := n.scoped(ctx, "delete a note")
	if err != nil {
		return err
	}
	if err := n.store.Delete(ctx, id); err != nil {
		if IsNotFound(err) {
			n.logger.Debug("note already deleted", "id", id)
			return nil
		}
		return asBackendError("delete note", err)
	}
	n.logger.Debug("note deleted", "id", id)
	return nil
}

// Search narrows an already fetched list to the notes whose title contains
// query. It never calls the store.
func (n *Notes) Search(notes []Note, query string) []Note {
	return FilterByTitle(notes, query)
}
