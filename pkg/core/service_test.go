package core_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/diary/pkg/core"
)

// MockStore implements core.NoteStore in memory.
// It records calls so tests can assert that no network call happened.
type MockStore struct {
	mu     sync.Mutex
	notes  map[string]core.Note
	seq    int
	calls  int
	tokens []string
	err    error
}

func NewMockStore() *MockStore {
	return &MockStore{notes: make(map[string]core.Note)}
}

func (m *MockStore) record(ctx context.Context) error {
	m.calls++
	m.tokens = append(m.tokens, core.AccessTokenFrom(ctx))
	return m.err
}

func (m *MockStore) Select(ctx context.Context, userID string) ([]core.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx); err != nil {
		return nil, err
	}
	var out []core.Note
	for _, n := range m.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	// Deliberately unordered by note_date.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) Insert(ctx context.Context, n core.Note) (core.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx); err != nil {
		return core.Note{}, err
	}
	m.seq++
	n.ID = fmt.Sprintf("%d", m.seq)
	n.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
	m.notes[n.ID] = n
	return n, nil
}

func (m *MockStore) Update(ctx context.Context, id string, in core.NoteInput) (core.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx); err != nil {
		return core.Note{}, err
	}
	n, ok := m.notes[id]
	if !ok {
		return core.Note{}, &core.BackendError{Op: "update", Status: 404, Err: core.ErrNotFound}
	}
	n.Title, n.NoteDate, n.Description = in.Title, in.NoteDate, in.Description
	m.notes[id] = n
	return n, nil
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ctx); err != nil {
		return err
	}
	if _, ok := m.notes[id]; !ok {
		return &core.BackendError{Op: "delete", Status: 404, Err: core.ErrNotFound}
	}
	delete(m.notes, id)
	return nil
}

type staticToken string

func (s staticToken) ValidAccessToken(context.Context) string { return string(s) }

func input(title, date, desc string) core.NoteInput {
	return core.NoteInput{Title: title, NoteDate: core.MustParseDate(date), Description: desc}
}

func TestNotes_CreateThenList(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, staticToken("tok-1"), nil)
	ctx := context.TODO()

	created, err := notes.CreateNote(ctx, "u1", input("Morning Walk", "2024-03-02", "sunny"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	list, err := notes.ListNotes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, "Morning Walk", list[0].Title)
	assert.Equal(t, "2024-03-02", list[0].NoteDate.String())
	assert.Equal(t, "sunny", list[0].Description)
	assert.Equal(t, "u1", list[0].UserID)

	for _, tok := range store.tokens {
		assert.Equal(t, "tok-1", tok)
	}
}

func TestNotes_ListEmptyIsNotError(t *testing.T) {
	notes := core.NewNotes(NewMockStore(), nil, nil)

	list, err := notes.ListNotes(context.TODO(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNotes_ListSortedByDateDescending(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, nil, nil)
	ctx := context.TODO()

	for _, d := range []string{"2023-05-01", "2024-01-15", "2022-12-31", "2024-01-16", "2023-05-01"} {
		_, err := notes.CreateNote(ctx, "u1", input("entry "+d, d, "body"))
		require.NoError(t, err)
	}

	list, err := notes.ListNotes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].NoteDate.Compare(list[i].NoteDate), 0,
			"note %d (%s) should not precede %s", i, list[i].NoteDate, list[i-1].NoteDate)
	}
	assert.Equal(t, "2024-01-16", list[0].NoteDate.String())
}

func TestNotes_CreateWithoutUser(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, nil, nil)

	_, err := notes.CreateNote(context.TODO(), "", input("t", "2024-01-01", "d"))
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, 0, store.calls, "no store call expected")
	assert.Equal(t, "You must be logged in to create a note.", core.UserMessage(err))
}

func TestNotes_SignedOutSource(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, staticToken(""), nil)
	ctx := context.TODO()

	_, err := notes.ListNotes(ctx, "u1")
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, "You must be logged in to view your notes.", core.UserMessage(err))

	_, err = notes.UpdateNote(ctx, "n1", input("t", "2024-01-01", "d"))
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, "You must be logged in to edit a note.", core.UserMessage(err))

	err = notes.DeleteNote(ctx, "n1")
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, 0, store.calls, "no store call expected")

	assert.Equal(t, "You must be logged in.", core.UserMessage(core.ErrNotAuthenticated))
}

func TestNotes_CreateValidation(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, nil, nil)

	cases := map[string]core.NoteInput{
		"title":       {Title: "  ", NoteDate: core.MustParseDate("2024-01-01"), Description: "d"},
		"note_date":   {Title: "t", Description: "d"},
		"description": {Title: "t", NoteDate: core.MustParseDate("2024-01-01")},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := notes.CreateNote(context.TODO(), "u1", in)
			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
	assert.Equal(t, 0, store.calls)
}

func TestNotes_UpdateKeepsIdentity(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, nil, nil)
	ctx := context.TODO()

	orig, err := notes.CreateNote(ctx, "u1", input("old", "2024-01-01", "old body"))
	require.NoError(t, err)

	updated, err := notes.UpdateNote(ctx, orig.ID, input("new", "2024-02-02", "new body"))
	require.NoError(t, err)

	assert.Equal(t, orig.ID, updated.ID)
	assert.Equal(t, orig.UserID, updated.UserID)
	assert.Equal(t, orig.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "2024-02-02", updated.NoteDate.String())
	assert.Equal(t, "new body", updated.Description)
}

func TestNotes_UpdateMissing(t *testing.T) {
	notes := core.NewNotes(NewMockStore(), nil, nil)

	_, err := notes.UpdateNote(context.TODO(), "404", input("t", "2024-01-01", "d"))
	var be *core.BackendError
	require.ErrorAs(t, err, &be)
	assert.True(t, core.IsNotFound(err))
}

func TestNotes_DeleteIsIdempotent(t *testing.T) {
	store := NewMockStore()
	notes := core.NewNotes(store, nil, nil)
	ctx := context.TODO()

	n, err := notes.CreateNote(ctx, "u1", input("t", "2024-01-01", "d"))
	require.NoError(t, err)

	require.NoError(t, notes.DeleteNote(ctx, n.ID))
	require.NoError(t, notes.DeleteNote(ctx, n.ID), "second delete must not surface an error")

	list, err := notes.ListNotes(ctx, "u1")
	require.NoError(t, err)
	for _, got := range list {
		assert.NotEqual(t, n.ID, got.ID)
	}
}

func TestNotes_BackendFailure(t *testing.T) {
	store := NewMockStore()
	store.err = errors.New("connection refused")
	notes := core.NewNotes(store, nil, nil)

	list, err := notes.ListNotes(context.TODO(), "u1")
	assert.Nil(t, list)
	var be *core.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "connection refused", core.UserMessage(err))
}

func TestFilterByTitle(t *testing.T) {
	list := []core.Note{
		{ID: "1", Title: "Morning Walk", Description: "evening"},
		{ID: "2", Title: "Evening Thoughts", Description: "morning"},
	}

	got := core.FilterByTitle(list, "morn")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	assert.Len(t, core.FilterByTitle(list, "THOUGHTS"), 1)
	assert.Len(t, core.FilterByTitle(list, ""), 2)
	assert.Empty(t, core.FilterByTitle(list, "afternoon"))
}
