package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aretw0/diary"
	"github.com/aretw0/diary/pkg/adapters/memory"
	"github.com/aretw0/diary/pkg/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newBackend(autoConfirm bool) *memory.Backend {
	return memory.New(memory.Config{AutoConfirm: autoConfirm, BcryptCost: bcrypt.MinCost, Logger: discard})
}

// invocation opens a client the way every CLI run does: a fresh client on
// the backend, with the session kept in the credentials file at path.
func invocation(t *testing.T, backend core.Backend, path string) *diary.Client {
	t.Helper()
	client, err := diary.New(context.Background(), diary.NewFileStorage(path),
		diary.WithBackend(backend),
		diary.WithLogger(discard),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// signedInClient signs Ana up on a fresh backend.
func signedInClient(t *testing.T) *diary.Client {
	t.Helper()
	client := invocation(t, newBackend(true), filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, signup(context.Background(), client, "Ana", "ana@example.com", "secret123", io.Discard))
	return client
}

func str(s string) *string { return &s }

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(false)
	path := filepath.Join(t.TempDir(), "session.yaml")
	var out bytes.Buffer

	first := invocation(t, backend, path)
	require.NoError(t, signup(ctx, first, "Ana", "ana@example.com", "secret123", &out))
	assert.Contains(t, out.String(), "Confirmation Required")
	require.NoError(t, backend.ConfirmUser("ana@example.com"))

	second := invocation(t, backend, path)
	_, err := currentUser(second)
	assert.ErrorIs(t, err, errNotLoggedIn)

	err = login(ctx, second, "ana@example.com", "wrong-password", &out)
	assert.Equal(t, "Invalid login credentials", diary.UserMessage(err))

	out.Reset()
	require.NoError(t, login(ctx, second, "ana@example.com", "secret123", &out))
	assert.Equal(t, "Logged in as Ana (ana@example.com)\n", out.String())

	third := invocation(t, backend, path)
	out.Reset()
	require.NoError(t, whoami(ctx, third, &out))
	assert.True(t, strings.HasPrefix(out.String(), "Ana <ana@example.com>\nid: "))

	require.NoError(t, third.Session.Logout(ctx))

	fourth := invocation(t, backend, path)
	assert.ErrorIs(t, whoami(ctx, fourth, &out), errNotLoggedIn)
}

func TestSignupWhileLoggedIn(t *testing.T) {
	client := signedInClient(t)
	err := signup(context.Background(), client, "Bob", "bob@example.com", "secret123", io.Discard)
	assert.ErrorIs(t, err, core.ErrAlreadyAuthenticated)
}

func TestReadPassword(t *testing.T) {
	var prompt bytes.Buffer

	got, err := readPassword("from-flag", strings.NewReader("ignored\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", got)
	assert.Empty(t, prompt.String())

	got, err = readPassword("", strings.NewReader("secret123\r\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "secret123", got)
	assert.Equal(t, "Password: ", prompt.String())

	_, err = readPassword("", strings.NewReader(""), io.Discard)
	assert.Error(t, err)
}

func TestNoteFlagsOf(t *testing.T) {
	cmd := &cobra.Command{Use: "edit"}
	addNoteFlags(cmd)
	require.NoError(t, cmd.Flags().Set("date", "2024-03-11"))
	require.NoError(t, cmd.Flags().Set("description", ""))

	f := noteFlagsOf(cmd)
	assert.Nil(t, f.Title)
	require.NotNil(t, f.Date)
	assert.Equal(t, "2024-03-11", *f.Date)
	require.NotNil(t, f.Description, "an explicitly empty flag still counts")
	assert.Empty(t, *f.Description)
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	client := signedInClient(t)
	today := core.MustParseDate("2024-03-12")

	_, err := createNote(ctx, client, noteFlags{Title: str("Morning Walk"), Date: str("2024-03-10"), Description: str("Sunny")}, today)
	require.NoError(t, err)
	evening, err := createNote(ctx, client, noteFlags{Title: str("Evening Thoughts"), Description: str("Quiet")}, today)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-12", evening.NoteDate.String(), "date defaults to today")

	_, err = createNote(ctx, client, noteFlags{Title: str("No body")}, today)
	assert.Equal(t, "description is required", diary.UserMessage(err))

	t.Run("Table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, listNotes(ctx, client, &out, "", false))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "2024-03-12  "+evening.ID))
		assert.True(t, strings.HasSuffix(lines[0], "Evening Thoughts"))
		assert.True(t, strings.HasSuffix(lines[1], "Morning Walk"))
	})

	t.Run("Search", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, listNotes(ctx, client, &out, "MORN", false))
		assert.Contains(t, out.String(), "Morning Walk")
		assert.NotContains(t, out.String(), "Evening Thoughts")

		out.Reset()
		require.NoError(t, listNotes(ctx, client, &out, "afternoon", false))
		assert.Equal(t, "No notes found.\n", out.String())
	})

	t.Run("JSON", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, listNotes(ctx, client, &out, "walk", true))
		var notes []core.Note
		require.NoError(t, json.Unmarshal(out.Bytes(), &notes))
		require.Len(t, notes, 1)
		assert.Equal(t, "Morning Walk", notes[0].Title)
		assert.Equal(t, "2024-03-10", notes[0].NoteDate.String())
	})
}

func TestCreateWithoutLogin(t *testing.T) {
	client := invocation(t, newBackend(true), filepath.Join(t.TempDir(), "session.yaml"))
	_, err := createNote(context.Background(), client, noteFlags{Title: str("t"), Description: str("d")}, core.MustParseDate("2024-03-12"))
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Equal(t, "You must be logged in to create a note.", diary.UserMessage(err))
}

func TestEditKeepsFieldsNotGiven(t *testing.T) {
	ctx := context.Background()
	client := signedInClient(t)
	note, err := createNote(ctx, client, noteFlags{Title: str("Morning Walk"), Date: str("2024-03-10"), Description: str("Sunny")}, core.Date{})
	require.NoError(t, err)

	updated, err := editNote(ctx, client, note.ID, noteFlags{Title: str("Evening Walk")})
	require.NoError(t, err)
	assert.Equal(t, note.ID, updated.ID)
	assert.Equal(t, "Evening Walk", updated.Title)
	assert.Equal(t, "2024-03-10", updated.NoteDate.String())
	assert.Equal(t, "Sunny", updated.Description)

	updated, err = editNote(ctx, client, note.ID, noteFlags{Date: str("2024-03-11"), Description: str("Rain")})
	require.NoError(t, err)
	assert.Equal(t, "Evening Walk", updated.Title)
	assert.Equal(t, "2024-03-11", updated.NoteDate.String())
	assert.Equal(t, "Rain", updated.Description)

	_, err = editNote(ctx, client, note.ID, noteFlags{Date: str("11/03/2024")})
	assert.Equal(t, "a valid date is required", diary.UserMessage(err))

	_, err = editNote(ctx, client, "missing", noteFlags{Title: str("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	read, err := findNote(ctx, client, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rain", read.Description)
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	ctx := context.Background()
	client := signedInClient(t)
	note, err := createNote(ctx, client, noteFlags{Title: str("Morning Walk"), Date: str("2024-03-10"), Description: str("Sunny")}, core.Date{})
	require.NoError(t, err)

	var prompt bytes.Buffer
	deleted, err := deleteNote(ctx, client, note.ID, false, strings.NewReader("n\n"), &prompt)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "Delete this note? [y/N] ", prompt.String())
	_, err = findNote(ctx, client, note.ID)
	require.NoError(t, err, "declined delete keeps the note")

	deleted, err = deleteNote(ctx, client, note.ID, false, strings.NewReader("YES\n"), io.Discard)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = findNote(ctx, client, note.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	prompt.Reset()
	deleted, err = deleteNote(ctx, client, note.ID, true, strings.NewReader(""), &prompt)
	require.NoError(t, err, "deleting a missing note succeeds")
	assert.True(t, deleted)
	assert.Empty(t, prompt.String(), "--yes skips the prompt")
}
