package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aretw0/diary/pkg/adapters/memory"
	"github.com/aretw0/diary/pkg/core"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setupBackend(t *testing.T, opts ...func(*memory.Config)) (*memory.Backend, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	cfg := memory.Config{
		AutoConfirm: true,
		BcryptCost:  bcrypt.MinCost,
		Secret:      []byte("test-secret"),
		Now:         clk.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return memory.New(cfg), clk
}

func signedIn(t *testing.T, b *memory.Backend, email string) (core.AuthClient, *core.AuthSession) {
	t.Helper()
	ctx := context.Background()
	client := b.NewAuthClient(nil)
	res, err := client.SignUp(ctx, email, "secret123", core.Metadata{core.DisplayNameKey: "Ana"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	return client, res.Session
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()

	t.Run("Auto Confirm Issues Session", func(t *testing.T) {
		b, _ := setupBackend(t)
		client := b.NewAuthClient(nil)

		var events []core.AuthEventType
		client.OnAuthStateChange(func(e core.AuthEvent) { events = append(events, e.Type) })

		res, err := client.SignUp(ctx, "ana@example.com", "secret123", core.Metadata{core.DisplayNameKey: "Ana"})
		require.NoError(t, err)
		require.NotNil(t, res.Session)
		assert.Equal(t, "Ana", res.User.DisplayName)
		assert.Equal(t, []core.AuthEventType{core.AuthSignedIn}, events)

		stored, err := client.GetSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, res.Session.AccessToken, stored.AccessToken)
	})

	t.Run("Confirmation Required", func(t *testing.T) {
		b, _ := setupBackend(t, func(c *memory.Config) { c.AutoConfirm = false })
		client := b.NewAuthClient(nil)

		res, err := client.SignUp(ctx, "ana@example.com", "secret123", nil)
		require.NoError(t, err)
		assert.Nil(t, res.Session)

		_, err = client.SignInWithPassword(ctx, "ana@example.com", "secret123")
		var ae *core.AuthError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "email_not_confirmed", ae.Code)

		require.NoError(t, b.ConfirmUser("ANA@example.com"))
		sess, err := client.SignInWithPassword(ctx, "ana@example.com", "secret123")
		require.NoError(t, err)
		assert.NotEmpty(t, sess.AccessToken)
	})

	t.Run("Rejections", func(t *testing.T) {
		b, _ := setupBackend(t)
		client := b.NewAuthClient(nil)
		_, err := client.SignUp(ctx, "ana@example.com", "secret123", nil)
		require.NoError(t, err)

		cases := map[string]struct {
			email, password, code string
		}{
			"duplicate":     {"Ana@Example.com", "secret123", "user_already_exists"},
			"weak password": {"bob@example.com", "123", "weak_password"},
			"invalid email": {"bob", "secret123", "validation_failed"},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := b.NewAuthClient(nil).SignUp(ctx, tc.email, tc.password, nil)
				var ae *core.AuthError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, tc.code, ae.Code)
			})
		}
	})
}

func TestSignInWithPassword(t *testing.T) {
	ctx := context.Background()
	b, _ := setupBackend(t)
	signedIn(t, b, "ana@example.com")

	client := b.NewAuthClient(nil)
	_, err := client.SignInWithPassword(ctx, "ana@example.com", "wrong")
	var ae *core.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invalid login credentials", ae.Message)

	_, err = client.SignInWithPassword(ctx, "nobody@example.com", "secret123")
	require.ErrorAs(t, err, &ae)

	sess, err := client.SignInWithPassword(ctx, " ana@example.com ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "Ana", sess.User.Name())
}

func TestGetSessionRefresh(t *testing.T) {
	ctx := context.Background()
	b, clk := setupBackend(t, func(c *memory.Config) { c.TokenTTL = time.Minute })
	client, first := signedIn(t, b, "ana@example.com")

	var events []core.AuthEventType
	client.OnAuthStateChange(func(e core.AuthEvent) { events = append(events, e.Type) })

	clk.now = clk.now.Add(2 * time.Minute)
	sess, err := client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEqual(t, first.AccessToken, sess.AccessToken)
	assert.NotEqual(t, first.RefreshToken, sess.RefreshToken)
	assert.Equal(t, []core.AuthEventType{core.AuthTokenRefreshed}, events)

	t.Run("Revoked Refresh Token Signs Out", func(t *testing.T) {
		storage := core.NewMemoryStorage()
		require.NoError(t, storage.Save(ctx, first)) // already rotated
		stale := b.NewAuthClient(storage)

		var got []core.AuthEventType
		stale.OnAuthStateChange(func(e core.AuthEvent) { got = append(got, e.Type) })

		sess, err := stale.GetSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, sess)
		assert.Equal(t, []core.AuthEventType{core.AuthSignedOut}, got)

		left, _ := storage.Load(ctx)
		assert.Nil(t, left)
	})
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	b, _ := setupBackend(t)
	client, _ := signedIn(t, b, "ana@example.com")

	var events []core.AuthEventType
	client.OnAuthStateChange(func(e core.AuthEvent) { events = append(events, e.Type) })

	require.NoError(t, client.SignOut(ctx))
	sess, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, []core.AuthEventType{core.AuthSignedOut}, events)

	state := b.State().(memory.BackendState)
	assert.Equal(t, 0, state.RefreshTokens)
	assert.Equal(t, 1, state.Users)
}

func TestNoteTableRowLevelSecurity(t *testing.T) {
	b, _ := setupBackend(t)
	table := b.Notes()
	_, ana := signedIn(t, b, "ana@example.com")
	_, bob := signedIn(t, b, "bob@example.com")

	anaCtx := core.WithAccessToken(context.Background(), ana.AccessToken)
	bobCtx := core.WithAccessToken(context.Background(), bob.AccessToken)

	note, err := table.Insert(anaCtx, core.Note{
		UserID:      ana.User.ID,
		Title:       "Morning Walk",
		NoteDate:    core.MustParseDate("2024-03-10"),
		Description: "Sunny",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.False(t, note.CreatedAt.IsZero())

	t.Run("Insert For Another User", func(t *testing.T) {
		_, err := table.Insert(bobCtx, core.Note{UserID: ana.User.ID, Title: "x"})
		var be *core.BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "42501", be.Code)
	})

	t.Run("Anonymous Insert", func(t *testing.T) {
		_, err := table.Insert(context.Background(), core.Note{UserID: ana.User.ID, Title: "x"})
		require.Error(t, err)
	})

	t.Run("Select Is Scoped", func(t *testing.T) {
		notes, err := table.Select(bobCtx, ana.User.ID)
		require.NoError(t, err)
		assert.Empty(t, notes)

		notes, err = table.Select(anaCtx, ana.User.ID)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Morning Walk", notes[0].Title)
	})

	t.Run("Foreign Update Is Not Found", func(t *testing.T) {
		_, err := table.Update(bobCtx, note.ID, core.NoteInput{Title: "hijack"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("Owner Update", func(t *testing.T) {
		in := core.NoteInput{Title: "Evening Walk", NoteDate: core.MustParseDate("2024-03-11"), Description: "Rain"}
		updated, err := table.Update(anaCtx, note.ID, in)
		require.NoError(t, err)
		assert.Equal(t, note.ID, updated.ID)
		assert.Equal(t, note.CreatedAt, updated.CreatedAt)
		assert.Equal(t, "Evening Walk", updated.Title)
	})

	t.Run("Delete", func(t *testing.T) {
		assert.True(t, core.IsNotFound(table.Delete(bobCtx, note.ID)))
		require.NoError(t, table.Delete(anaCtx, note.ID))
		err := table.Delete(anaCtx, note.ID)
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}

func TestExpiredTokenIsRejected(t *testing.T) {
	b, clk := setupBackend(t, func(c *memory.Config) { c.TokenTTL = time.Minute })
	_, ana := signedIn(t, b, "ana@example.com")
	ctx := core.WithAccessToken(context.Background(), ana.AccessToken)

	clk.now = clk.now.Add(time.Hour)

	_, err := b.Notes().Select(ctx, ana.User.ID)
	var be *core.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 401, be.Status)
	assert.Equal(t, "PGRST301", be.Code)
	assert.Equal(t, "JWT expired", be.Message)

	_, err = b.Notes().Insert(ctx, core.Note{UserID: ana.User.ID, Title: "late"})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 401, be.Status)

	t.Run("Forged Token", func(t *testing.T) {
		forged := core.WithAccessToken(context.Background(), "not-a-jwt")
		_, err := b.Notes().Select(forged, ana.User.ID)
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "JWT invalid", be.Message)
	})

	t.Run("Missing Token Is Anonymous", func(t *testing.T) {
		notes, err := b.Notes().Select(context.Background(), ana.User.ID)
		require.NoError(t, err)
		assert.Empty(t, notes)
	})
}

// sessionWithNote signs ana up through a session manager and stores one note.
func sessionWithNote(t *testing.T, b *memory.Backend) (*core.SessionManager, *core.Notes) {
	t.Helper()
	ctx := context.Background()
	session := core.NewSessionManager(b.NewAuthClient(nil), nil)
	t.Cleanup(session.Close)
	_, _ = session.GetCurrentSession(ctx)

	_, err := session.Signup(ctx, "Ana", "ana@example.com", "secret123")
	require.NoError(t, err)
	notes := core.NewNotes(b.Notes(), session, nil)
	_, err = notes.CreateNote(ctx, session.UserID(), core.NoteInput{
		Title:       "Morning Walk",
		NoteDate:    core.MustParseDate("2024-03-10"),
		Description: "Sunny",
	})
	require.NoError(t, err)
	return session, notes
}

func TestNotesRefreshExpiredToken(t *testing.T) {
	b, clk := setupBackend(t, func(c *memory.Config) { c.TokenTTL = time.Minute })
	session, notes := sessionWithNote(t, b)
	before := session.AccessToken()

	clk.now = clk.now.Add(2 * time.Hour)
	list, err := notes.ListNotes(context.Background(), session.UserID())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Morning Walk", list[0].Title)
	assert.Equal(t, core.StateAuthenticated, session.Status())
	assert.NotEqual(t, before, session.AccessToken())
}

func TestNotesEndExpiredSession(t *testing.T) {
	b, clk := setupBackend(t, func(c *memory.Config) {
		c.TokenTTL = time.Minute
		c.SessionTTL = time.Hour
	})
	session, notes := sessionWithNote(t, b)
	userID := session.UserID()

	var causes []core.AuthEventType
	defer session.OnSessionChange(func(e core.SessionEvent) { causes = append(causes, e.Cause) })()

	clk.now = clk.now.Add(2 * time.Hour)
	list, err := notes.ListNotes(context.Background(), userID)
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.Nil(t, list)
	assert.Equal(t, "You must be logged in to view your notes.", core.UserMessage(err))
	assert.Equal(t, core.StateUnauthenticated, session.Status())
	assert.Equal(t, []core.AuthEventType{core.AuthSignedOut}, causes)

	_, err = notes.CreateNote(context.Background(), userID, core.NoteInput{
		Title:       "Late",
		NoteDate:    core.MustParseDate("2024-03-10"),
		Description: "x",
	})
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}
