package platform_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/diary/internal/platform"
	"github.com/aretw0/diary/pkg/adapters/memory"
	"github.com/aretw0/diary/pkg/adapters/supabase"
	"github.com/aretw0/diary/pkg/core"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory", func(t *testing.T) {
		b, err := platform.Open(ctx, platform.WithAdapter(platform.AdapterMemory))
		require.NoError(t, err)
		assert.IsType(t, &memory.Backend{}, b)
	})

	t.Run("Supabase", func(t *testing.T) {
		b, err := platform.Open(ctx, platform.WithSupabase("https://demo.supabase.co", "anon"))
		require.NoError(t, err)
		assert.IsType(t, &supabase.Backend{}, b)
	})

	t.Run("Supabase Without URL", func(t *testing.T) {
		_, err := platform.Open(ctx, platform.WithAdapter(platform.AdapterSupabase))
		assert.Error(t, err)
	})

	t.Run("Postgres Without Database URL", func(t *testing.T) {
		_, err := platform.Open(ctx,
			platform.WithAdapter(platform.AdapterPostgres),
			platform.WithSupabase("https://demo.supabase.co", "anon"),
		)
		assert.ErrorContains(t, err, "database URL is required")
	})

	t.Run("Unknown Adapter", func(t *testing.T) {
		_, err := platform.Open(ctx, platform.WithAdapter("sqlite"))
		assert.ErrorContains(t, err, "unknown adapter")
	})

	t.Run("Injected Backend Wins", func(t *testing.T) {
		injected := memory.New(memory.Config{})
		b, err := platform.Open(ctx, platform.WithAdapter("sqlite"), platform.WithBackend(injected))
		require.NoError(t, err)
		assert.Same(t, injected, b)
	})
}

func TestNewRestoresSessionFromFile(t *testing.T) {
	ctx := context.Background()
	backend := memory.New(memory.Config{AutoConfirm: true, TokenTTL: time.Hour})
	path := filepath.Join(t.TempDir(), "session.yaml")

	first, err := platform.New(ctx, platform.NewFileStorage(path), platform.WithBackend(backend))
	require.NoError(t, err)
	assert.Equal(t, core.StateUnauthenticated, first.Session.Status())

	outcome, err := first.Session.Signup(ctx, "Ana", "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, core.SignupWithSession, outcome)
	_, err = first.Notes.CreateNote(ctx, first.Session.UserID(), core.NoteInput{
		Title:       "Morning Walk",
		NoteDate:    core.MustParseDate("2024-03-10"),
		Description: "Sunny",
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := platform.New(ctx, platform.NewFileStorage(path), platform.WithBackend(backend))
	require.NoError(t, err)
	defer second.Close()
	require.Equal(t, core.StateAuthenticated, second.Session.Status())
	assert.Equal(t, "Ana", second.Session.CurrentUser().Name())

	notes, err := second.Notes.ListNotes(ctx, second.Session.UserID())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Morning Walk", notes[0].Title)

	require.NoError(t, second.Session.Logout(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
