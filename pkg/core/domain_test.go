package core_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/diary/pkg/core"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestParseDate(t *testing.T) {
	d, err := core.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.True(t, d.Valid())
	assert.Equal(t, "2024-02-29", d.String())

	_, err = core.ParseDate("2023-02-29")
	assert.Error(t, err)

	_, err = core.ParseDate("yesterday")
	assert.Error(t, err)

	assert.False(t, core.Date{}.Valid())
	assert.False(t, core.Date{Year: 2024, Month: 13, Day: 1}.Valid())
}

func TestDate_Compare(t *testing.T) {
	a := core.MustParseDate("2024-01-31")
	b := core.MustParseDate("2024-02-01")

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestDate_JSON(t *testing.T) {
	var n core.Note
	raw := `{"id":"1","user_id":"u","title":"t","note_date":"2024-06-01","description":"d","created_at":"2024-06-01T10:00:00Z"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	assert.Equal(t, core.MustParseDate("2024-06-01"), n.NoteDate)

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"note_date":"2024-06-01"`)

	var d core.Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-06-01T23:30:00Z"`), &d))
	assert.Equal(t, "2024-06-01", d.String())
}

func TestParseNoteInput(t *testing.T) {
	in, err := core.ParseNoteInput("Title", "2024-05-05", "Body")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-05", in.NoteDate.String())

	_, err = core.ParseNoteInput("Title", "", "Body")
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "note_date", ve.Field)

	_, err = core.ParseNoteInput("Title", "2024-99-99", "Body")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "a valid date is required", core.UserMessage(err))
}

func TestUser_Name(t *testing.T) {
	assert.Equal(t, "Alice", core.User{DisplayName: "Alice", Email: "a@x.io"}.Name())
	assert.Equal(t, "bob", core.User{Email: "bob@x.io"}.Name())
	assert.Equal(t, "User", core.User{}.Name())
}

func TestSortNotes_Ties(t *testing.T) {
	d := core.MustParseDate("2024-01-01")
	early := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	notes := []core.Note{
		{ID: "a", NoteDate: d, CreatedAt: early},
		{ID: "b", NoteDate: d, CreatedAt: late},
		{ID: "c", NoteDate: core.MustParseDate("2023-01-01"), CreatedAt: late},
	}

	core.SortNotes(notes)

	assert.Equal(t, []string{"b", "a", "c"}, []string{notes[0].ID, notes[1].ID, notes[2].ID})
}

func TestAuthSession_Expired(t *testing.T) {
	now := time.Now()
	var nilSession *core.AuthSession
	assert.False(t, nilSession.Expired(now))
	assert.False(t, (&core.AuthSession{}).Expired(now))
	assert.True(t, (&core.AuthSession{ExpiresAt: now.Add(-time.Second)}).Expired(now))
	assert.False(t, (&core.AuthSession{ExpiresAt: now.Add(time.Minute)}).Expired(now))
}
