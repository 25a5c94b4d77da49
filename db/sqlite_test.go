package db

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanhq/bandmaster/migrations"
)

func TestSqliteStore_RecentActivity(t *testing.T) {
	t.Parallel()
	s := fakeSqliteStore(t)
	want := []ActivityLog{
		{
			ID:     2,
			Actor:  "Guest(abc123)",
			Action: "play_track",
		},
		{
			ID:     1,
			Actor:  "Owner",
			Action: "play_playlist",
		},
	}
	got, err := s.RecentActivity(2)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}

func fakeSqliteStore(t *testing.T) SqliteStore {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	query := "SELECT id, timestamp, actor, action, details, result FROM activity_logs ORDER BY id desc LIMIT ?"
	rows := sqlmock.NewRows([]string{"id", "timestamp", "actor", "action", "details", "result"}).
		AddRow(2, "", "Guest(abc123)", "play_track", "", "").
		AddRow(1, "", "Owner", "play_playlist", "", "")
	mock.ExpectQuery(query).WithArgs(2).WillReturnRows(rows)
	return SqliteStore{
		DB: sqlx.NewDb(db, "sqlmock"),
	}
}

func setupTestStore(t *testing.T) *SqliteStore {
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	goose.SetBaseFS(migrations.GetMigrations())

	err = goose.SetDialect("sqlite3")
	require.NoError(t, err)

	err = goose.Up(db.DB, ".")
	require.NoError(t, err)

	return &SqliteStore{DB: db}
}

func TestSqliteStore_ActivityRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	err := s.InsertActivity(ActivityLog{
		Timestamp: "2025-03-01T09:00:00Z",
		Actor:     "Owner",
		Action:    "play_playlist",
		Details:   "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
		Result:    "playing playlist",
	})
	require.NoError(t, err)

	err = s.InsertActivity(ActivityLog{
		Timestamp: "2025-03-01T09:01:00Z",
		Actor:     "Guest(abc123)",
		Action:    "play_track",
		Details:   "spotify:track:3n3Ppam7vgaVa1iaRUc9Lp",
		Result:    "queued",
	})
	require.NoError(t, err)

	entries, err := s.RecentActivity(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first
	assert.Equal(t, "Guest(abc123)", entries[0].Actor)
	assert.Equal(t, "play_track", entries[0].Action)
	assert.Equal(t, "Owner", entries[1].Actor)
	assert.Equal(t, "play_playlist", entries[1].Action)

	// A tighter limit trims from the old end
	entries, err = s.RecentActivity(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "play_track", entries[0].Action)
}

func TestSqliteStore_TokenUpsert(t *testing.T) {
	s := setupTestStore(t)

	assert.Equal(t, "", s.GetTokenByID("spotify:accesstoken"))

	err := s.UpsertToken("spotify:accesstoken", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", s.GetTokenByID("spotify:accesstoken"))

	err = s.UpsertToken("spotify:accesstoken", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", s.GetTokenByID("spotify:accesstoken"))

	err = s.UpsertTokenMetadata("spotify:accesstoken", 1740819600, 3600)
	require.NoError(t, err)
	meta := s.GetTokenMetadataByID("spotify:accesstoken")
	assert.Equal(t, int64(1740819600), meta.CreatedAt)
	assert.Equal(t, int64(3600), meta.ExpiresIn)
	assert.Equal(t, int64(1740823200), meta.Expiry().Unix())
}
