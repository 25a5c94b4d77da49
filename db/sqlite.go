package db

import (
	"embed"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type SqliteStore struct {
	DB *sqlx.DB
}

func NewSqliteStore(dsn string) (*SqliteStore, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &SqliteStore{
		DB: db,
	}, nil
}

func (s *SqliteStore) ApplyMigrations(migrations embed.FS) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}

	if err := goose.Up(s.DB.DB, "."); err != nil {
		return err
	}

	return nil
}

func (s *SqliteStore) InsertActivity(entry ActivityLog) error {
	_, err := s.DB.Exec(
		"INSERT INTO activity_logs (timestamp, actor, action, details, result) VALUES (?, ?, ?, ?, ?)",
		entry.Timestamp,
		entry.Actor,
		entry.Action,
		entry.Details,
		entry.Result,
	)
	return err
}

func (s *SqliteStore) RecentActivity(limit int) ([]ActivityLog, error) {
	entries := []ActivityLog{}
	if err := s.DB.Select(&entries, "SELECT id, timestamp, actor, action, details, result FROM activity_logs ORDER BY id desc LIMIT ?", limit); err != nil {
		return entries, err
	}
	return entries, nil
}

func (s *SqliteStore) GetTokenByID(id string) string {
	t := Token{}
	err := s.DB.Get(&t, "SELECT * FROM tokens WHERE id = ?", id)
	if err != nil {
		return ""
	}
	return t.Value
}

func (s *SqliteStore) GetTokenMetadataByID(id string) TokenMetadata {
	t := TokenMetadata{}
	err := s.DB.Get(&t, "SELECT * FROM tokenmetadata WHERE id = ?", id)
	if err != nil {
		return TokenMetadata{}
	}
	return t
}

func (s *SqliteStore) UpsertToken(id, value string) error {
	query := `
	INSERT INTO tokens (id, value)
	VALUES (?, ?)
	ON CONFLICT (id) DO UPDATE SET
	value = excluded.value
	WHERE id = ?
	`
	_, err := s.DB.Exec(query, id, value, id)
	return err
}

func (s *SqliteStore) UpsertTokenMetadata(id string, createdat, expiresin int64) error {
	query := `
	INSERT INTO tokenmetadata (id, createdat, expiresin)
	VALUES (?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
	createdat = excluded.createdat,
	expiresin = excluded.expiresin
	WHERE id = ?
	`
	_, err := s.DB.Exec(query, id, createdat, expiresin, id)
	return err
}
