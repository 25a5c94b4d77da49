package db

import "time"

// ActivityLog is one append-only row recording who asked Bandmaster to do
// what. Rows are never updated or deleted.
type ActivityLog struct {
	ID        int    `db:"id" json:"id"`
	Timestamp string `db:"timestamp" json:"timestamp"`
	Actor     string `db:"actor" json:"actor"`
	Action    string `db:"action" json:"action"`
	Details   string `db:"details" json:"details"`
	Result    string `db:"result" json:"result"`
}

type Token struct {
	ID    string `db:"id"`
	Value string `db:"value"`
}

type TokenMetadata struct {
	ID        string `db:"id"`
	CreatedAt int64  `db:"createdat"`
	ExpiresIn int64  `db:"expiresin"`
}

func (t TokenMetadata) Expiry() time.Time {
	return time.Unix(t.CreatedAt, 0).Add(time.Duration(t.ExpiresIn) * time.Second)
}

type Store interface {
	InsertActivity(entry ActivityLog) error
	RecentActivity(limit int) ([]ActivityLog, error)
	GetTokenByID(id string) string
	GetTokenMetadataByID(id string) TokenMetadata
	UpsertToken(id, value string) error
	UpsertTokenMetadata(id string, createdat, expiresin int64) error
}
