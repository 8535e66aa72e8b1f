package validate

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NissanArmada/Produck/pkg/errorsx"
)

// SQLiteStore persists the cooldown deadline across restarts in a small
// key-value table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCooldownStore)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errorsx.Wrap(err, errorsx.ReasonCooldownStore)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Deadline() (time.Time, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, CooldownKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errorsx.Wrap(err, errorsx.ReasonCooldownStore)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func (s *SQLiteStore) SetDeadline(until time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		CooldownKey, strconv.FormatInt(until.UnixMilli(), 10),
	)
	return errorsx.Wrap(err, errorsx.ReasonCooldownStore)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
