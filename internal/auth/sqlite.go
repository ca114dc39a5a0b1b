package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStoreFromEnv() (*sqliteStore, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("AUTH_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("LOCAL_DATABASE_PATH")),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return newSQLiteStore(filepath.Clean(candidate))
		}
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return newSQLiteStore(filepath.Join(userConfigDir, "moodclash", "moodclash_auth.db"))
}

func newSQLiteStore(dbPath string) (*sqliteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password_hash BLOB NOT NULL,
    created_at_ms INTEGER NOT NULL,
    last_login_ms INTEGER
)`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) CreateAccount(ctx context.Context, username string, passwordHash []byte) (uint64, error) {
	nowMs := time.Now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO accounts (username, password_hash, created_at_ms)
VALUES (?, ?, ?)
ON CONFLICT (username) DO NOTHING
`, username, passwordHash, nowMs)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrUsernameTaken
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *sqliteStore) LookupAccount(ctx context.Context, username string) (uint64, []byte, error) {
	var id int64
	var hash []byte
	err := s.db.QueryRowContext(ctx, `
SELECT id, password_hash
FROM accounts
WHERE username = ?
`, username).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrUnknownAccount
		}
		return 0, nil, err
	}
	return uint64(id), hash, nil
}

func (s *sqliteStore) TouchLogin(ctx context.Context, userID uint64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE accounts
SET last_login_ms = ?
WHERE id = ?
`, at.UTC().UnixMilli(), userID)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
