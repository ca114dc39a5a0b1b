package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"moodclash/internal/codec"
)

const defaultLocalDBName = "moodclash_local.db"

type SQLiteService struct {
	db          *sql.DB
	recentLimit int
	log         zerolog.Logger
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath, err := localDatabasePathFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
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
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{
		db:          db,
		recentLimit: envIntOrDefault("LEDGER_RECENT_LIMIT", defaultRecentLimit),
		log:         log.With().Str("component", "ledger").Logger(),
	}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) AppendEvent(matchID string, env *codec.ServerEnvelope, encoded []byte) {
	if strings.TrimSpace(matchID) == "" || env == nil {
		return
	}
	if encoded == nil {
		raw, err := codec.Encode(env)
		if err != nil {
			s.log.Error().Err(err).Str("match", matchID).Msg("marshal event failed")
			return
		}
		encoded = raw
	}
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO match_event_stream (match_id, seq, event_type, envelope_json, server_ts_ms, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, seq) DO NOTHING
`, matchID, int64(env.ServerSeq), string(env.Kind), string(encoded), nullableInt64(env.ServerTsMs), nowMs)
	if err != nil {
		s.log.Error().Err(err).Str("match", matchID).Uint64("seq", env.ServerSeq).Msg("append event failed")
	}
}

func (s *SQLiteService) RecordVerdict(matchID string, rec VerdictRecord) {
	if strings.TrimSpace(matchID) == "" {
		return
	}
	deltasRaw, err := json.Marshal(rec.Deltas)
	if err != nil {
		s.log.Error().Err(err).Str("match", matchID).Msg("marshal verdict deltas failed")
		return
	}
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO mood_verdicts (match_id, switch_seq, deltas_json, salvaged, rationale, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, switch_seq) DO NOTHING
`, matchID, int64(rec.SwitchSeq), string(deltasRaw), boolToInt(rec.Salvaged), rec.Rationale, nowMs)
	if err != nil {
		s.log.Error().Err(err).Str("match", matchID).Uint64("switchSeq", rec.SwitchSeq).Msg("record verdict failed")
	}
}

func (s *SQLiteService) UpsertMatchHistory(userID uint64, matchID string, playedAt time.Time, summary map[string]any) {
	if userID == 0 || strings.TrimSpace(matchID) == "" {
		return
	}
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}
	if summary == nil {
		summary = map[string]any{}
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		s.log.Error().Err(err).Uint64("user", userID).Str("match", matchID).Msg("marshal match summary failed")
		return
	}

	playedAtMs := playedAt.UTC().UnixMilli()
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Error().Err(err).Uint64("user", userID).Str("match", matchID).Msg("begin history tx failed")
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO user_match_history (user_id, match_id, played_at_ms, summary_json, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, match_id) DO UPDATE
SET
    played_at_ms = excluded.played_at_ms,
    summary_json = excluded.summary_json,
    updated_at_ms = excluded.updated_at_ms
`, userID, matchID, playedAtMs, string(summaryRaw), nowMs, nowMs)
	if err != nil {
		s.log.Error().Err(err).Uint64("user", userID).Str("match", matchID).Msg("upsert match history failed")
		return
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM user_match_history
WHERE user_id = ?
  AND id IN (
      SELECT id
      FROM user_match_history
      WHERE user_id = ?
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, userID, userID, s.recentLimit)
		if err != nil {
			s.log.Error().Err(err).Uint64("user", userID).Msg("trim match history failed")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Uint64("user", userID).Str("match", matchID).Msg("commit match history failed")
	}
}

func (s *SQLiteService) ListRecent(ctx context.Context, userID uint64, limit int) ([]HistoryItem, error) {
	if userID == 0 {
		return []HistoryItem{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT match_id, played_at_ms, summary_json, updated_at_ms
FROM user_match_history
WHERE user_id = ?
ORDER BY played_at_ms DESC, id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]HistoryItem, 0, limit)
	for rows.Next() {
		var item HistoryItem
		var playedAtMs, updatedAtMs int64
		var summaryRaw []byte
		if err := rows.Scan(&item.MatchID, &playedAtMs, &summaryRaw, &updatedAtMs); err != nil {
			return nil, err
		}
		item.PlayedAt = time.UnixMilli(playedAtMs).UTC()
		item.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
		if len(summaryRaw) > 0 {
			_ = json.Unmarshal(summaryRaw, &item.Summary)
		}
		if item.Summary == nil {
			item.Summary = map[string]any{}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteService) GetMatchEvents(ctx context.Context, userID uint64, matchID string) ([]EventItem, error) {
	if userID == 0 || strings.TrimSpace(matchID) == "" {
		return nil, ErrNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var one int64
	err := s.db.QueryRowContext(ctx, `
SELECT 1
FROM user_match_history
WHERE user_id = ?
  AND match_id = ?
`, userID, matchID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_type, envelope_json, server_ts_ms
FROM match_event_stream
WHERE match_id = ?
ORDER BY seq ASC
`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]EventItem, 0, 64)
	for rows.Next() {
		var e EventItem
		var seq int64
		var envRaw []byte
		var serverTs sql.NullInt64
		if err := rows.Scan(&seq, &e.EventType, &envRaw, &serverTs); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Envelope = json.RawMessage(envRaw)
		if serverTs.Valid {
			e.ServerTsMs = serverTs.Int64
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

func (s *SQLiteService) GetVerdicts(ctx context.Context, matchID string) ([]VerdictRecord, error) {
	if strings.TrimSpace(matchID) == "" {
		return nil, ErrNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT match_id, switch_seq, deltas_json, salvaged, rationale
FROM mood_verdicts
WHERE match_id = ?
ORDER BY switch_seq ASC
`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]VerdictRecord, 0, 16)
	for rows.Next() {
		var rec VerdictRecord
		var switchSeq, salvaged int64
		var deltasRaw []byte
		if err := rows.Scan(&rec.MatchID, &switchSeq, &deltasRaw, &salvaged, &rec.Rationale); err != nil {
			return nil, err
		}
		rec.SwitchSeq = uint64(switchSeq)
		rec.Salvaged = salvaged == 1
		if len(deltasRaw) > 0 {
			_ = json.Unmarshal(deltasRaw, &rec.Deltas)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func ensureSQLiteLedgerSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS match_event_stream (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    match_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    envelope_json TEXT NOT NULL DEFAULT '{}',
    server_ts_ms INTEGER,
    created_at_ms INTEGER NOT NULL,
    UNIQUE (match_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_match_event_stream_match_seq ON match_event_stream(match_id, seq)`,
		`
CREATE TABLE IF NOT EXISTS mood_verdicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    match_id TEXT NOT NULL,
    switch_seq INTEGER NOT NULL,
    deltas_json TEXT NOT NULL DEFAULT '{}',
    salvaged INTEGER NOT NULL DEFAULT 0,
    rationale TEXT NOT NULL DEFAULT '',
    created_at_ms INTEGER NOT NULL,
    UNIQUE (match_id, switch_seq)
)`,
		`
CREATE TABLE IF NOT EXISTS user_match_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    match_id TEXT NOT NULL,
    played_at_ms INTEGER NOT NULL,
    summary_json TEXT NOT NULL DEFAULT '{}',
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    UNIQUE (user_id, match_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_user_match_history_recent ON user_match_history(user_id, played_at_ms DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func localDatabasePathFromEnv() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("LEDGER_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("LOCAL_DATABASE_PATH")),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return filepath.Clean(candidate), nil
		}
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "moodclash", defaultLocalDBName), nil
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
