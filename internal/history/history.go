// Package history keeps an optional log of fetch runs in Postgres.
//
// Only run metadata is stored: which table, how many records and
// diagnostics, the error if any, and how long it took. Record contents
// never reach the database.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// DefaultLimit is the number of entries Recent returns when asked for none.
const DefaultLimit = 50

// maxLimit caps Recent regardless of the caller.
const maxLimit = 1000

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx used by Store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is one fetch of one table.
type Entry struct {
	ID            uuid.UUID     `json:"id"`
	SpreadsheetID string        `json:"spreadsheetId"`
	Table         string        `json:"table"`
	Records       int           `json:"records"`
	Diagnostics   int           `json:"diagnostics"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"durationMs"`
	FetchedAt     time.Time     `json:"fetchedAt"`
}

// FromResult describes a retriever result. diagnostics is the number of
// diagnostics reported for the table while it was built.
func FromResult(spreadsheetID string, res core.Result, diagnostics int, took time.Duration) Entry {
	e := Entry{
		SpreadsheetID: spreadsheetID,
		Table:         res.Name,
		Records:       len(res.Records),
		Diagnostics:   diagnostics,
		Duration:      took,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fetch_history (
    id               UUID PRIMARY KEY,
    spreadsheet_id   TEXT        NOT NULL,
    table_name       TEXT        NOT NULL,
    record_count     INTEGER     NOT NULL DEFAULT 0,
    diagnostic_count INTEGER     NOT NULL DEFAULT 0,
    error            TEXT,
    duration_ms      BIGINT      NOT NULL DEFAULT 0,
    fetched_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS fetch_history_sheet_time
    ON fetch_history (spreadsheet_id, fetched_at DESC);`

const insertSQL = `
INSERT INTO fetch_history
    (id, spreadsheet_id, table_name, record_count, diagnostic_count, error, duration_ms, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const recentSQL = `
SELECT id, spreadsheet_id, table_name, record_count, diagnostic_count, error, duration_ms, fetched_at
FROM fetch_history
WHERE spreadsheet_id = $1
ORDER BY fetched_at DESC
LIMIT $2`

// Store reads and writes fetch history.
type Store struct {
	db  DBTX
	now func() time.Time
}

// NewStore returns a store over db.
func NewStore(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create fetch_history: %w", err)
	}
	return nil
}

// Record inserts e, assigning an id and timestamp when they are unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = s.now().UTC()
	}
	e.DurationMS = e.Duration.Milliseconds()

	_, err := s.db.Exec(ctx, insertSQL,
		pgtype.UUID{Bytes: e.ID, Valid: true},
		e.SpreadsheetID,
		e.Table,
		int32(e.Records),
		int32(e.Diagnostics),
		toPgText(e.Error),
		e.DurationMS,
		pgtype.Timestamptz{Time: e.FetchedAt, Valid: true},
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert fetch history for %s: %w", e.Table, err)
	}
	return e, nil
}

// Recent returns the latest entries for spreadsheetID, newest first.
func (s *Store) Recent(ctx context.Context, spreadsheetID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := s.db.Query(ctx, recentSQL, spreadsheetID, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			id          pgtype.UUID
			e           Entry
			records     int32
			diagnostics int32
			errText     pgtype.Text
			fetchedAt   pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &e.SpreadsheetID, &e.Table, &records, &diagnostics, &errText, &e.DurationMS, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetch history: %w", err)
		}
		e.ID = uuid.UUID(id.Bytes)
		e.Records = int(records)
		e.Diagnostics = int(diagnostics)
		e.Error = errText.String
		e.Duration = time.Duration(e.DurationMS) * time.Millisecond
		e.FetchedAt = fetchedAt.Time
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read fetch history: %w", err)
	}
	return entries, nil
}

// toPgText converts a string to pgtype.Text. Empty strings are NULL.
func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
