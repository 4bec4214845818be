// Package sqlite implements storage.HistoryRepository on SQLite using sqlx
// and the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/storage"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timestampLayout is fixed-width so that text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	item_id    TEXT NOT NULL DEFAULT '',
	item_title TEXT NOT NULL,
	timestamp  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS history_kind_ts ON history (kind, timestamp DESC);
`

// historyRow mirrors the history table.
type historyRow struct {
	ID        int64  `db:"id"`
	Kind      string `db:"kind"`
	Query     string `db:"query"`
	ItemID    string `db:"item_id"`
	ItemTitle string `db:"item_title"`
	Timestamp string `db:"timestamp"`
}

// HistoryRepository implements storage.HistoryRepository.
type HistoryRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ storage.HistoryRepository = (*HistoryRepository)(nil)

// OpenHistory opens (creating if needed) the history database at path and
// ensures the schema exists. Use MemoryPath for an ephemeral database.
//
// Returns storage.HistoryRepository interface to enforce abstraction.
func OpenHistory(path string) (storage.HistoryRepository, error) {
	return openHistory(path)
}

func openHistory(path string) (*HistoryRepository, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &HistoryRepository{
		db:     db,
		logger: slog.Default().With("component", "history"),
	}, nil
}

// Close closes the database.
func (r *HistoryRepository) Close() error {
	return r.db.Close()
}

// Append inserts entries in one transaction. Entries without a timestamp
// are stamped with the current UTC time; all timestamps are stored in UTC.
func (r *HistoryRepository) Append(ctx context.Context, entries ...*core.HistoryEntry) ([]*core.HistoryEntry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if e != nil && e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if err := core.ValidateHistoryEntry(e); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, e := range entries {
		res, err := tx.NamedExecContext(ctx,
			`INSERT INTO history (kind, query, item_id, item_title, timestamp)
			 VALUES (:kind, :query, :item_id, :item_title, :timestamp)`,
			toRow(e))
		if err != nil {
			return nil, err
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	r.logger.Debug("appended history", "count", len(entries), "kind", entries[0].Kind)
	return entries, nil
}

// Recent returns up to limit entries for kind, newest first. Entries with
// equal timestamps are ordered by descending id.
func (r *HistoryRepository) Recent(ctx context.Context, kind core.Kind, limit int) ([]*core.HistoryEntry, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, kind, query, item_id, item_title, timestamp
		   FROM history
		  WHERE kind = ?
		  ORDER BY timestamp DESC, id DESC
		  LIMIT ?`,
		string(kind), limit)
	if err != nil {
		return nil, err
	}

	out := make([]*core.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toRow(e *core.HistoryEntry) historyRow {
	return historyRow{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Query:     e.Query,
		ItemID:    e.ItemID,
		ItemTitle: e.ItemTitle,
		Timestamp: e.Timestamp.UTC().Format(timestampLayout),
	}
}

func fromRow(row historyRow) (*core.HistoryEntry, error) {
	ts, err := time.Parse(timestampLayout, row.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: history %d timestamp: %w", storage.ErrSerializationFailed, row.ID, err)
	}
	return &core.HistoryEntry{
		ID:        row.ID,
		Kind:      core.Kind(row.Kind),
		Query:     row.Query,
		ItemID:    row.ItemID,
		ItemTitle: row.ItemTitle,
		Timestamp: ts.UTC(),
	}, nil
}
