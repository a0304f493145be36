package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/npratt/wingman/internal/events"
)

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	db  *sql.DB
	ids *idSource
}

// NewSQLite opens or creates a SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{
		db:  db,
		ids: newIDSource(),
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events_v1 (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT NOT NULL UNIQUE,
		class        TEXT NOT NULL,
		kind         TEXT NOT NULL,
		name         TEXT NOT NULL,
		data         TEXT NOT NULL,
		processed_at REAL NOT NULL,
		responded_at REAL,
		memorized_at REAL
	);
	CREATE INDEX IF NOT EXISTS idx_events_processed ON events_v1(processed_at);

	CREATE TABLE IF NOT EXISTS projections_v1 (
		name           TEXT PRIMARY KEY,
		state          TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		last_processed REAL NOT NULL,
		updated_at     TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Begin starts a write transaction.
func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &sqliteTx{ctx: ctx, tx: tx, ids: s.ids}, nil
}

func (s *SQLite) LatestEvents(ctx context.Context, limit int) ([]events.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, class, data, responded_at, memorized_at FROM events_v1
		WHERE memorized_at IS NULL
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest events: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLite) ReplayEvents(ctx context.Context, after float64, fn func(events.Event) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, class, data, responded_at, memorized_at FROM events_v1
		WHERE processed_at > ?
		ORDER BY seq ASC`, after)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLite) MarkResponded(ctx context.Context, upTo float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events_v1 SET responded_at = ?
		WHERE processed_at <= ? AND responded_at IS NULL`, upTo, upTo)
	if err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}
	return nil
}

func (s *SQLite) MarkMemorized(ctx context.Context, upTo float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events_v1 SET memorized_at = ?
		WHERE processed_at <= ? AND memorized_at IS NULL`, upTo, upTo)
	if err != nil {
		return fmt.Errorf("mark memorized: %w", err)
	}
	return nil
}

func (s *SQLite) LoadProjection(ctx context.Context, name string) (Record, error) {
	var (
		rec       Record
		state     string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, state, schema_version, last_processed, updated_at
		FROM projections_v1 WHERE name = ?`, name,
	).Scan(&rec.Name, &state, &rec.SchemaVersion, &rec.LastProcessed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("projection %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load projection %q: %w", name, err)
	}
	rec.State = []byte(state)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

func (s *SQLite) DeleteProjection(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projections_v1 WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete projection %q: %w", name, err)
	}
	return nil
}

func (s *SQLite) ClearHistory(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events_v1`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projections_v1`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear projections: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (events.Event, error) {
	var (
		id, class, data string
		responded       sql.NullFloat64
		memorized       sql.NullFloat64
	)
	if err := row.Scan(&id, &class, &data, &responded, &memorized); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	evt, err := events.Decode(events.Class(class), []byte(data))
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}
	base := evt.Base()
	base.ID = id
	base.RespondedAt = nullFloat(responded)
	base.MemorizedAt = nullFloat(memorized)
	return evt, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

type sqliteTx struct {
	ctx  context.Context
	tx   *sql.Tx
	ids  *idSource
	done bool
}

func (t *sqliteTx) AppendEvent(evt events.Event) error {
	if t.done {
		return ErrTxDone
	}
	base := evt.Base()
	if base.ID == "" {
		base.ID = t.ids.newID()
	}
	class, data, err := events.Encode(evt)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO events_v1 (id, class, kind, name, data, processed_at, responded_at, memorized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		base.ID, string(class), string(evt.Kind()), events.Name(evt), string(data),
		base.ProcessedAt, base.RespondedAt, base.MemorizedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (t *sqliteTx) SaveProjection(rec Record) error {
	if t.done {
		return ErrTxDone
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO projections_v1 (name, state, schema_version, last_processed, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			state = excluded.state,
			schema_version = excluded.schema_version,
			last_processed = excluded.last_processed,
			updated_at = excluded.updated_at`,
		rec.Name, string(rec.State), rec.SchemaVersion, rec.LastProcessed,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save projection %q: %w", rec.Name, err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
