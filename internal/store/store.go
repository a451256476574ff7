// Package store archives valid TED datasets in PostgreSQL.
//
// Each archived file is stored once, keyed by the SHA-256 of its canonical
// encoding; archiving the same content again returns the existing entry.
// Column declarations are copied into a side table so archived recordings
// can be searched by column name, type or unit without decoding them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned when no archive entry has the requested id.
var ErrNotFound = errors.New("archive entry not found")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// DB is a DBTX that can open transactions, such as *pgxpool.Pool.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Entry describes one archived dataset.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	Digest       string    `json:"digest"`
	Version      string    `json:"version"`
	ExperimentID string    `json:"experiment_id"`
	DeviceID     string    `json:"device_id"`
	Rows         int       `json:"rows"`
	Columns      int       `json:"columns"`
	Size         int       `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// ColumnRecord is one archived column declaration.
type ColumnRecord struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Unit     string `json:"unit,omitempty"`
}

// Record is a dataset ready to archive: its canonical bytes plus the
// metadata indexed alongside them.
type Record struct {
	Digest       string
	Version      string
	ExperimentID string
	DeviceID     string
	Rows         int
	Columns      []ColumnRecord
	Content      []byte
}

// Store reads and writes the archive tables.
type Store struct {
	db DB
}

// New creates a store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ted_archive (
	id            UUID PRIMARY KEY,
	digest        TEXT NOT NULL UNIQUE,
	version       TEXT NOT NULL,
	experiment_id TEXT NOT NULL,
	device_id     TEXT NOT NULL,
	row_count     INTEGER NOT NULL,
	column_count  INTEGER NOT NULL,
	content       BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ted_archive_experiment_idx ON ted_archive (experiment_id);
CREATE TABLE IF NOT EXISTS ted_archive_column (
	archive_id    UUID NOT NULL REFERENCES ted_archive (id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	name          TEXT NOT NULL,
	semantic_type TEXT NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (archive_id, position)
);
CREATE INDEX IF NOT EXISTS ted_archive_column_name_idx ON ted_archive_column (name);
`

// Migrate creates the archive tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate archive schema: %w", err)
	}
	return nil
}

const entryColumns = `id, digest, version, experiment_id, device_id, row_count, column_count, octet_length(content), created_at`

// Archive stores rec unless an entry with the same digest exists. created
// reports whether a new entry was written.
func (s *Store) Archive(ctx context.Context, rec Record) (entry Entry, created bool, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Entry{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ted_archive WHERE digest = $1`, rec.Digest))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Entry{}, false, fmt.Errorf("lookup digest: %w", err)
	}

	id := uuid.New()
	entry = Entry{
		ID:           id,
		Digest:       rec.Digest,
		Version:      rec.Version,
		ExperimentID: rec.ExperimentID,
		DeviceID:     rec.DeviceID,
		Rows:         rec.Rows,
		Columns:      len(rec.Columns),
		Size:         len(rec.Content),
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO ted_archive (id, digest, version, experiment_id, device_id, row_count, column_count, content)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		pgUUID(id), rec.Digest, rec.Version, rec.ExperimentID, rec.DeviceID,
		rec.Rows, len(rec.Columns), rec.Content,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return Entry{}, false, fmt.Errorf("insert archive entry: %w", err)
	}

	rows := make([][]any, len(rec.Columns))
	for i, c := range rec.Columns {
		rows[i] = []any{pgUUID(id), c.Position, c.Name, c.Type, c.Unit}
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ted_archive_column"},
		[]string{"archive_id", "position", "name", "semantic_type", "unit"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return Entry{}, false, fmt.Errorf("copy column declarations: %w", err)
	}
	if int(n) != len(rows) {
		return Entry{}, false, fmt.Errorf("copy column declarations: wrote %d of %d", n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, false, fmt.Errorf("commit: %w", err)
	}
	return entry, true, nil
}

// Fetch returns an entry and its canonical file content.
func (s *Store) Fetch(ctx context.Context, id uuid.UUID) (Entry, []byte, error) {
	var content []byte
	var pid pgtype.UUID
	var e Entry
	err := s.db.QueryRow(ctx,
		`SELECT `+entryColumns+`, content FROM ted_archive WHERE id = $1`, pgUUID(id),
	).Scan(&pid, &e.Digest, &e.Version, &e.ExperimentID, &e.DeviceID, &e.Rows, &e.Columns, &e.Size, &e.CreatedAt, &content)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, nil, fmt.Errorf("fetch archive entry: %w", err)
	}
	e.ID = uuid.UUID(pid.Bytes)
	return e, content, nil
}

// List returns the newest entries first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+entryColumns+` FROM ted_archive ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return entries, nil
}

// Columns returns the archived column declarations of an entry in order.
func (s *Store) Columns(ctx context.Context, id uuid.UUID) ([]ColumnRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT position, name, semantic_type, unit FROM ted_archive_column
		 WHERE archive_id = $1 ORDER BY position`, pgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("list archive columns: %w", err)
	}
	defer rows.Close()

	var cols []ColumnRecord
	for rows.Next() {
		var c ColumnRecord
		if err := rows.Scan(&c.Position, &c.Name, &c.Type, &c.Unit); err != nil {
			return nil, fmt.Errorf("scan archive column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archive columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cols, nil
}

// scanEntry reads the columns named by entryColumns.
func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var pid pgtype.UUID
	if err := row.Scan(&pid, &e.Digest, &e.Version, &e.ExperimentID, &e.DeviceID, &e.Rows, &e.Columns, &e.Size, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.ID = uuid.UUID(pid.Bytes)
	return e, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
