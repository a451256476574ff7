package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow answers one QueryRow call.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *pgtype.UUID:
			*d = pgUUID(v.(uuid.UUID))
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *time.Time:
			*d = v.(time.Time)
		case *[]byte:
			*d = v.([]byte)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

// fakeRows iterates over canned rows.
type fakeRows struct {
	pgx.Rows
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.data[r.pos-1]) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

// fakeDB records statements and replays queued QueryRow results.
type fakeDB struct {
	pgx.Tx

	rowQueue []fakeRow
	rows     [][]any
	execErr  error
	copyErr  error

	queries   []string
	args      [][]any
	copied    [][]any
	committed bool
	rolled    bool
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) { return f, nil }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.execErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	return &fakeRows{data: f.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if len(f.rowQueue) == 0 {
		return fakeRow{err: errors.New("unexpected query")}
	}
	r := f.rowQueue[0]
	f.rowQueue = f.rowQueue[1:]
	return r
}

func (f *fakeDB) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, values)
		n++
	}
	return n, src.Err()
}

func (f *fakeDB) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeDB) Rollback(ctx context.Context) error {
	f.rolled = true
	return nil
}

func sampleRecord() Record {
	return Record{
		Digest:       "abc123",
		Version:      "2022.03",
		ExperimentID: "EXP-1",
		DeviceID:     "rig-3",
		Rows:         3,
		Columns: []ColumnRecord{
			{Position: 0, Name: "time", Type: "timestamp", Unit: "s"},
			{Position: 1, Name: "current", Type: "numeric-real", Unit: "pA"},
		},
		Content: []byte("TED_VERSION=2022.03\n"),
	}
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).Migrate(context.Background()))
	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS ted_archive (")
	assert.Contains(t, db.queries[0], "CREATE TABLE IF NOT EXISTS ted_archive_column (")

	db = &fakeDB{execErr: errors.New("permission denied")}
	err := New(db).Migrate(context.Background())
	assert.ErrorContains(t, err, "migrate archive schema")
}

func TestArchive_NewEntry(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	db := &fakeDB{rowQueue: []fakeRow{
		{err: pgx.ErrNoRows},
		{values: []any{created}},
	}}

	entry, isNew, err := New(db).Archive(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, db.committed)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "abc123", entry.Digest)
	assert.Equal(t, 2, entry.Columns)
	assert.Equal(t, 20, entry.Size)
	assert.Equal(t, created, entry.CreatedAt)

	require.Len(t, db.copied, 2)
	assert.Equal(t, []any{pgUUID(entry.ID), 1, "current", "numeric-real", "pA"}, db.copied[1])

	require.Len(t, db.queries, 2)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(db.queries[1]), "INSERT INTO ted_archive"))
}

func TestArchive_ExistingDigest(t *testing.T) {
	id := uuid.New()
	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{rowQueue: []fakeRow{
		{values: []any{id, "abc123", "2022.03", "EXP-1", "rig-3", 3, 2, 20, created}},
	}}

	entry, isNew, err := New(db).Archive(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, id, entry.ID)
	assert.Empty(t, db.copied)
	assert.False(t, db.committed)
	assert.Len(t, db.queries, 1)
}

func TestArchive_CopyFailureRollsBack(t *testing.T) {
	db := &fakeDB{
		rowQueue: []fakeRow{{err: pgx.ErrNoRows}, {values: []any{time.Now()}}},
		copyErr:  errors.New("connection reset by peer"),
	}

	_, _, err := New(db).Archive(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.ErrorContains(t, err, "copy column declarations")
	assert.False(t, db.committed)
	assert.True(t, db.rolled)
}

func TestFetch(t *testing.T) {
	id := uuid.New()
	created := time.Now().UTC()
	content := []byte("TED_VERSION=2022.03\n")
	db := &fakeDB{rowQueue: []fakeRow{
		{values: []any{id, "abc", "2022.03", "E", "D", 1, 1, len(content), created, content}},
	}}

	entry, got, err := New(db).Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, content, got)

	db = &fakeDB{rowQueue: []fakeRow{{err: pgx.ErrNoRows}}}
	_, _, err = New(db).Fetch(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	now := time.Now().UTC()
	db := &fakeDB{rows: [][]any{
		{a, "d1", "2022.03", "E1", "D", 10, 2, 100, now},
		{b, "d2", "2022.03", "E2", "D", 20, 3, 200, now.Add(-time.Hour)},
	}}

	entries, err := New(db).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, a, entries[0].ID)
	assert.Equal(t, "E2", entries[1].ExperimentID)
	assert.Equal(t, []any{50}, db.args[0])
}

func TestColumns(t *testing.T) {
	db := &fakeDB{rows: [][]any{
		{0, "time", "timestamp", "s"},
		{1, "current", "numeric-real", "pA"},
	}}
	cols, err := New(db).Columns(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, ColumnRecord{Position: 1, Name: "current", Type: "numeric-real", Unit: "pA"}, cols[1])

	_, err = New(&fakeDB{}).Columns(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
