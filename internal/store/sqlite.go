package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coffersTech/uploadlog/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps records in an embedded SQLite database.
// Uses WAL mode so list/get can read while a write is in progress.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now Clock
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// SetClock replaces the store time source. Call it before the store is shared.
func (s *SQLiteStore) SetClock(c Clock) {
	s.now = c
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context, includeAll bool) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, timestamp, meta FROM records ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	if includeAll {
		return records, nil
	}
	return withinRetention(records, s.now()), nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, timestamp, meta FROM records WHERE CAST(id AS TEXT) = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec model.NewRecord) (model.Record, error) {
	if err := validate(rec); err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Record{}, fmt.Errorf("append record: %w", err)
	}
	defer tx.Rollback()

	var newest int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM records`).Scan(&newest); err != nil {
		return model.Record{}, fmt.Errorf("append record: %w", err)
	}

	now := s.now()
	entry := build(rec, nextID(now, newest), now)

	var meta sql.NullString
	if entry.Meta != nil {
		meta = sql.NullString{String: string(entry.Meta), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, name, timestamp, meta) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Name, entry.Timestamp, meta,
	); err != nil {
		return model.Record{}, fmt.Errorf("append record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM records
		WHERE id NOT IN (SELECT id FROM records ORDER BY id DESC LIMIT ?)
	`, Capacity); err != nil {
		return model.Record{}, fmt.Errorf("trim records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Record{}, fmt.Errorf("append record: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE CAST(id AS TEXT) = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.Record, error) {
	var (
		r    model.Record
		meta sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Timestamp, &meta); err != nil {
		return model.Record{}, err
	}
	if meta.Valid {
		r.Meta = model.CleanMeta([]byte(meta.String))
	}
	return r, nil
}
