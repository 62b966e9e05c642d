package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dshills/reposcope-mcp/internal/docstore"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage opens dbPath and applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Document operations

func (s *SQLiteStorage) ReplaceDocuments(ctx context.Context, entries []docstore.IndexEntry, meta map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := replaceDocumentsWithQuerier(ctx, tx, entries, meta); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func replaceDocumentsWithQuerier(ctx context.Context, q querier, entries []docstore.IndexEntry, meta map[string]string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return fmt.Errorf("failed to clear index meta: %w", err)
	}

	for _, e := range entries {
		_, err := q.ExecContext(ctx,
			"INSERT INTO documents (internal_id, external_id, content) VALUES (?, ?, ?)",
			e.InternalID, e.ExternalID, e.Content)
		if err != nil {
			return fmt.Errorf("failed to insert document %d: %w", e.InternalID, err)
		}
	}

	for k, v := range meta {
		if _, err := q.ExecContext(ctx, "INSERT INTO index_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write meta %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) LoadDocuments(ctx context.Context) ([]docstore.IndexEntry, error) {
	rows, err := s.querier().QueryContext(ctx,
		"SELECT internal_id, external_id, content FROM documents ORDER BY internal_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []docstore.IndexEntry
	for rows.Next() {
		var e docstore.IndexEntry
		if err := rows.Scan(&e.InternalID, &e.ExternalID, &e.Content); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.querier().QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.querier().QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return v, nil
}

// ensure SQLiteStorage satisfies Storage
var _ Storage = (*SQLiteStorage)(nil)
