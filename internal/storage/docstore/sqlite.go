package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// SQLiteStore implements Store on a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	cols   *collections
	logger *slog.Logger
	closed atomic.Bool
}

// NewSQLiteStore opens the database at dsn and runs pending migrations.
func NewSQLiteStore(dsn string, specs []domain.CollectionSpec, logger *slog.Logger) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// Single connection: writers never see SQLITE_BUSY and ":memory:" stays shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		cols:   newCollections(specs),
		logger: logger,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}

	logger.Info("sqlite document store initialized", "dsn", dsn)
	return s, nil
}

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
			CREATE TABLE documents (
				collection  TEXT NOT NULL,
				id          TEXT NOT NULL,
				modified_at INTEGER,
				body        BLOB NOT NULL,
				PRIMARY KEY (collection, id)
			);
		`,
	},
	{
		version: 2,
		sql: `
			CREATE INDEX idx_documents_modified
				ON documents(collection, modified_at);
		`,
	},
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		s.logger.Info("running migration", "version", m.version)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) check(ctx context.Context, collection string) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validateCollection(collection)
}

// Find implements Store. The modified filter is applied in SQL and then
// re-checked on the decoded document.
func (s *SQLiteStore) Find(ctx context.Context, collection string, filter Filter) ([]domain.Document, error) {
	if err := s.check(ctx, collection); err != nil {
		return nil, err
	}
	spec := s.cols.spec(collection)

	query := "SELECT body FROM documents WHERE collection = ?"
	args := []any{collection}
	if filter.ModifiedSince != nil {
		query += " AND modified_at IS NOT NULL AND modified_at >= ?"
		args = append(args, filter.ModifiedSince.UnixMilli())
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", collection, err)
		}
		doc, err := domain.DecodeDocument(body)
		if err != nil {
			return nil, err
		}
		if matches(spec, doc, filter) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate %s: %w", collection, err)
	}
	return docs, nil
}

// FindOne implements Store.
func (s *SQLiteStore) FindOne(ctx context.Context, collection, id string) (domain.Document, error) {
	if err := s.check(ctx, collection); err != nil {
		return nil, err
	}

	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound.WithDetails(collection + "/" + id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s/%s: %w", collection, id, err)
	}
	return domain.DecodeDocument(body)
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, collection string, doc domain.Document) (string, error) {
	if err := s.check(ctx, collection); err != nil {
		return "", err
	}
	id, body, modified, err := prepareCreate(s.cols.spec(collection), doc)
	if err != nil {
		return "", err
	}

	var modifiedMs any
	if modified != nil {
		modifiedMs = modified.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, modified_at, body) VALUES (?, ?, ?, ?)",
		collection, id, modifiedMs, body,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", domain.ErrDocumentConflict.WithDetails(collection + "/" + id)
		}
		return "", fmt.Errorf("sqlite: insert %s/%s: %w", collection, id, err)
	}
	return id, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, collection, id string, doc domain.Document) error {
	if err := s.check(ctx, collection); err != nil {
		return err
	}
	body, modified, err := prepareUpsert(s.cols.spec(collection), id, doc)
	if err != nil {
		return err
	}

	var modifiedMs any
	if modified != nil {
		modifiedMs = modified.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, modified_at, body) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			modified_at = excluded.modified_at,
			body = excluded.body
	`, collection, id, modifiedMs, body)
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// DeleteMany implements Store.
func (s *SQLiteStore) DeleteMany(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx, collection); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", collection)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", collection, err)
	}
	return n, nil
}

// Engine implements Store.
func (s *SQLiteStore) Engine() string { return EngineSQLite }

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close database: %w", err)
	}
	return nil
}
