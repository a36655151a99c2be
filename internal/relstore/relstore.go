// Package relstore provides the outbound RelationalStore adapter: the
// relational table of extracted Documents and the append-only import_logs
// audit table.
package relstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/errkind"
	"github.com/zakupai/etl-core/internal/models"
)

// Store is the relational adapter backing Document rows and batch audit
// records.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	retry   errkind.RetryPolicy
}

// Open connects to the DSN in cfg and ensures the schema exists. WAL mode and
// a busy_timeout pragma are set so maxOpenConns concurrent writers queue
// instead of failing with SQLITE_BUSY.
func Open(cfg config.RelStoreConfig, maxOpenConns int, retry errkind.RetryPolicy) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DSN.Value())
	if err != nil {
		return nil, errkind.Wrap(errkind.DBUnavailable, "relstore: open", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.DBUnavailable, "relstore: set pragmas", err)
	}

	store := &Store{db: db, timeout: cfg.TimeoutSec.Duration(), retry: retry}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	// id is declared INTEGER PRIMARY KEY so SQLite aliases it to the rowid,
	// giving the monotonic-integer "serial pk" the relational schema
	// requires and letting LastInsertId() read it back after Insert.
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY,
		lot_id text NOT NULL,
		file_name text NOT NULL,
		file_type text NOT NULL,
		content text NOT NULL,
		created_at timestamp DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(lot_id, file_name)
	);
	CREATE TABLE IF NOT EXISTS import_logs (
		batch_id text PRIMARY KEY,
		started_at timestamp NOT NULL,
		finished_at timestamp,
		report_json text
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errkind.Wrap(errkind.DBUnavailable, "relstore: migrate", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks reachability for the health endpoint's subsystem map.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errkind.Wrap(errkind.DBUnavailable, "relstore: ping", err)
	}
	return nil
}

// Insert writes a new Document. A (lot_id, file_name) collision is not an
// error: it returns the existing row's id with existing=true, enforcing at
// most one row per attachment.
func (s *Store) Insert(ctx context.Context, lotID, fileName, fileType, content string) (docID int64, existing bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		res, execErr := s.db.ExecContext(ctx,
			`INSERT INTO documents (lot_id, file_name, file_type, content) VALUES (?, ?, ?, ?)`,
			lotID, fileName, fileType, content,
		)
		if execErr == nil {
			id, idErr := res.LastInsertId()
			if idErr != nil {
				return errkind.Wrap(errkind.DBUnavailable, "relstore: read inserted id", idErr)
			}
			docID, existing = id, false
			return nil
		}

		row, getErr := s.getByLotAndFile(ctx, lotID, fileName)
		if getErr != nil {
			return errkind.Wrap(errkind.DBUnavailable, "relstore: insert", execErr)
		}
		docID, existing = row.DocID, true
		return nil
	})
	return docID, existing, err
}

func (s *Store) getByLotAndFile(ctx context.Context, lotID, fileName string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lot_id, file_name, file_type, content, created_at FROM documents WHERE lot_id = ? AND file_name = ?`,
		lotID, fileName,
	)
	return scanDocument(row)
}

// GetByDocID fetches a Document by its relational id, used by the Query
// Service to build content previews from TopK hits.
func (s *Store) GetByDocID(ctx context.Context, docID int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, lot_id, file_name, file_type, content, created_at FROM documents WHERE id = ?`,
		docID,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// ListDocuments returns every Document, for the orphan reconciliation scan to
// check against the vector store. Unbounded by design: this service's
// Document volume is expected to stay in the thousands, not millions.
func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lot_id, file_name, file_type, content, created_at FROM documents ORDER BY id`,
	)
	if err != nil {
		return nil, errkind.Wrap(errkind.DBUnavailable, "relstore: list documents", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var createdAt time.Time
		if err := rows.Scan(&doc.DocID, &doc.LotID, &doc.FileName, &doc.FileType, &doc.Content, &createdAt); err != nil {
			return nil, errkind.Wrap(errkind.DBUnavailable, "relstore: scan document", err)
		}
		doc.CreatedAt = createdAt
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.DBUnavailable, "relstore: list documents", err)
	}
	return docs, nil
}

func scanDocument(row *sql.Row) (*models.Document, error) {
	var doc models.Document
	var createdAt time.Time
	if err := row.Scan(&doc.DocID, &doc.LotID, &doc.FileName, &doc.FileType, &doc.Content, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errkind.Wrap(errkind.DBUnavailable, "relstore: scan document", err)
	}
	doc.CreatedAt = createdAt
	return &doc, nil
}

// RecordBatchStart appends an import_logs row when a RunBatch begins.
func (s *Store) RecordBatchStart(ctx context.Context, batchID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_logs (batch_id, started_at) VALUES (?, ?)`,
		batchID, startedAt,
	)
	if err != nil {
		return errkind.Wrap(errkind.DBUnavailable, "relstore: record batch start", err)
	}
	return nil
}

// RecordBatchFinish fills in the finished_at/report_json columns for a
// previously-started batch in the import_logs audit table.
func (s *Store) RecordBatchFinish(ctx context.Context, batchID string, finishedAt time.Time, reportJSON string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE import_logs SET finished_at = ?, report_json = ? WHERE batch_id = ?`,
		finishedAt, reportJSON, batchID,
	)
	if err != nil {
		return errkind.Wrap(errkind.DBUnavailable, "relstore: record batch finish", err)
	}
	return nil
}
