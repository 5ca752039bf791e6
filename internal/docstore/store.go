package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"soundscribe/internal/config"
)

// Store persists generated documents in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the document database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.DataDir, "documents.db"))
}

// OpenPath opens a document store at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	// Pragmas ride on the DSN so they apply to every pooled connection, not
	// just the one a plain Exec would hit.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) applySchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL,
    file_name TEXT NOT NULL,
    prompt_id TEXT NOT NULL,
    prompt_name TEXT,
    media_kind TEXT NOT NULL,
    bitrate_kbps INTEGER NOT NULL,
    sample_rate INTEGER NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents(batch_id);
CREATE INDEX IF NOT EXISTS idx_documents_file_prompt ON documents(batch_id, file_name, prompt_id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Save inserts one generated document and returns its identifier. It must be
// called exactly once per successful generation, before the prompt is marked
// complete.
func (s *Store) Save(ctx context.Context, doc *Document) (int64, error) {
	if doc == nil {
		return 0, errors.New("document is nil")
	}
	if doc.FileName == "" || doc.PromptID == "" {
		return 0, errors.New("document requires file name and prompt id")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO documents (
            batch_id, file_name, prompt_id, prompt_name, media_kind,
            bitrate_kbps, sample_rate, body, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.BatchID,
		doc.FileName,
		doc.PromptID,
		doc.PromptName,
		doc.MediaKind,
		doc.BitrateKbps,
		doc.SampleRate,
		doc.Body,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	doc.ID = id
	doc.CreatedAt = now
	return id, nil
}

// GetByID fetches a document by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListByBatch returns all documents produced by one batch ordered by insert
// time.
func (s *Store) ListByBatch(ctx context.Context, batchID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListRecent returns the most recent documents up to limit.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// CountForPrompt returns how many documents exist for one file/prompt pair in
// a batch. Resume correctness means this never exceeds one.
func (s *Store) CountForPrompt(ctx context.Context, batchID, fileName, promptID string) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM documents WHERE batch_id = ? AND file_name = ? AND prompt_id = ?`,
		batchID, fileName, promptID,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func collectDocuments(rows *sql.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const documentColumns = "id, batch_id, file_name, prompt_id, prompt_name, media_kind, bitrate_kbps, sample_rate, body, created_at"

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc        Document
		promptName sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&doc.ID,
		&doc.BatchID,
		&doc.FileName,
		&doc.PromptID,
		&promptName,
		&doc.MediaKind,
		&doc.BitrateKbps,
		&doc.SampleRate,
		&doc.Body,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	doc.PromptName = promptName.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		doc.CreatedAt = created
	}
	return &doc, nil
}
