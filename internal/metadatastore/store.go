// Package metadatastore implements the persistent document index keyed by
// document_id, with a unique content_hash index for dedup lookups.
// Adapted from a sqlite adapter's connection bring-up: modernc.org/sqlite
// via database/sql, the same PRAGMA sequence (WAL, busy_timeout,
// foreign_keys), and single-writer-friendly connection tuning, generalized
// here into a typed document repository rather than a generic
// SQL-execution adapter.
package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nexusrag/core/internal/coreerrors"
)

// Status values a Document may hold.
const (
	StatusIndexed    = "indexed"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// Document is one row of the metadata store.
type Document struct {
	DocumentID  string                 `json:"document_id"`
	Title       string                 `json:"title"`
	Category    string                 `json:"category,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Status      string                 `json:"status"`
	ChunksCount int                    `json:"chunks_count"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	MediaType   string                 `json:"media_type,omitempty"`
	MediaURL    string                 `json:"media_url,omitempty"`
	ContentHash string                 `json:"content_hash,omitempty"` // empty when the document has no recorded hash (failed ingest)
}

// Store is a process-wide singleton holding a single write-serializing
// handle to the persistent SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the single-file database at path and
// runs schema migration.
func Open(path string) (*Store, error) {
	dsn := path
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	// Single-writer semantics: one open connection serializes every
	// statement, reads included.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	document_id   TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	category      TEXT,
	description   TEXT,
	metadata_json TEXT,
	status        TEXT NOT NULL,
	chunks_count  INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	media_type    TEXT,
	media_url     TEXT,
	content_hash  TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash) WHERE content_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
CREATE TABLE IF NOT EXISTS legacy_snapshot_migrations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	migrated_at TEXT NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces doc, setting UpdatedAt to now.
func (s *Store) Upsert(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	metadataJSON, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "encoding document metadata", err)
	}

	var contentHash interface{}
	if doc.ContentHash != "" {
		contentHash = doc.ContentHash
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (document_id, title, category, description, metadata_json, status, chunks_count, created_at, updated_at, media_type, media_url, content_hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	title=excluded.title, category=excluded.category, description=excluded.description,
	metadata_json=excluded.metadata_json, status=excluded.status, chunks_count=excluded.chunks_count,
	updated_at=excluded.updated_at, media_type=excluded.media_type, media_url=excluded.media_url,
	content_hash=excluded.content_hash
`,
		doc.DocumentID, doc.Title, doc.Category, doc.Description, metadataJSON, doc.Status, doc.ChunksCount,
		doc.CreatedAt.Format(time.RFC3339), doc.UpdatedAt.Format(time.RFC3339), doc.MediaType, doc.MediaURL, contentHash,
	)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "upserting document", err)
	}
	return nil
}

// Get retrieves a document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document_id, title, category, description, metadata_json, status, chunks_count, created_at, updated_at, media_type, media_url, content_hash FROM documents WHERE document_id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, coreerrors.New(coreerrors.NotFound, "document not found: "+id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Exists reports whether id is present.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE document_id = ?`, id).Scan(&count)
	return count > 0, err
}

// Delete removes the document row with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, id)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "deleting document", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return coreerrors.New(coreerrors.NotFound, "document not found: "+id)
	}
	return nil
}

// FindByContentHash returns the document owning hash, if any.
func (s *Store) FindByContentHash(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document_id, title, category, description, metadata_json, status, chunks_count, created_at, updated_at, media_type, media_url, content_hash FROM documents WHERE content_hash = ?`, hash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// HashExists reports whether hash already has an owning document.
func (s *Store) HashExists(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE content_hash = ?`, hash).Scan(&count)
	return count > 0, err
}

// List returns documents ordered by created_at descending, with the total
// count irrespective of limit/offset.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*Document, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&total); err != nil {
		return nil, 0, coreerrors.Wrap(coreerrors.ProtocolError, "counting documents", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT document_id, title, category, description, metadata_json, status, chunks_count, created_at, updated_at, media_type, media_url, content_hash FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, coreerrors.Wrap(coreerrors.ProtocolError, "listing documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// Count returns the total number of documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&count)
	return count, err
}

// ChunkIDs reconstructs the ordered chunk-ID list for a document from its
// ChunksCount, without persisting any chunk rows.
func (s *Store) ChunkIDs(ctx context.Context, id string) ([]string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, doc.ChunksCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s_chunk_%d", id, i)
	}
	return ids, nil
}

// ImportLegacySnapshot imports a sequence of legacy document records
// exactly once, inside a single transaction, then marks the snapshot as
// migrated so a second call is a no-op.
func (s *Store) ImportLegacySnapshot(ctx context.Context, docs []*Document) error {
	var already int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM legacy_snapshot_migrations`).Scan(&already); err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "checking snapshot migration state", err)
	}
	if already > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "beginning snapshot transaction", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		metadataJSON, err := encodeMetadata(doc.Metadata)
		if err != nil {
			return coreerrors.Wrap(coreerrors.ProtocolError, "encoding legacy document metadata", err)
		}
		var contentHash interface{}
		if doc.ContentHash != "" {
			contentHash = doc.ContentHash
		}
		_, err = tx.ExecContext(ctx, `
INSERT OR IGNORE INTO documents (document_id, title, category, description, metadata_json, status, chunks_count, created_at, updated_at, media_type, media_url, content_hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.DocumentID, doc.Title, doc.Category, doc.Description, metadataJSON, doc.Status, doc.ChunksCount,
			doc.CreatedAt.Format(time.RFC3339), doc.UpdatedAt.Format(time.RFC3339), doc.MediaType, doc.MediaURL, contentHash,
		)
		if err != nil {
			return coreerrors.Wrap(coreerrors.ProtocolError, "importing legacy document", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO legacy_snapshot_migrations (migrated_at) VALUES (?)`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return coreerrors.Wrap(coreerrors.ProtocolError, "recording snapshot migration", err)
	}

	return tx.Commit()
}
