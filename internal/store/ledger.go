package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DocumentRecord is one ingested document in the ledger.
type DocumentRecord struct {
	Path        string `db:"path"`
	DocID       string `db:"doc_id"`
	ContentHash string `db:"content_hash"`
	Chunks      int    `db:"chunks"`
	IngestedAt  int64  `db:"ingested_at"`
}

// LedgerRepo tracks which document versions are already in the index.
type LedgerRepo struct {
	db *sqlx.DB
}

// Get returns the record for path, or ok=false when the document was never ingested.
func (r *LedgerRepo) Get(ctx context.Context, path string) (*DocumentRecord, bool, error) {
	var rec DocumentRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT path, doc_id, content_hash, chunks, ingested_at
		FROM documents WHERE path = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query document: %w", err)
	}
	return &rec, true, nil
}

// Unchanged reports whether path was already ingested with the same content hash.
func (r *LedgerRepo) Unchanged(ctx context.Context, path, contentHash string) (bool, error) {
	rec, ok, err := r.Get(ctx, path)
	if err != nil || !ok {
		return false, err
	}
	return rec.ContentHash == contentHash, nil
}

// Save inserts or replaces the record for rec.Path.
func (r *LedgerRepo) Save(ctx context.Context, rec *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (path, doc_id, content_hash, chunks, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			doc_id = excluded.doc_id,
			content_hash = excluded.content_hash,
			chunks = excluded.chunks,
			ingested_at = excluded.ingested_at`,
		rec.Path, rec.DocID, rec.ContentHash, rec.Chunks, rec.IngestedAt)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// List returns all ledger records ordered by path.
func (r *LedgerRepo) List(ctx context.Context) ([]DocumentRecord, error) {
	var out []DocumentRecord
	if err := r.db.SelectContext(ctx, &out, `
		SELECT path, doc_id, content_hash, chunks, ingested_at
		FROM documents ORDER BY path`); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// Reset forgets every document. Called when the index is rebuilt from scratch.
func (r *LedgerRepo) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}
