package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
)

// CachedEmbedding is one persisted vector keyed by model and content hash.
type CachedEmbedding struct {
	ModelName   string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}

type embeddingRow struct {
	ContentHash string `db:"content_hash"`
	Dimension   int    `db:"dimension"`
	Embedding   []byte `db:"embedding"`
}

// EmbeddingCacheRepo persists embeddings so unchanged chunks are not re-embedded.
type EmbeddingCacheRepo struct {
	db *sqlx.DB
}

// GetMany returns the cached vectors for the given content hashes, keyed by hash.
// Missing hashes are simply absent from the result.
func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT content_hash, dimension, embedding
		FROM embedding_cache
		WHERE model_name = ? AND content_hash IN (?)`, modelName, hashes)
	if err != nil {
		return nil, fmt.Errorf("build cache query: %w", err)
	}
	var rows []embeddingRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	for _, row := range rows {
		vec, err := decodeVector(row.Embedding, row.Dimension)
		if err != nil {
			return nil, err
		}
		out[row.ContentHash] = vec
	}
	return out, nil
}

// SaveMany upserts items in a single transaction.
func (r *EmbeddingCacheRepo) SaveMany(ctx context.Context, items []CachedEmbedding) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embedding_cache (model_name, content_hash, dimension, embedding, ctime)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (model_name, content_hash) DO UPDATE SET
				dimension = excluded.dimension,
				embedding = excluded.embedding,
				ctime = excluded.ctime`,
			item.ModelName, item.ContentHash, len(item.Embedding), encodeVector(item.Embedding), item.Ctime); err != nil {
			return fmt.Errorf("save cached embedding: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteBefore removes entries created before cutoff (unix seconds).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf) != 4*dim {
		return nil, fmt.Errorf("cached embedding has %d bytes, want %d", len(buf), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
