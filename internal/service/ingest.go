package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/store"
	"docqa/internal/vectorindex"
)

// IngestStatus distinguishes the non-error outcomes of an ingestion run.
type IngestStatus string

const (
	StatusNoDocuments IngestStatus = "no_documents"
	StatusNoNewChunks IngestStatus = "no_new_chunks"
	StatusIndexed     IngestStatus = "indexed"
)

// IngestReport summarizes an ingestion run.
type IngestReport struct {
	Status        IngestStatus `json:"status"`
	ChunksAdded   int          `json:"chunks_indexed"`
	DocsProcessed int          `json:"docs"`
	DocsSkipped   int          `json:"docs_skipped"`
	Rebuilt       bool         `json:"rebuilt"`
}

// Ingest scans paths for supported, non-blocklisted files and indexes their chunks.
// A fresh, empty or dimension-mismatched index is recreated from this batch; otherwise
// chunks are appended. Ingestion runs are serialized.
func (p *Pipeline) Ingest(ctx context.Context, paths []string) (*IngestReport, error) {
	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()
	logger := logutil.GetLogger(ctx)

	files := p.Scan(ctx, paths)
	if len(files) == 0 {
		logger.Info("no ingestible documents found", zap.Strings("paths", paths))
		return &IngestReport{Status: StatusNoDocuments}, nil
	}

	st := p.index.Stats()
	fresh := !st.Exists || st.Entries == 0 || st.Dimension != p.embedder.Dimension()
	if fresh {
		if err := p.ledger.Reset(ctx); err != nil {
			return nil, err
		}
	}

	report := &IngestReport{Status: StatusNoNewChunks}
	var meta []domain.Chunk
	var pending []*store.DocumentRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := p.extractor.Extract(ctx, path)
		if err != nil {
			logger.Warn("skip unreadable document", zap.String("path", path), zap.Error(err))
			continue
		}
		hash := hashContent(content)
		unchanged, err := p.ledger.Unchanged(ctx, path, hash)
		if err != nil {
			return nil, err
		}
		if unchanged {
			report.DocsSkipped++
			continue
		}
		report.DocsProcessed++
		docID := filepath.Base(path)
		pieces := p.chunker.Chunk(content)
		for _, text := range pieces {
			meta = append(meta, domain.Chunk{DocID: docID, Source: path, Text: text})
		}
		pending = append(pending, &store.DocumentRecord{
			Path:        path,
			DocID:       docID,
			ContentHash: hash,
			Chunks:      len(pieces),
		})
		logger.Debug("document chunked", zap.String("path", path), zap.Int("chunks", len(pieces)))
	}
	if len(meta) == 0 {
		logger.Info("no new chunks to index",
			zap.Int("docs", report.DocsProcessed), zap.Int("skipped", report.DocsSkipped))
		return report, nil
	}

	vectors, err := p.embedAll(ctx, meta)
	if err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	err = p.index.Update(ctx, func(tx *vectorindex.Tx) error {
		switch {
		case tx.Exists() && tx.Len() > 0 && tx.Dimension() != dim:
			reason := fmt.Sprintf("embedding dimension changed from %d to %d", tx.Dimension(), dim)
			if err := tx.Rebuild(dim, reason); err != nil {
				return err
			}
			report.Rebuilt = true
			return tx.Add(vectors, meta)
		case !tx.Exists() || tx.Len() == 0:
			return tx.Create(vectors, meta)
		default:
			return tx.Add(vectors, meta)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("update index: %w", err)
	}
	report.Status = StatusIndexed
	report.ChunksAdded = len(meta)

	now := time.Now().Unix()
	for _, rec := range pending {
		rec.IngestedAt = now
		if err := p.ledger.Save(ctx, rec); err != nil {
			logger.Warn("failed to record ingested document", zap.String("path", rec.Path), zap.Error(err))
		}
	}
	indexPath, metaPath := p.index.Paths()
	if err := p.snapshot.Publish(ctx, indexPath, metaPath); err != nil {
		logger.Warn("failed to publish index snapshot", zap.Error(err))
	}
	stats := p.index.Stats()
	logger.Info("ingestion finished",
		zap.Int("chunks_added", report.ChunksAdded),
		zap.Int("docs", report.DocsProcessed),
		zap.Int("skipped", report.DocsSkipped),
		zap.Bool("rebuilt", report.Rebuilt),
		zap.Int("entries", stats.Entries),
		zap.Uint64("version", stats.Version))
	return report, nil
}

func (p *Pipeline) embedAll(ctx context.Context, meta []domain.Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(meta))
	for start := 0; start < len(meta); start += p.opts.EmbedBatch {
		end := min(start+p.opts.EmbedBatch, len(meta))
		texts := make([]string, 0, end-start)
		for _, c := range meta[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vecs), len(texts))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Scan expands paths (globs, files and directories walked recursively) into the sorted
// list of supported files whose names are not blocklisted.
func (p *Pipeline) Scan(ctx context.Context, paths []string) []string {
	logger := logutil.GetLogger(ctx)
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if !p.extractor.Supported(path) || p.blocked.Contains(path) {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	for _, pattern := range paths {
		matches, _ := filepath.Glob(pattern)
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				logger.Warn("skip missing path", zap.String("path", m), zap.Error(err))
				continue
			}
			if !info.IsDir() {
				add(filepath.Clean(m))
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					logger.Warn("skip unreadable path", zap.String("path", path), zap.Error(err))
					if d != nil && d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					if path != m && strings.HasPrefix(d.Name(), ".") {
						return fs.SkipDir
					}
					return nil
				}
				add(path)
				return nil
			})
			if err != nil && !errors.Is(err, fs.SkipDir) {
				logger.Warn("walk failed", zap.String("path", m), zap.Error(err))
			}
		}
	}
	sort.Strings(out)
	return out
}

// Bootstrap prepares the index at startup: load persisted artifacts, else restore a
// snapshot, else ingest dataDirs. A corrupt local index is logged and replaced. An
// index built with another embedding dimension is rebuilt by ingesting dataDirs.
func (p *Pipeline) Bootstrap(ctx context.Context, dataDirs []string) error {
	logger := logutil.GetLogger(ctx)
	loaded, err := p.index.Load()
	if err != nil {
		if !errors.Is(err, vectorindex.ErrCorruptIndex) {
			return err
		}
		logger.Warn("persisted index is corrupt, rebuilding", zap.Error(err))
	}
	if loaded && !p.dimensionMatches(ctx) {
		loaded = false
	}
	if !loaded {
		indexPath, metaPath := p.index.Paths()
		restored, rerr := p.snapshot.Restore(ctx, indexPath, metaPath)
		if rerr != nil {
			logger.Warn("snapshot restore failed", zap.Error(rerr))
		}
		if restored {
			loaded, err = p.index.Load()
			if err != nil {
				logger.Warn("restored snapshot unusable", zap.Error(err))
			}
			if loaded && !p.dimensionMatches(ctx) {
				loaded = false
			}
		}
	}
	if loaded {
		st := p.index.Stats()
		logger.Info("index loaded",
			zap.Int("entries", st.Entries), zap.Int("dimension", st.Dimension), zap.Uint64("version", st.Version))
		return nil
	}
	report, err := p.Ingest(ctx, dataDirs)
	if err != nil {
		return fmt.Errorf("initial ingest: %w", err)
	}
	logger.Info("initial ingest done", zap.String("status", string(report.Status)), zap.Int("chunks", report.ChunksAdded))
	return nil
}

func (p *Pipeline) dimensionMatches(ctx context.Context) bool {
	st := p.index.Stats()
	if st.Entries == 0 || st.Dimension == p.embedder.Dimension() {
		return true
	}
	logutil.GetLogger(ctx).Warn("persisted index dimension differs from embedder, rebuilding",
		zap.Int("index_dimension", st.Dimension),
		zap.Int("embedder_dimension", p.embedder.Dimension()),
		zap.Int("entries", st.Entries))
	return false
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
