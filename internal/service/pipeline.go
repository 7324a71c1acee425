package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/blocklist"
	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/generation"
	"docqa/internal/rerank"
	"docqa/internal/retriever"
	"docqa/internal/store"
	"docqa/internal/vectorindex"
)

const (
	EmptyIndexMessage      = "The knowledge base is empty. Ingest some documents first, then ask again."
	NothingRelevantMessage = "I couldn't find anything relevant to your question in the indexed documents."

	SystemInstruction = "You are a helpful assistant that answers questions using only the numbered context passages provided. " +
		"Cite the passages you rely on with their numbers in square brackets, for example [1]. " +
		"If the context does not contain the answer, say that you don't know."
)

// Canned replies keyed by the trimmed, lowercased query.
var cannedReplies = map[string]string{
	"hi":        "Hi! Ask me anything about the indexed documents.",
	"hello":     "Hello! Ask me anything about the indexed documents.",
	"hey":       "Hey! Ask me anything about the indexed documents.",
	"help":      "Ask a question in plain language and I will answer from the indexed documents, citing the passages I used.",
	"thanks":    "You're welcome!",
	"thank you": "You're welcome!",
}

// Ledger remembers which document versions are already indexed.
type Ledger interface {
	Unchanged(ctx context.Context, path, contentHash string) (bool, error)
	Save(ctx context.Context, rec *store.DocumentRecord) error
	Reset(ctx context.Context) error
}

// Snapshotter copies the persisted index artifacts to and from remote storage.
type Snapshotter interface {
	Publish(ctx context.Context, indexPath, metaPath string) error
	Restore(ctx context.Context, indexPath, metaPath string) (bool, error)
}

// Options bounds retrieval breadth and the number of passages sent to generation.
type Options struct {
	Candidates int
	DefaultK   int
	MaxK       int
	EmbedBatch int
}

// Deps are the collaborators of a Pipeline. Ledger and Snapshotter are optional.
type Deps struct {
	Index       *vectorindex.Index
	Embedder    domain.Embedder
	Chunker     domain.Chunker
	Reranker    rerank.Reranker
	Generator   domain.Generator
	Extractor   *extract.Registry
	Blocklist   *blocklist.List
	Ledger      Ledger
	Snapshotter Snapshotter
}

// Pipeline answers questions over the index and ingests documents into it.
type Pipeline struct {
	index     *vectorindex.Index
	embedder  domain.Embedder
	chunker   domain.Chunker
	retriever *retriever.Retriever
	reranker  rerank.Reranker
	generator domain.Generator
	extractor *extract.Registry
	blocked   *blocklist.List
	ledger    Ledger
	snapshot  Snapshotter
	opts      Options

	ingestMu sync.Mutex
}

func NewPipeline(deps Deps, opts Options) *Pipeline {
	if opts.Candidates <= 0 {
		opts.Candidates = 20
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 10
	}
	if opts.DefaultK <= 0 || opts.DefaultK > opts.MaxK {
		opts.DefaultK = min(5, opts.MaxK)
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = 64
	}
	if deps.Blocklist == nil {
		deps.Blocklist = blocklist.Default()
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewRegistry()
	}
	if deps.Ledger == nil {
		deps.Ledger = nopLedger{}
	}
	if deps.Snapshotter == nil {
		deps.Snapshotter = nopSnapshotter{}
	}
	return &Pipeline{
		index:     deps.Index,
		embedder:  deps.Embedder,
		chunker:   deps.Chunker,
		retriever: retriever.New(deps.Embedder, deps.Index, deps.Blocklist),
		reranker:  deps.Reranker,
		generator: deps.Generator,
		extractor: deps.Extractor,
		blocked:   deps.Blocklist,
		ledger:    deps.Ledger,
		snapshot:  deps.Snapshotter,
		opts:      opts,
	}
}

// ChatResult is the outcome of one chat turn. Citations and Scored are never nil and
// share rank order; a citation's ID is the chunk's index id, while the answer refers
// to passages by their 1-based rank.
type ChatResult struct {
	Answer    string
	Citations []domain.Citation
	Scored    []domain.ScoredChunk
}

func emptyResult(answer string) *ChatResult {
	return &ChatResult{Answer: answer, Citations: []domain.Citation{}, Scored: []domain.ScoredChunk{}}
}

// Chat answers query from at most k passages. Empty states produce fallback
// answers rather than errors; generation failures match generation.ErrGenerationFailed.
func (p *Pipeline) Chat(ctx context.Context, query string, k int) (*ChatResult, error) {
	logger := logutil.GetLogger(ctx)
	if reply, ok := cannedReplies[strings.ToLower(strings.TrimSpace(query))]; ok {
		return emptyResult(reply), nil
	}
	st := p.index.Stats()
	if st.Entries == 0 {
		return emptyResult(EmptyIndexMessage), nil
	}
	if st.Dimension != p.embedder.Dimension() {
		logger.Warn("index dimension does not match embedder, ingest to rebuild",
			zap.Int("index_dimension", st.Dimension), zap.Int("embedder_dimension", p.embedder.Dimension()))
		return emptyResult(EmptyIndexMessage), nil
	}
	k = p.clampK(k)

	qvec, err := p.retriever.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := p.retriever.SearchVector(ctx, qvec, p.opts.Candidates)
	if err != nil {
		return nil, err
	}
	selected, err := p.reranker.Rerank(ctx, query, qvec, hits, k)
	if err != nil {
		return nil, fmt.Errorf("rerank with %s: %w", p.reranker.Name(), err)
	}
	logger.Debug("passages selected",
		zap.Int("candidates", len(hits)),
		zap.Int("selected", len(selected)),
		zap.String("reranker", p.reranker.Name()))
	if len(selected) == 0 {
		return emptyResult(NothingRelevantMessage), nil
	}

	citations := make([]domain.Citation, len(selected))
	for i, s := range selected {
		citations[i] = domain.Citation{ID: s.ID, DocID: s.Chunk.DocID, Source: s.Chunk.Source, Text: s.Chunk.Text}
	}
	answer, err := p.generator.Generate(ctx, SystemInstruction, BuildPrompt(query, citations))
	if err != nil {
		if !errors.Is(err, generation.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err)
		}
		logger.Error("generation failed", zap.String("generator", p.generator.Name()), zap.Error(err))
		return nil, err
	}
	return &ChatResult{Answer: answer, Citations: citations, Scored: selected}, nil
}

func (p *Pipeline) clampK(k int) int {
	if k <= 0 {
		return p.opts.DefaultK
	}
	if k > p.opts.MaxK {
		return p.opts.MaxK
	}
	return k
}

// BuildPrompt numbers the passages 1..n in rank order and appends the question.
func BuildPrompt(query string, citations []domain.Citation) string {
	var sb strings.Builder
	sb.WriteString("Context:\n\n")
	for i, c := range citations {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, c.DocID, strings.TrimSpace(c.Text))
	}
	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nAnswer using only the context above and cite passages like [1].")
	return sb.String()
}

// Stats reports the current index state.
func (p *Pipeline) Stats() vectorindex.Stats {
	return p.index.Stats()
}

// RerankerName reports the active rerank variant.
func (p *Pipeline) RerankerName() string {
	return p.reranker.Name()
}

type nopLedger struct{}

func (nopLedger) Unchanged(context.Context, string, string) (bool, error) { return false, nil }
func (nopLedger) Save(context.Context, *store.DocumentRecord) error       { return nil }
func (nopLedger) Reset(context.Context) error                             { return nil }

type nopSnapshotter struct{}

func (nopSnapshotter) Publish(context.Context, string, string) error { return nil }
func (nopSnapshotter) Restore(context.Context, string, string) (bool, error) {
	return false, nil
}
