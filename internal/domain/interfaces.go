package domain

import "context"

// Chunk is a bounded token window of a source document, the unit of indexing and citation.
type Chunk struct {
	DocID  string `json:"doc_id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// ScoredID pairs an index id with a relevance score.
type ScoredID struct {
	ID    int
	Score float64
}

// ScoredChunk is a retrieved chunk with its index id and similarity score.
type ScoredChunk struct {
	ID    int
	Score float64
	Chunk Chunk
}

// Hit is a search result carrying a copy of the stored vector.
type Hit struct {
	ScoredChunk
	Vector []float32
}

// Citation binds a supporting passage back to its source document.
type Citation struct {
	ID     int    `json:"id"`
	DocID  string `json:"doc_id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Embedder maps texts to fixed-dimension L2-normalized vectors.
type Embedder interface {
	ModelName() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Tokenizer converts text to token ids and back.
type Tokenizer interface {
	Name() string
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunker splits document text into token-bounded windows.
type Chunker interface {
	Chunk(text string) []string
}

// PairScorer scores a (query, passage) pair jointly.
type PairScorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// Generator composes an answer from a system instruction and a user prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, system, user string) (string, error)
}

// Extractor pulls plain text out of a file on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}
