package chunker

import (
	"errors"
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// ErrInvalidWindow is returned for window settings that would never advance.
var ErrInvalidWindow = errors.New("invalid chunk window")

// TokenChunker splits text into overlapping windows of a fixed number of tokens.
type TokenChunker struct {
	tokenizer domain.Tokenizer
	chunkSize int
	overlap   int
}

// NewTokenChunker validates the window and returns a chunker. overlap must be
// in [0, chunkSize) so that every window starts past the previous one.
func NewTokenChunker(tokenizer domain.Tokenizer, chunkSize, overlap int) (*TokenChunker, error) {
	if tokenizer == nil {
		return nil, errors.New("tokenizer is required")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidWindow, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidWindow, overlap, chunkSize)
	}
	return &TokenChunker{tokenizer: tokenizer, chunkSize: chunkSize, overlap: overlap}, nil
}

func (c *TokenChunker) Tokenizer() domain.Tokenizer { return c.tokenizer }

// Chunk returns the decoded text of each token window. Empty text yields no chunks.
func (c *TokenChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	tokens := c.tokenizer.Encode(text)
	var chunks []string
	for _, w := range c.windows(len(tokens)) {
		piece := c.tokenizer.Decode(tokens[w[0]:w[1]])
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, piece)
	}
	return chunks
}

// windows returns the [start, end) token ranges for a sequence of n tokens.
func (c *TokenChunker) windows(n int) [][2]int {
	var out [][2]int
	start := 0
	for start < n {
		end := start + c.chunkSize
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
		if end == n {
			break
		}
		start = end - c.overlap
	}
	return out
}
