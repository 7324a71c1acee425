package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"docqa/internal/domain"
)

const (
	// DefaultEncoding is the byte-pair encoding used for chunking and token budgets.
	DefaultEncoding = "cl100k_base"
	// WordsTokenizer names the whitespace tokenizer.
	WordsTokenizer = "words"
)

var loaderOnce sync.Once

// NewTokenizer returns the tokenizer registered under name.
// Any name other than "words" is treated as a tiktoken encoding.
func NewTokenizer(name string) (domain.Tokenizer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == WordsTokenizer {
		return NewWordTokenizer(), nil
	}
	if name == "" {
		name = DefaultEncoding
	}
	tok, err := NewTiktokenTokenizer(name)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// TiktokenTokenizer wraps a tiktoken BPE encoding. BPE ranks are loaded from the
// embedded offline loader so no network access is needed at runtime.
type TiktokenTokenizer struct {
	name string
	enc  *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{name: encoding, enc: enc}, nil
}

func (t *TiktokenTokenizer) Name() string { return t.name }

func (t *TiktokenTokenizer) Encode(text string) []int { return t.enc.Encode(text, nil, nil) }

func (t *TiktokenTokenizer) Decode(tokens []int) string { return t.enc.Decode(tokens) }

// WordTokenizer treats every whitespace-separated word as one token.
// Ids are assigned on first sight and are stable for the tokenizer's lifetime.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

func (t *WordTokenizer) Name() string { return WordsTokenizer }

func (t *WordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := t.ids[f]
		if !ok {
			id = len(t.words)
			t.ids[f] = id
			t.words = append(t.words, f)
		}
		out[i] = id
	}
	return out
}

func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(t.words) {
			parts = append(parts, t.words[id])
		}
	}
	return strings.Join(parts, " ")
}
