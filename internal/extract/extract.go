package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docqa/internal/domain"
)

// ErrUnsupported is returned for file extensions without a registered extractor.
var ErrUnsupported = errors.New("unsupported file type")

// Registry dispatches extraction by lowercased file extension.
type Registry struct {
	byExt map[string]domain.Extractor
}

// NewRegistry returns a registry with the plain text, markdown and PDF extractors.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]domain.Extractor)}
	r.Register(".txt", PlainText{})
	r.Register(".md", Markdown{})
	r.Register(".pdf", PDF{})
	return r
}

func (r *Registry) Register(ext string, e domain.Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supported reports whether path has a registered extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, ErrUnsupported)
	}
	return e.Extract(ctx, path)
}

// PlainText reads the file as UTF-8 text.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
