package blocklist

import (
	"path/filepath"
	"strings"
)

// DefaultStems are auxiliary files that are never ingested or cited.
var DefaultStems = []string{"index", "glossary", "sources"}

// List matches file names by their lowercased basename stem.
type List struct {
	stems map[string]struct{}
}

// New builds a list from stems such as "index" (matching index.md, INDEX.txt, ...).
func New(stems []string) *List {
	l := &List{stems: make(map[string]struct{}, len(stems))}
	for _, s := range stems {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		l.stems[s] = struct{}{}
	}
	return l
}

func Default() *List { return New(DefaultStems) }

// Contains reports whether the basename of path is blocked.
func (l *List) Contains(path string) bool {
	if l == nil || len(l.stems) == 0 {
		return false
	}
	base := strings.ToLower(filepath.Base(path))
	if _, ok := l.stems[base]; ok {
		return true
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	_, ok := l.stems[stem]
	return ok
}
