package blocklist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContains(t *testing.T) {
	l := Default()
	cases := map[string]bool{
		"docs/index.md":        true,
		"docs/INDEX.TXT":       true,
		"Glossary.pdf":         true,
		"a/b/sources.txt":      true,
		"docs/indexing.md":     false,
		"docs/guide.md":        false,
		"sources/guide.md":     false,
		"/abs/path/index":      true,
		"notes/glossary-2.txt": false,
	}
	for path, want := range cases {
		require.Equal(t, want, l.Contains(path), path)
	}
}

func TestEmptyList(t *testing.T) {
	require.False(t, New(nil).Contains("index.md"))
	require.False(t, New([]string{" ", ""}).Contains("index.md"))
	var l *List
	require.False(t, l.Contains("index.md"))
}
