package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	require.NoError(t, r.WriteTextFile("nested/note.txt", "line1\nline2\nline3"))

	content, err := r.ReadTextFile("nested/note.txt", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "line1\nline2\nline3", content)
}

func TestReadTextFileAppliesLineAndLimit(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)
	require.NoError(t, r.WriteTextFile("f.txt", "a\nb\nc\nd\ne"))

	line, limit := 2, 2
	content, err := r.ReadTextFile("f.txt", &line, &limit)
	require.NoError(t, err)
	require.Equal(t, "b\nc", content)
}

func TestResolveRejectsTraversalOutsideRoot(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)

	_, err := r.ReadTextFile(filepath.Join("..", "..", "etc", "passwd"), nil, nil)
	require.Error(t, err)
}

func TestResolveAllowsAbsolutePathInsideRoot(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root)
	require.NoError(t, r.WriteTextFile("abs.txt", "hi"))

	content, err := r.ReadTextFile(filepath.Join(root, "abs.txt"), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "hi", content)
}
