package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
)

func buildTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func collect(t *testing.T, entries <-chan interfaces.FileEntry) []string {
	t.Helper()
	var paths []string
	for entry := range entries {
		paths = append(paths, entry.RelativePath)
	}
	sort.Strings(paths)
	return paths
}

func TestMediaSource_Enumerate(t *testing.T) {
	root := buildTree(t, map[string]string{
		"a.jpg":         "aaa",
		"sub/b.mp4":     "bbbbb",
		"sub/notes.txt": "not media",
		".hidden/c.jpg": "hidden dir",
		".thumb.png":    "hidden file",
		"dl/d.jpg.part": "partial download",
		"dl/~e.png":     "editor temp",
		"skipme/f.png":  "excluded by glob",
		"deep/ok/g.gif": "ggg",
	})

	source := NewMediaSource(arbor.NewLogger(), []string{"skipme/**"})

	entries, err := source.Enumerate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "deep/ok/g.gif", "sub/b.mp4"}, collect(t, entries))

	count, err := source.Count(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMediaSource_EnumerateReportsSizeAndMtime(t *testing.T) {
	root := buildTree(t, map[string]string{"a.jpg": "12345"})
	source := NewMediaSource(arbor.NewLogger(), nil)

	entries, err := source.Enumerate(context.Background(), root)
	require.NoError(t, err)

	entry, ok := <-entries
	require.True(t, ok)
	assert.Equal(t, "a.jpg", entry.RelativePath)
	assert.Equal(t, int64(5), entry.SizeBytes)
	assert.False(t, entry.LastModifiedUTC.IsZero())
	assert.Equal(t, filepath.Join(root, "a.jpg"), entry.FullPath)

	_, ok = <-entries
	assert.False(t, ok)
}

func TestMediaSource_BadRoot(t *testing.T) {
	source := NewMediaSource(arbor.NewLogger(), nil)

	_, err := source.Enumerate(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.jpg")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = source.Enumerate(context.Background(), file)
	assert.Error(t, err)
}

func TestMediaSource_InvalidExcludePatternIgnored(t *testing.T) {
	root := buildTree(t, map[string]string{"a.jpg": "aaa"})

	// The broken pattern is dropped; enumeration still works.
	source := NewMediaSource(arbor.NewLogger(), []string{"[broken"})
	entries, err := source.Enumerate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, collect(t, entries))
}
