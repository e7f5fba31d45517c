package scanner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestContentHasher_Deterministic(t *testing.T) {
	hasher := NewContentHasher()
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "a.bin", bytes.Repeat([]byte{0xAB}, 1000))

	first, err := hasher.ComputeContentHash(ctx, path)
	require.NoError(t, err)
	second, err := hasher.ComputeContentHash(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), first)
}

func TestContentHasher_DiscriminatesContentAndSize(t *testing.T) {
	hasher := NewContentHasher()
	ctx := context.Background()
	dir := t.TempDir()

	a := writeFile(t, dir, "a.bin", []byte("hello world"))
	b := writeFile(t, dir, "b.bin", []byte("hello earth"))
	c := writeFile(t, dir, "c.bin", []byte("hello world!"))

	hashA, err := hasher.ComputeContentHash(ctx, a)
	require.NoError(t, err)
	hashB, err := hasher.ComputeContentHash(ctx, b)
	require.NoError(t, err)
	hashC, err := hasher.ComputeContentHash(ctx, c)
	require.NoError(t, err)

	assert.NotEqual(t, hashA, hashB, "same size, different bytes within the head window")
	assert.NotEqual(t, hashA, hashC, "different size")
}

func TestContentHasher_SamplesOnlyHeadAndTail(t *testing.T) {
	hasher := NewContentHasher()
	ctx := context.Background()
	dir := t.TempDir()

	// Three windows: only the first and last 64 KiB are sampled.
	data := bytes.Repeat([]byte{0x11}, 3*hashWindowSize)
	original := writeFile(t, dir, "big.bin", data)
	hashOriginal, err := hasher.ComputeContentHash(ctx, original)
	require.NoError(t, err)

	middle := make([]byte, len(data))
	copy(middle, data)
	middle[len(data)/2] = 0xFF
	permuted := writeFile(t, dir, "permuted.bin", middle)
	hashPermuted, err := hasher.ComputeContentHash(ctx, permuted)
	require.NoError(t, err)
	assert.Equal(t, hashOriginal, hashPermuted, "bytes outside the sampled windows do not affect the hash")

	head := make([]byte, len(data))
	copy(head, data)
	head[10] = 0xFF
	changed := writeFile(t, dir, "changed.bin", head)
	hashChanged, err := hasher.ComputeContentHash(ctx, changed)
	require.NoError(t, err)
	assert.NotEqual(t, hashOriginal, hashChanged)
}

func TestContentHasher_MissingFile(t *testing.T) {
	hasher := NewContentHasher()
	_, err := hasher.ComputeContentHash(context.Background(), filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}

func TestContentHasher_CancelledContext(t *testing.T) {
	hasher := NewContentHasher()
	dir := t.TempDir()
	path := writeFile(t, dir, "a.bin", []byte("data"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hasher.ComputeContentHash(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}
