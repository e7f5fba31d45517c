package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRelativePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/b/c.jpg", "a/b/c.jpg"},
		{`a\b\c.jpg`, "a/b/c.jpg"},
		{"/a/b/", "a/b"},
		{".", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRelativePath(tt.in), tt.in)
	}
}

func TestPathWithinPrefix(t *testing.T) {
	assert.True(t, PathWithinPrefix("clips/b.mp4", "clips"))
	assert.True(t, PathWithinPrefix("clips", "clips"))
	assert.False(t, PathWithinPrefix("clips2/b.mp4", "clips"))
	assert.False(t, PathWithinPrefix("other/clips/b.mp4", "clips"))

	// The empty prefix contains only the empty path.
	assert.True(t, PathWithinPrefix("", ""))
	assert.False(t, PathWithinPrefix("anything/at/all.jpg", ""))
}

func TestParentFolder(t *testing.T) {
	assert.Equal(t, "a/b", ParentFolder("a/b/c.jpg"))
	assert.Equal(t, "", ParentFolder("c.jpg"))
	assert.Equal(t, "a", ParentFolder(`a\c.jpg`))
}
