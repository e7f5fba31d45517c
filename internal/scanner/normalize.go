// Package scanner provides the filesystem-facing primitives of the indexing
// engine: media enumeration, file identity resolution, content hashing, and
// relative-path normalization.
package scanner

import "strings"

// NormalizeRelativePath canonicalizes a catalog-relative path: backslashes
// become forward slashes, leading and trailing slashes are trimmed, and "."
// maps to the empty string.
func NormalizeRelativePath(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	normalized = strings.Trim(normalized, "/")
	if normalized == "." {
		return ""
	}
	return normalized
}

// PathWithinPrefix reports whether a normalized relative path lies within a
// normalized prefix: equal to it, or beginning with prefix + "/". The empty
// prefix contains only the empty path.
func PathWithinPrefix(normalized, prefix string) bool {
	return normalized == prefix || strings.HasPrefix(normalized, prefix+"/")
}

// ParentFolder returns the normalized parent directory of a relative path,
// or the empty string for root-level files.
func ParentFolder(relativePath string) string {
	normalized := NormalizeRelativePath(relativePath)
	idx := strings.LastIndex(normalized, "/")
	if idx < 0 {
		return ""
	}
	return normalized[:idx]
}
