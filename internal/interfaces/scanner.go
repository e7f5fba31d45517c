package interfaces

import (
	"context"
	"time"
)

// FileEntry is one file yielded by a MediaSource enumeration.
type FileEntry struct {
	FullPath        string
	RelativePath    string
	SizeBytes       int64
	LastModifiedUTC time.Time
}

// MediaSource lazily enumerates supported media files under a root
// directory. The sequence is finite, not restartable, and its ordering is
// unspecified. Opaque whether the root is local or a mounted remote.
type MediaSource interface {
	// Enumerate yields entries on the returned channel until the tree is
	// exhausted or ctx is cancelled; the channel is closed either way.
	// Files that cannot be stat'ed, and hidden or temporary files, are
	// silently skipped.
	Enumerate(ctx context.Context, root string) (<-chan FileEntry, error)

	// Count returns the number of entries Enumerate would yield. Used for
	// progress reporting only; not authoritative.
	Count(ctx context.Context, root string) (int, error)
}

// IdentityResolver resolves a filesystem-stable (device, value) pair per
// file: device + inode on unix, volume serial + file index on Windows.
// ok is false when the platform cannot provide a stable identity; the sync
// processor then falls back to path+size+mtime equality and cannot detect
// moves.
type IdentityResolver interface {
	TryResolve(fullPath string) (device, value string, ok bool)
}

// ContentHasher computes the short content fingerprint: a 64-bit
// non-cryptographic hash over the file size plus the first and last 64 KiB,
// formatted as 16 lowercase hex digits.
type ContentHasher interface {
	ComputeContentHash(ctx context.Context, path string) (string, error)
}
