package scanner

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/ternarybob/imago/internal/interfaces"
)

// hashWindowSize is the number of bytes hashed from each end of the file.
const hashWindowSize = 64 * 1024

// ContentHasher computes the short content fingerprint: xxhash64 over the
// file size plus the first and (for files above twice the window) last
// 64 KiB. Fast on large files and still discriminating for small ones via
// the size prefix. Not a cryptographic digest: permuting bytes outside the
// sampled windows with size unchanged does not necessarily change the hash.
type ContentHasher struct{}

// NewContentHasher creates the default content hasher.
func NewContentHasher() interfaces.ContentHasher {
	return &ContentHasher{}
}

// ComputeContentHash returns the 16-character lowercase hex fingerprint.
func (h *ContentHasher) ComputeContentHash(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	size := info.Size()

	digest := xxhash.New()

	var sizeBytes [8]byte
	binary.LittleEndian.PutUint64(sizeBytes[:], uint64(size))
	_, _ = digest.Write(sizeBytes[:])

	buf := make([]byte, hashWindowSize)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read head of %s: %w", path, err)
	}
	_, _ = digest.Write(buf[:n])

	// The head read already covers the tail of files up to two windows.
	if size > 2*hashWindowSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := f.Seek(size-hashWindowSize, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to seek tail of %s: %w", path, err)
		}
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return "", fmt.Errorf("failed to read tail of %s: %w", path, err)
		}
		_, _ = digest.Write(buf[:n])
	}

	return fmt.Sprintf("%016x", digest.Sum64()), nil
}
