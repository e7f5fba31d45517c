package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// MediaSource walks a directory tree and yields supported media files.
// Implements interfaces.MediaSource over the local filesystem; mounted
// remotes look the same to it.
type MediaSource struct {
	logger          arbor.ILogger
	excludePatterns []string
}

// NewMediaSource creates a filesystem media source. excludePatterns are
// doublestar globs matched against normalized relative paths; invalid
// patterns are dropped with a warning.
func NewMediaSource(logger arbor.ILogger, excludePatterns []string) interfaces.MediaSource {
	valid := make([]string, 0, len(excludePatterns))
	for _, pattern := range excludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			logger.Warn().Str("pattern", pattern).Msg("Invalid exclude pattern, ignoring")
			continue
		}
		valid = append(valid, pattern)
	}
	return &MediaSource{logger: logger, excludePatterns: valid}
}

// excluded reports whether a normalized relative path matches any
// configured exclude pattern.
func (s *MediaSource) excluded(relativePath string) bool {
	for _, pattern := range s.excludePatterns {
		if matched, _ := doublestar.Match(pattern, relativePath); matched {
			return true
		}
	}
	return false
}

// Enumerate yields one FileEntry per supported media file under root. The
// walk runs on its own goroutine; the channel closes when the tree is
// exhausted or ctx is cancelled.
func (s *MediaSource) Enumerate(ctx context.Context, root string) (<-chan interfaces.FileEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("library root %s is not accessible: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", root)
	}

	out := make(chan interfaces.FileEntry, 64)

	go func() {
		defer close(out)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				// Unreadable directories and racing deletes are skipped.
				s.logger.Debug().Str("path", path).Err(err).Msg("Skipping unreadable entry")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path != root && isHiddenName(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if isHiddenName(d.Name()) || isTemporaryName(d.Name()) {
				return nil
			}
			if !models.IsSupportedMediaPath(path) {
				return nil
			}

			fileInfo, err := d.Info()
			if err != nil {
				// Stat failures skip the file silently.
				s.logger.Debug().Str("path", path).Err(err).Msg("Stat failed, skipping file")
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			relative := NormalizeRelativePath(rel)
			if s.excluded(relative) {
				return nil
			}

			entry := interfaces.FileEntry{
				FullPath:        path,
				RelativePath:    relative,
				SizeBytes:       fileInfo.Size(),
				LastModifiedUTC: fileInfo.ModTime().UTC(),
			}

			select {
			case out <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if err != nil && err != context.Canceled && ctx.Err() == nil {
			s.logger.Warn().Str("root", root).Err(err).Msg("Enumeration ended with error")
		}
	}()

	return out, nil
}

// Count walks the tree counting the entries Enumerate would yield.
func (s *MediaSource) Count(ctx context.Context, root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && isHiddenName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHiddenName(d.Name()) || isTemporaryName(d.Name()) {
			return nil
		}
		if !models.IsSupportedMediaPath(path) {
			return nil
		}
		if _, err := d.Info(); err != nil {
			return nil
		}
		if rel, err := filepath.Rel(root, path); err == nil {
			if s.excluded(NormalizeRelativePath(rel)) {
				return nil
			}
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func isHiddenName(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isTemporaryName(name string) bool {
	return strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".crdownload") ||
		strings.HasPrefix(name, "~")
}
