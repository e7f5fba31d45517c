//go:build unix

package scanner

import (
	"os"
	"strconv"
	"syscall"

	"github.com/ternarybob/imago/internal/interfaces"
)

// IdentityResolver resolves device + inode pairs on unix platforms. The
// pair is stable across renames within one filesystem, which is what lets
// the sync processor detect moves.
type IdentityResolver struct{}

// NewIdentityResolver creates the platform identity resolver.
func NewIdentityResolver() interfaces.IdentityResolver {
	return &IdentityResolver{}
}

// TryResolve opens the file once and queries its stat structure.
func (r *IdentityResolver) TryResolve(fullPath string) (string, string, bool) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", "", false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", "", false
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", false
	}

	device := strconv.FormatUint(uint64(stat.Dev), 10)
	value := strconv.FormatUint(stat.Ino, 10)
	return device, value, true
}
