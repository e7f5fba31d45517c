//go:build !unix

package scanner

import (
	"github.com/ternarybob/imago/internal/interfaces"
)

// IdentityResolver on platforms without a stable file identity primitive.
// The sync processor falls back to path+size+mtime equality and cannot
// detect moves.
type IdentityResolver struct{}

// NewIdentityResolver creates the platform identity resolver.
func NewIdentityResolver() interfaces.IdentityResolver {
	return &IdentityResolver{}
}

// TryResolve always reports no identity on this platform.
func (r *IdentityResolver) TryResolve(fullPath string) (string, string, bool) {
	return "", "", false
}
