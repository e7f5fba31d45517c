package models

import "time"

// Post is one indexed media file inside a library.
//
// ContentHash is always populated at creation time; Width, Height and
// PerceptualHash stay zero/empty until the enrichment jobs fill them in.
// FileIdentityDevice/FileIdentityValue carry the filesystem-stable identity
// pair when the platform provides one, and identify the same filesystem
// object across renames.
type Post struct {
	ID               int64     `json:"id"`
	LibraryID        int64     `json:"library_id"`
	RelativePath     string    `json:"relative_path"`
	ContentHash      string    `json:"content_hash"`
	SizeBytes        int64     `json:"size_bytes"`
	FileModifiedDate time.Time `json:"file_modified_date"`
	ImportDate       time.Time `json:"import_date"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	ContentType      string    `json:"content_type"`
	PerceptualHash   string    `json:"perceptual_hash,omitempty"`
	IsFavorite       bool      `json:"is_favorite"`
	IdentityDevice   string    `json:"file_identity_device,omitempty"`
	IdentityValue    string    `json:"file_identity_value,omitempty"`
}

// HasIdentity reports whether the post carries a filesystem identity pair.
func (p *Post) HasIdentity() bool {
	return p.IdentityDevice != "" && p.IdentityValue != ""
}

// IdentityKey returns the composite lookup key for the identity maps used
// by the sync processor. Only meaningful when HasIdentity is true.
func (p *Post) IdentityKey() string {
	return p.IdentityDevice + "|" + p.IdentityValue
}

// PostSource is an ordered external URL attached to a post. URL is unique
// per post; Order preserves the user-declared ordering.
type PostSource struct {
	PostID int64  `json:"post_id"`
	URL    string `json:"url" validate:"required,max=2000"`
	Order  int    `json:"order"`
}
