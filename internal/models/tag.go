package models

// TagSource records how a post-tag link came to exist. The same (post, tag)
// pair may appear at most once per source.
type TagSource string

const (
	TagSourceManual     TagSource = "manual"
	TagSourceFolder     TagSource = "folder"
	TagSourceAutoTagger TagSource = "auto_tagger"
)

// Tag names are lowercase and unique across the whole catalog. PostCount is
// derived and maintained by the tag storage, never written directly.
type Tag struct {
	ID            int64  `json:"id"`
	Name          string `json:"name" validate:"required,min=1,max=200"`
	TagCategoryID *int64 `json:"tag_category_id,omitempty"`
	PostCount     int64  `json:"post_count"`
}

// TagCategory groups tags for display; Order controls sidebar ordering.
type TagCategory struct {
	ID    int64  `json:"id"`
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

// PostTag is a single post-tag link.
type PostTag struct {
	PostID int64     `json:"post_id"`
	TagID  int64     `json:"tag_id"`
	Source TagSource `json:"source"`
}
