package models

// SortField enumerates the sortable post-list columns.
type SortField string

const (
	SortFileModifiedDate SortField = "file-modified-date"
	SortImportDate       SortField = "import-date"
	SortTagCount         SortField = "tag-count"
	SortWidth            SortField = "width"
	SortHeight           SortField = "height"
	SortSizeBytes        SortField = "size-bytes"
	SortID               SortField = "id"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// TagCountOp is the comparison operator of a tag-count: directive.
type TagCountOp string

const (
	TagCountEq TagCountOp = "="
	TagCountGt TagCountOp = ">"
	TagCountGe TagCountOp = ">="
	TagCountLt TagCountOp = "<"
	TagCountLe TagCountOp = "<="
)

// TagCountFilter is a parsed tag-count:<op><int> directive.
type TagCountFilter struct {
	Op    TagCountOp
	Value int
}

// PostQuery is the parsed form of a post-list query string. Zero value plus
// the default sort equals the empty query.
type PostQuery struct {
	IncludedTags []string
	ExcludedTags []string

	IncludedTypes []MediaKind
	ExcludedTypes []MediaKind

	TagCount *TagCountFilter
	Favorite *bool

	// Filename globs support * and ?.
	FilenameIncludes []string
	FilenameExcludes []string

	SortField     SortField
	SortDirection SortDirection

	// Optional library scope; zero means all libraries.
	LibraryID int64
}

// DefaultPostQuery returns the query produced by parsing the empty string.
func DefaultPostQuery() *PostQuery {
	return &PostQuery{
		SortField:     SortFileModifiedDate,
		SortDirection: SortDesc,
	}
}
