package interfaces

import (
	"context"

	"github.com/ternarybob/imago/internal/models"
)

// ScanProgressFunc receives scan progress. total is advisory (a fast
// pre-count); current never exceeds it by design of the caller.
type ScanProgressFunc func(current, total int)

// LibraryService owns library CRUD, ignored paths, and scan orchestration.
type LibraryService interface {
	Create(ctx context.Context, library *models.Library) error
	Get(ctx context.Context, id int64) (*models.Library, error)
	List(ctx context.Context) ([]*models.Library, error)
	Update(ctx context.Context, library *models.Library) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, id int64) (*models.LibraryStats, error)

	// AddIgnoredPath normalizes and stores the prefix, then removes every
	// existing post inside it. Returns the stored prefix and the number of
	// posts removed.
	AddIgnoredPath(ctx context.Context, libraryID int64, prefix string) (*models.LibraryIgnoredPath, int, error)
	DeleteIgnoredPath(ctx context.Context, id int64) error
	ListIgnoredPaths(ctx context.Context, libraryID int64) ([]*models.LibraryIgnoredPath, error)

	// Scan reconciles the library's on-disk state into the catalog.
	Scan(ctx context.Context, libraryID int64, progress ScanProgressFunc) (*models.ScanResult, error)

	// BrowseFolders lists the immediate subdirectories of an absolute path,
	// for the library-creation picker.
	BrowseFolders(ctx context.Context, path string) ([]string, error)
}

// PostService is the query facade over the post catalog.
type PostService interface {
	// Search parses the query string and runs it with paging.
	Search(ctx context.Context, queryString string, libraryID int64, limit, offset int) ([]*models.Post, int64, error)

	Get(ctx context.Context, id int64) (*models.Post, error)

	// Neighbors returns the previous and next post ids of postID within the
	// query's full ordering; 0 means no neighbor on that side.
	Neighbors(ctx context.Context, postID int64, queryString string, libraryID int64) (prev, next int64, err error)

	SetFavorite(ctx context.Context, postID int64, favorite bool) error

	Sources(ctx context.Context, postID int64) ([]*models.PostSource, error)
	SetSources(ctx context.Context, postID int64, urls []string) error

	// ContentPath resolves a post to its absolute on-disk path.
	ContentPath(ctx context.Context, postID int64) (string, error)

	// ThumbnailPath returns the sharded thumbnail location for a post,
	// whether or not the file exists yet.
	ThumbnailPath(ctx context.Context, postID int64) (string, error)
}

// TagService owns tags, categories and post-tag links.
type TagService interface {
	CreateTag(ctx context.Context, name string, categoryID *int64) (*models.Tag, error)
	GetTag(ctx context.Context, id int64) (*models.Tag, error)
	ListTags(ctx context.Context) ([]*models.Tag, error)
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, category *models.TagCategory) error
	ListCategories(ctx context.Context) ([]*models.TagCategory, error)
	UpdateCategory(ctx context.Context, category *models.TagCategory) error
	DeleteCategory(ctx context.Context, id int64) error

	// AddPostTag links a tag to a post by name, creating the tag when it
	// does not exist yet. Names are normalized to lowercase.
	AddPostTag(ctx context.Context, postID int64, tagName string, source models.TagSource) (*models.Tag, error)
	RemovePostTag(ctx context.Context, postID, tagID int64, source models.TagSource) error
	ListPostTags(ctx context.Context, postID int64) ([]*models.PostTag, error)

	Merge(ctx context.Context, sourceID, targetID int64) error
}

// DetectionSummary reports one duplicate-detection run.
type DetectionSummary struct {
	ExactGroupsCreated      int
	PerceptualGroupsCreated int
	CandidatesExamined      int
}

// SameFolderGroup is one partition of an unresolved group whose members
// share a parent folder. KeepPostID is the recommended survivor.
type SameFolderGroup struct {
	GroupID    int64
	LibraryID  int64
	Folder     string
	Posts      []*models.Post
	KeepPostID int64
}

// DuplicateService runs detection and the resolution operations.
type DuplicateService interface {
	Detect(ctx context.Context) (*DetectionSummary, error)

	ListGroups(ctx context.Context, resolved *bool) ([]*GroupWithEntries, error)
	GetGroup(ctx context.Context, id int64) (*GroupWithEntries, error)
	ListSameFolderGroups(ctx context.Context) ([]*SameFolderGroup, error)

	// Dismiss marks the group resolved keeping every post.
	Dismiss(ctx context.Context, groupID int64) error

	// AutoResolve keeps the highest-quality post and folds the rest into it.
	AutoResolve(ctx context.Context, groupID int64) error

	// ExcludePost removes one post from the group and the catalog, leaving
	// an exclusion record.
	ExcludePost(ctx context.Context, groupID, postID int64) error

	// DeletePostOnDisk is ExcludePost plus removal of the underlying file.
	// Only allowed for posts in same-folder partitions.
	DeletePostOnDisk(ctx context.Context, groupID, postID int64) error

	Unresolve(ctx context.Context, groupID int64) error

	// ListExcludedFiles returns the exclusion records for one library.
	ListExcludedFiles(ctx context.Context, libraryID int64) ([]*models.ExcludedFile, error)

	// RemoveExcludedFile drops an exclusion record so the next scan may
	// re-import the file.
	RemoveExcludedFile(ctx context.Context, id int64) error
}
