package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/imago/internal/models"
)

// PostScanInfo is the slim per-post projection the sync processor preloads
// before streaming the disk. Kept small: one row per post for the whole
// library lives in memory for the duration of a scan.
type PostScanInfo struct {
	ID               int64
	RelativePath     string
	ContentHash      string
	SizeBytes        int64
	FileModifiedDate time.Time
	IdentityDevice   string
	IdentityValue    string
}

// HasIdentity reports whether the preloaded record carries an identity pair.
func (p *PostScanInfo) HasIdentity() bool {
	return p.IdentityDevice != "" && p.IdentityValue != ""
}

// IdentityKey is the composite key used by the existingByIdentity map.
func (p *PostScanInfo) IdentityKey() string {
	return p.IdentityDevice + "|" + p.IdentityValue
}

// ScanUpdate is an update ticket emitted by the classification phase for an
// existing post whose on-disk state changed.
type ScanUpdate struct {
	PostID           int64
	ContentHash      string
	SizeBytes        int64
	FileModifiedDate time.Time
	IdentityDevice   string
	IdentityValue    string
	HashChanged      bool
	IdentityOnly     bool
}

// ScanMove is a move ticket for a post whose file identity was found at a
// new relative path.
type ScanMove struct {
	PostID           int64
	NewRelativePath  string
	ContentHash      string
	SizeBytes        int64
	FileModifiedDate time.Time
	IdentityDevice   string
	IdentityValue    string
}

// ThumbRef identifies one expected thumbnail file.
type ThumbRef struct {
	LibraryID   int64
	ContentHash string
}

// LibraryStorage persists libraries and their ignored-path prefixes.
type LibraryStorage interface {
	CreateLibrary(ctx context.Context, library *models.Library) error
	GetLibrary(ctx context.Context, id int64) (*models.Library, error)
	ListLibraries(ctx context.Context) ([]*models.Library, error)
	UpdateLibrary(ctx context.Context, library *models.Library) error

	// DeleteLibrary cascades to posts, post-tag links, post sources,
	// duplicate-group entries and ignored paths.
	DeleteLibrary(ctx context.Context, id int64) error

	GetLibraryStats(ctx context.Context, id int64) (*models.LibraryStats, error)

	AddIgnoredPath(ctx context.Context, libraryID int64, prefix string) (*models.LibraryIgnoredPath, error)
	DeleteIgnoredPath(ctx context.Context, id int64) error
	ListIgnoredPaths(ctx context.Context, libraryID int64) ([]*models.LibraryIgnoredPath, error)
}

// PostStorage persists posts and their sources.
type PostStorage interface {
	// InsertPosts saves a batch of new posts in one transaction.
	InsertPosts(ctx context.Context, posts []*models.Post) error

	GetPost(ctx context.Context, id int64) (*models.Post, error)
	GetPostByPath(ctx context.Context, libraryID int64, relativePath string) (*models.Post, error)
	GetPostsByHash(ctx context.Context, libraryID int64, contentHash string) ([]*models.Post, error)

	// ListScanInfo returns the preload projection for one library,
	// snapshot-read with no locks held afterwards.
	ListScanInfo(ctx context.Context, libraryID int64) ([]*PostScanInfo, error)

	// ApplyScanChanges applies update and move tickets in a single
	// transaction. Updates with HashChanged reset width, height and
	// perceptual hash; moves recompute the content type from the new
	// extension.
	ApplyScanChanges(ctx context.Context, updates []ScanUpdate, moves []ScanMove) error

	// DeletePosts removes posts by id in one transaction, cascading to
	// links, sources and group entries, and drops duplicate groups left
	// empty afterwards.
	DeletePosts(ctx context.Context, ids []int64) error

	SetFavorite(ctx context.Context, postID int64, favorite bool) error
	UpdateDimensions(ctx context.Context, postID int64, width, height int) error
	UpdatePerceptualHash(ctx context.Context, postID int64, hash string) error

	// SearchPosts runs a parsed post-list query with paging.
	SearchPosts(ctx context.Context, query *models.PostQuery, limit, offset int) ([]*models.Post, int64, error)

	// ListPostIDs returns every id the query matches, in query order.
	// Used for previous/next navigation.
	ListPostIDs(ctx context.Context, query *models.PostQuery) ([]int64, error)

	// Enrichment work lists. When all is false, only posts still missing
	// the job's output are returned.
	ListPostsNeedingMetadata(ctx context.Context, all bool) ([]*models.Post, error)
	ListImagePostsNeedingPhash(ctx context.Context, all bool) ([]*models.Post, error)
	ListThumbRefs(ctx context.Context) ([]ThumbRef, error)

	ListPostSources(ctx context.Context, postID int64) ([]*models.PostSource, error)
	SetPostSources(ctx context.Context, postID int64, urls []string) error
}

// TagStorage persists tags, categories, and post-tag links.
type TagStorage interface {
	CreateTag(ctx context.Context, tag *models.Tag) error
	GetTag(ctx context.Context, id int64) (*models.Tag, error)
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	ListTags(ctx context.Context) ([]*models.Tag, error)
	UpdateTag(ctx context.Context, tag *models.Tag) error
	DeleteTag(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, category *models.TagCategory) error
	ListCategories(ctx context.Context) ([]*models.TagCategory, error)
	UpdateCategory(ctx context.Context, category *models.TagCategory) error
	DeleteCategory(ctx context.Context, id int64) error

	// AddPostTag inserts one link. Re-adding an existing (post, tag, source)
	// is an idempotent success, except Manual over Manual which returns
	// ErrConflict.
	AddPostTag(ctx context.Context, link *models.PostTag) error
	RemovePostTag(ctx context.Context, postID, tagID int64, source models.TagSource) error
	ListPostTags(ctx context.Context, postID int64) ([]*models.PostTag, error)

	// MergeTags moves every link from source onto target (dedup by post and
	// source), deletes the source tag, and inherits the source's category
	// when the target has none. Atomic.
	MergeTags(ctx context.Context, sourceID, targetID int64) error

	// InheritTagLinks copies non-folder links between same-hash posts of one
	// library onto the freshly added posts named by relative path. Returns
	// the number of links copied.
	InheritTagLinks(ctx context.Context, libraryID int64, relativePaths []string) (int, error)
}

// DuplicateCandidate is the detector's input projection.
type DuplicateCandidate struct {
	PostID           int64
	LibraryID        int64
	RelativePath     string
	ContentHash      string
	PerceptualHash   string
	Width            int
	Height           int
	SizeBytes        int64
	FileModifiedDate time.Time
}

// GroupWithEntries is a duplicate group together with its member posts.
type GroupWithEntries struct {
	Group models.DuplicateGroup
	Posts []*models.Post
}

// DuplicateStorage persists duplicate groups and runs the atomic resolution
// operations.
type DuplicateStorage interface {
	// ListCandidates returns every post eligible for detection; posts whose
	// (library, path) matches an excluded file are filtered out.
	ListCandidates(ctx context.Context) ([]*DuplicateCandidate, error)

	ListGroups(ctx context.Context, resolved *bool) ([]*GroupWithEntries, error)
	GetGroup(ctx context.Context, id int64) (*GroupWithEntries, error)
	CreateGroup(ctx context.Context, groupType models.DuplicateGroupType, similarity int, postIDs []int64) (int64, error)
	SetResolved(ctx context.Context, groupID int64, resolved bool) error

	// ResolveKeep merges the losers' tag links and sources into the
	// survivor, records an excluded file per loser, deletes the losers, and
	// marks the group resolved. One transaction.
	ResolveKeep(ctx context.Context, groupID, survivorID int64, loserIDs []int64, reason string) error

	// ExcludeEntry removes one post from the group (exclude + delete); when
	// fewer than two entries remain the group is auto-resolved. Returns the
	// number of entries remaining.
	ExcludeEntry(ctx context.Context, groupID, postID int64, reason string) (int, error)
}

// ExcludedFileStorage persists scanner exclusions.
type ExcludedFileStorage interface {
	AddExcludedFile(ctx context.Context, file *models.ExcludedFile) error
	ListExcludedFiles(ctx context.Context, libraryID int64) ([]*models.ExcludedFile, error)
	ListExcludedPaths(ctx context.Context, libraryID int64) ([]string, error)
	DeleteExcludedFile(ctx context.Context, id int64) error
}

// JobStorage persists the append-only job execution history.
type JobStorage interface {
	InsertExecution(ctx context.Context, exec *models.JobExecution) error
	UpdateExecution(ctx context.Context, exec *models.JobExecution) error
	GetExecution(ctx context.Context, id string) (*models.JobExecution, error)

	// ListExecutions pages history ordered by start time descending.
	ListExecutions(ctx context.Context, limit, offset int) ([]*models.JobExecution, int64, error)
}

// ScheduleStorage persists the cron table.
type ScheduleStorage interface {
	ListSchedules(ctx context.Context) ([]*models.ScheduledJob, error)
	GetScheduleByJobName(ctx context.Context, jobName string) (*models.ScheduledJob, error)
	CreateSchedule(ctx context.Context, schedule *models.ScheduledJob) error
	UpdateSchedule(ctx context.Context, schedule *models.ScheduledJob) error
	DeleteSchedule(ctx context.Context, id int64) error

	// ListDue returns enabled schedules with nextRun <= now or nextRun NULL.
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledJob, error)
}

// LogStorage persists application log entries.
type LogStorage interface {
	InsertLogEntries(ctx context.Context, entries []*models.AppLogEntry) error
	ListLogEntries(ctx context.Context, limit int) ([]*models.AppLogEntry, error)
}

// StorageManager aggregates the per-entity storages over one catalog
// database and owns the connection lifecycle.
type StorageManager interface {
	Libraries() LibraryStorage
	Posts() PostStorage
	Tags() TagStorage
	Duplicates() DuplicateStorage
	ExcludedFiles() ExcludedFileStorage
	Jobs() JobStorage
	Schedules() ScheduleStorage
	Logs() LogStorage
	Close() error
}
