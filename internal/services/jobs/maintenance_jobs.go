package jobs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// FindDuplicatesJob runs the duplicate detector.
type FindDuplicatesJob struct {
	duplicates interfaces.DuplicateService
	logger     arbor.ILogger
}

func NewFindDuplicatesJob(duplicates interfaces.DuplicateService, logger arbor.ILogger) *FindDuplicatesJob {
	return &FindDuplicatesJob{duplicates: duplicates, logger: logger}
}

func (j *FindDuplicatesJob) Key() string           { return "find-duplicates" }
func (j *FindDuplicatesJob) Name() string          { return "Find Duplicates" }
func (j *FindDuplicatesJob) Description() string   { return "Detect exact and perceptual duplicate posts" }
func (j *FindDuplicatesJob) DisplayOrder() int     { return 50 }
func (j *FindDuplicatesJob) SupportsAllMode() bool { return false }

func (j *FindDuplicatesJob) Execute(ctx context.Context, reporter interfaces.JobReporter, _ models.JobMode) error {
	reporter.SetActivity("Detecting duplicates")
	summary, err := j.duplicates.Detect(ctx)
	if err != nil {
		return err
	}
	reporter.SetFinalText(fmt.Sprintf("Examined %d posts: %d exact and %d perceptual groups created.",
		summary.CandidatesExamined, summary.ExactGroupsCreated, summary.PerceptualGroupsCreated))
	return nil
}

// CleanupThumbnailsJob deletes thumbnail files no post refers to anymore.
type CleanupThumbnailsJob struct {
	storage   interfaces.StorageManager
	logger    arbor.ILogger
	thumbRoot string
}

func NewCleanupThumbnailsJob(storage interfaces.StorageManager, logger arbor.ILogger, thumbRoot string) *CleanupThumbnailsJob {
	return &CleanupThumbnailsJob{storage: storage, logger: logger, thumbRoot: thumbRoot}
}

func (j *CleanupThumbnailsJob) Key() string           { return "cleanup-thumbnails" }
func (j *CleanupThumbnailsJob) Name() string          { return "Clean Up Thumbnails" }
func (j *CleanupThumbnailsJob) Description() string   { return "Remove thumbnails for posts that no longer exist" }
func (j *CleanupThumbnailsJob) DisplayOrder() int     { return 60 }
func (j *CleanupThumbnailsJob) SupportsAllMode() bool { return false }

func (j *CleanupThumbnailsJob) Execute(ctx context.Context, reporter interfaces.JobReporter, _ models.JobMode) error {
	refs, err := j.storage.Posts().ListThumbRefs(ctx)
	if err != nil {
		return err
	}
	known := make(map[interfaces.ThumbRef]struct{}, len(refs))
	for _, ref := range refs {
		known[ref] = struct{}{}
	}

	reporter.SetActivity("Sweeping thumbnail cache")
	var scanned, removed, failed int

	err = filepath.WalkDir(j.thumbRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		scanned++

		ref, ok := j.parseThumbPath(path)
		if ok {
			if _, keep := known[ref]; keep {
				return nil
			}
		}
		// Anything unparseable or unreferenced is an orphan.
		if err := os.Remove(path); err != nil {
			failed++
			j.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove orphaned thumbnail")
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return err
	}

	reporter.SetFinalText(fmt.Sprintf("Scanned %d thumbnails: %d removed, %d failed.", scanned, removed, failed))
	return nil
}

// parseThumbPath recovers the (libraryID, contentHash) pair from a sharded
// thumbnail path.
func (j *CleanupThumbnailsJob) parseThumbPath(path string) (interfaces.ThumbRef, bool) {
	rel, err := filepath.Rel(j.thumbRoot, path)
	if err != nil {
		return interfaces.ThumbRef{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 || !strings.HasSuffix(parts[3], ".jpg") {
		return interfaces.ThumbRef{}, false
	}
	libraryID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return interfaces.ThumbRef{}, false
	}
	hash := strings.TrimSuffix(parts[3], ".jpg")
	if hash == "" {
		return interfaces.ThumbRef{}, false
	}
	return interfaces.ThumbRef{LibraryID: libraryID, ContentHash: hash}, true
}
