package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/services/posts"
	"golang.org/x/sync/errgroup"
)

// libraryRoots preloads the id -> root path map the enrichment jobs use to
// resolve post paths.
func libraryRoots(ctx context.Context, storage interfaces.StorageManager) (map[int64]string, error) {
	libraries, err := storage.Libraries().ListLibraries(ctx)
	if err != nil {
		return nil, err
	}
	roots := make(map[int64]string, len(libraries))
	for _, library := range libraries {
		roots[library.ID] = library.RootPath
	}
	return roots, nil
}

func postAbsPath(roots map[int64]string, post *models.Post) (string, bool) {
	root, ok := roots[post.LibraryID]
	if !ok {
		return "", false
	}
	return filepath.Join(root, filepath.FromSlash(post.RelativePath)), true
}

// ExtractMetadataJob fills width and height from the media backend.
type ExtractMetadataJob struct {
	storage     interfaces.StorageManager
	backend     interfaces.MediaBackend
	logger      arbor.ILogger
	parallelism int
}

func NewExtractMetadataJob(storage interfaces.StorageManager, backend interfaces.MediaBackend, logger arbor.ILogger, parallelism int) *ExtractMetadataJob {
	if parallelism < 1 {
		parallelism = 1
	}
	return &ExtractMetadataJob{storage: storage, backend: backend, logger: logger, parallelism: parallelism}
}

func (j *ExtractMetadataJob) Key() string           { return "extract-metadata" }
func (j *ExtractMetadataJob) Name() string          { return "Extract Metadata" }
func (j *ExtractMetadataJob) Description() string   { return "Read dimensions for posts missing them" }
func (j *ExtractMetadataJob) DisplayOrder() int     { return 20 }
func (j *ExtractMetadataJob) SupportsAllMode() bool { return true }

func (j *ExtractMetadataJob) Execute(ctx context.Context, reporter interfaces.JobReporter, mode models.JobMode) error {
	posts, err := j.storage.Posts().ListPostsNeedingMetadata(ctx, mode == models.JobModeAll)
	if err != nil {
		return err
	}
	roots, err := libraryRoots(ctx, j.storage)
	if err != nil {
		return err
	}

	reporter.SetActivity("Extracting metadata")
	var processed, failed atomic.Int64
	total := int64(len(posts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(j.parallelism)
	for _, post := range posts {
		post := post
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			defer reporter.SetProgress(processed.Add(1), total)

			path, ok := postAbsPath(roots, post)
			if !ok {
				failed.Add(1)
				return nil
			}
			meta, err := j.backend.GetMetadata(groupCtx, path)
			if err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Str("path", path).Msg("Metadata extraction failed")
				return nil
			}
			if err := j.storage.Posts().UpdateDimensions(groupCtx, post.ID, meta.Width, meta.Height); err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Int64("post_id", post.ID).Msg("Failed to save dimensions")
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	reporter.SetFinalText(fmt.Sprintf("Processed %d posts, %d failed.", len(posts), failed.Load()))
	return nil
}

// ComputePerceptualHashesJob computes 256-bit perceptual hashes for image
// posts. Videos are never hashed.
type ComputePerceptualHashesJob struct {
	storage     interfaces.StorageManager
	backend     interfaces.MediaBackend
	logger      arbor.ILogger
	parallelism int
}

func NewComputePerceptualHashesJob(storage interfaces.StorageManager, backend interfaces.MediaBackend, logger arbor.ILogger, parallelism int) *ComputePerceptualHashesJob {
	if parallelism < 1 {
		parallelism = 1
	}
	return &ComputePerceptualHashesJob{storage: storage, backend: backend, logger: logger, parallelism: parallelism}
}

func (j *ComputePerceptualHashesJob) Key() string           { return "compute-perceptual-hashes" }
func (j *ComputePerceptualHashesJob) Name() string          { return "Compute Perceptual Hashes" }
func (j *ComputePerceptualHashesJob) Description() string   { return "Hash image posts for similarity detection" }
func (j *ComputePerceptualHashesJob) DisplayOrder() int     { return 40 }
func (j *ComputePerceptualHashesJob) SupportsAllMode() bool { return true }

func (j *ComputePerceptualHashesJob) Execute(ctx context.Context, reporter interfaces.JobReporter, mode models.JobMode) error {
	posts, err := j.storage.Posts().ListImagePostsNeedingPhash(ctx, mode == models.JobModeAll)
	if err != nil {
		return err
	}
	roots, err := libraryRoots(ctx, j.storage)
	if err != nil {
		return err
	}

	reporter.SetActivity("Computing perceptual hashes")
	var processed, failed atomic.Int64
	total := int64(len(posts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(j.parallelism)
	for _, post := range posts {
		post := post
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			defer reporter.SetProgress(processed.Add(1), total)

			path, ok := postAbsPath(roots, post)
			if !ok {
				failed.Add(1)
				return nil
			}
			hash, err := j.backend.ComputePerceptualHash(groupCtx, path)
			if err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Str("path", path).Msg("Perceptual hash failed")
				return nil
			}
			if err := j.storage.Posts().UpdatePerceptualHash(groupCtx, post.ID, hash); err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Int64("post_id", post.ID).Msg("Failed to save perceptual hash")
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	reporter.SetFinalText(fmt.Sprintf("Hashed %d posts, %d failed.", len(posts), failed.Load()))
	return nil
}

// GenerateThumbnailsJob renders the sharded thumbnail file for each post.
// In missing mode posts whose thumbnail already exists on disk are skipped.
type GenerateThumbnailsJob struct {
	storage     interfaces.StorageManager
	backend     interfaces.MediaBackend
	logger      arbor.ILogger
	thumbRoot   string
	maxEdge     int
	parallelism int
}

func NewGenerateThumbnailsJob(storage interfaces.StorageManager, backend interfaces.MediaBackend, logger arbor.ILogger, thumbRoot string, maxEdge, parallelism int) *GenerateThumbnailsJob {
	if parallelism < 1 {
		parallelism = 1
	}
	return &GenerateThumbnailsJob{
		storage:     storage,
		backend:     backend,
		logger:      logger,
		thumbRoot:   thumbRoot,
		maxEdge:     maxEdge,
		parallelism: parallelism,
	}
}

func (j *GenerateThumbnailsJob) Key() string           { return "generate-thumbnails" }
func (j *GenerateThumbnailsJob) Name() string          { return "Generate Thumbnails" }
func (j *GenerateThumbnailsJob) Description() string   { return "Render thumbnails into the sharded cache" }
func (j *GenerateThumbnailsJob) DisplayOrder() int     { return 30 }
func (j *GenerateThumbnailsJob) SupportsAllMode() bool { return true }

func (j *GenerateThumbnailsJob) Execute(ctx context.Context, reporter interfaces.JobReporter, mode models.JobMode) error {
	worklist, err := j.storage.Posts().ListPostsNeedingMetadata(ctx, true)
	if err != nil {
		return err
	}
	roots, err := libraryRoots(ctx, j.storage)
	if err != nil {
		return err
	}

	reporter.SetActivity("Generating thumbnails")
	var processed, generated, failed atomic.Int64
	total := int64(len(worklist))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(j.parallelism)
	for _, post := range worklist {
		post := post
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			defer reporter.SetProgress(processed.Add(1), total)

			dst := posts.ThumbnailFilePath(j.thumbRoot, post.LibraryID, post.ContentHash)
			if mode == models.JobModeMissing {
				if _, err := os.Stat(dst); err == nil {
					return nil
				}
			}

			src, ok := postAbsPath(roots, post)
			if !ok {
				failed.Add(1)
				return nil
			}
			if err := j.backend.GenerateThumbnail(groupCtx, src, dst, j.maxEdge); err != nil {
				failed.Add(1)
				j.logger.Warn().Err(err).Str("path", src).Msg("Thumbnail generation failed")
				return nil
			}
			generated.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	reporter.SetFinalText(fmt.Sprintf("Generated %d thumbnails, %d failed.", generated.Load(), failed.Load()))
	return nil
}
