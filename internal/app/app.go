package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/ingest"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/logs"
	"github.com/ternarybob/imago/internal/media"
	"github.com/ternarybob/imago/internal/scanner"
	"github.com/ternarybob/imago/internal/services/duplicates"
	"github.com/ternarybob/imago/internal/services/library"
	"github.com/ternarybob/imago/internal/services/posts"
	"github.com/ternarybob/imago/internal/services/scheduler"
	"github.com/ternarybob/imago/internal/services/tags"
	"github.com/ternarybob/imago/internal/storage/sqlite"

	jobsvc "github.com/ternarybob/imago/internal/services/jobs"
)

const shutdownTimeout = 30 * time.Second

// App wires the storage layer, the domain services, the job runner and the
// scheduler into one process.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage     interfaces.StorageManager
	LogConsumer *logs.Consumer

	LibraryService   interfaces.LibraryService
	PostService      interfaces.PostService
	TagService       interfaces.TagService
	DuplicateService interfaces.DuplicateService
	JobService       *jobsvc.Service
	Scheduler        *scheduler.Service
}

// New builds the full service graph and starts the background components
// (log consumer, scheduler).
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	storage, err := sqlite.NewManager(logger, &cfg.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.Storage = storage

	// Arbor's context channel drains into the catalog's app-log table.
	consumer := logs.NewConsumer(storage.Logs(), logger, cfg.Logging.MinStoreLevel)
	if err := consumer.Start(); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to start log consumer: %w", err)
	}
	logger.SetChannel("context", consumer.GetChannel())
	a.LogConsumer = consumer

	a.initServices()

	if err := a.Scheduler.Start(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("catalog", cfg.Storage.SQLite.Path).
		Str("thumbnails", a.thumbRoot()).
		Int("jobs", len(a.JobService.Jobs())).
		Msg("Application initialization complete")
	return a, nil
}

func (a *App) thumbRoot() string {
	return a.Config.ThumbnailRoot(".")
}

func (a *App) initServices() {
	cfg := a.Config
	logger := a.Logger
	storage := a.Storage

	backend := media.NewBackend(logger)

	processor := library.NewSyncProcessor(
		logger,
		storage,
		scanner.NewMediaSource(logger, cfg.Scanner.ExcludePatterns),
		scanner.NewIdentityResolver(),
		scanner.NewContentHasher(),
		func() interfaces.IngestPipeline {
			return ingest.NewPipeline(logger, storage.Posts(), cfg.Ingestion.BatchSize, cfg.Ingestion.ChannelCapacity)
		},
		cfg.Scanner.Parallelism,
	)
	a.LibraryService = library.NewService(storage, processor, logger)
	a.PostService = posts.NewService(storage, a.thumbRoot(), logger)
	a.TagService = tags.NewService(storage, logger)

	detector := duplicates.NewDetector(storage, logger, cfg.Similarity.HammingThreshold)
	a.DuplicateService = duplicates.NewService(storage, detector, logger)

	reportInterval := time.Duration(cfg.Processing.JobProgressReportIntervalMs) * time.Millisecond
	a.JobService = jobsvc.NewService(storage.Jobs(), logger, reportInterval)
	a.registerJobs(backend)

	a.Scheduler = scheduler.NewService(storage.Schedules(), a.JobService, logger)
}

func (a *App) registerJobs(backend interfaces.MediaBackend) {
	cfg := a.Config
	logger := a.Logger
	thumbRoot := a.thumbRoot()

	registered := []interfaces.Job{
		jobsvc.NewScanAllLibrariesJob(a.LibraryService, logger),
		jobsvc.NewExtractMetadataJob(a.Storage, backend, logger, cfg.Processing.MetadataParallelism),
		jobsvc.NewGenerateThumbnailsJob(a.Storage, backend, logger, thumbRoot, cfg.Processing.ThumbnailMaxEdge, cfg.Processing.ThumbnailParallelism),
		jobsvc.NewComputePerceptualHashesJob(a.Storage, backend, logger, cfg.Processing.SimilarityParallelism),
		jobsvc.NewFindDuplicatesJob(a.DuplicateService, logger),
		jobsvc.NewCleanupThumbnailsJob(a.Storage, logger, thumbRoot),
	}
	for _, job := range registered {
		if err := a.JobService.Register(job); err != nil {
			a.Logger.Warn().Err(err).Str("job_key", job.Key()).Msg("Job registration failed")
		}
	}
}

// Close stops the background components in reverse start order and releases
// the catalog.
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	if a.JobService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.JobService.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Job shutdown incomplete")
		}
	}

	if a.LogConsumer != nil {
		if err := a.LogConsumer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Log consumer stop failed")
		}
	}

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close catalog: %w", err)
		}
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
