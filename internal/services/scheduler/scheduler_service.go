package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

const defaultPollInterval = 30 * time.Second

// defaultSchedule is one seeded cron-table row. All defaults start disabled;
// the user opts in per job.
type defaultSchedule struct {
	jobKey string
	cron   string
}

// The enrichment defaults are offset from each other so an enabled-everything
// setup does not pile every job onto the same minute.
var defaultSchedules = []defaultSchedule{
	{"scan-all-libraries", "0 */6 * * *"},
	{"extract-metadata", "10 */6 * * *"},
	{"generate-thumbnails", "30 */6 * * *"},
	{"compute-perceptual-hashes", "50 */6 * * *"},
	{"find-duplicates", "0 3 * * 0"},
	{"cleanup-thumbnails", "30 3 * * 0"},
}

// Service implements SchedulerService: a single background poller that
// starts due jobs through the job service.
type Service struct {
	schedules    interfaces.ScheduleStorage
	jobs         interfaces.JobService
	logger       arbor.ILogger
	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewService creates a scheduler over the cron table.
func NewService(schedules interfaces.ScheduleStorage, jobs interfaces.JobService, logger arbor.ILogger) *Service {
	return &Service{
		schedules:    schedules,
		jobs:         jobs,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// Start seeds missing default schedules, migrates legacy rows, and launches
// the polling loop.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running: %w", interfaces.ErrConflict)
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	// Migration runs before seeding: a legacy row must be renamed to its key
	// first, or seeding would insert a fresh default row beside it.
	ctx := context.Background()
	s.migrateLegacyNames(ctx)
	if err := s.seedDefaults(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to seed default schedules")
	}

	go s.loop()
	s.logger.Info().Str("poll", s.pollInterval.String()).Msg("Scheduler started")
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(context.Background(), time.Now().UTC())
		}
	}
}

// seedDefaults inserts any default row whose job key is not in the table yet.
func (s *Service) seedDefaults(ctx context.Context) error {
	for _, def := range defaultSchedules {
		_, err := s.schedules.GetScheduleByJobName(ctx, def.jobKey)
		if err == nil {
			continue
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return err
		}
		schedule := &models.ScheduledJob{
			JobName:        def.jobKey,
			CronExpression: def.cron,
			IsEnabled:      false,
		}
		if err := s.schedules.CreateSchedule(ctx, schedule); err != nil && !errors.Is(err, interfaces.ErrConflict) {
			return err
		}
	}
	return nil
}

// migrateLegacyNames rewrites rows whose jobName holds a human display name
// instead of the stable key.
func (s *Service) migrateLegacyNames(ctx context.Context) {
	rows, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list schedules for migration")
		return
	}

	byName := make(map[string]string)
	for _, job := range s.jobs.Jobs() {
		byName[job.Name()] = job.Key()
	}

	for _, row := range rows {
		key, isDisplayName := byName[row.JobName]
		if !isDisplayName || key == row.JobName {
			continue
		}
		old := row.JobName

		// A keyed row may already exist (seeded by an earlier run). The
		// legacy row holds the user's configuration, so it wins: fold it
		// into the keyed row and drop the legacy one.
		if existing, err := s.schedules.GetScheduleByJobName(ctx, key); err == nil {
			existing.CronExpression = row.CronExpression
			existing.IsEnabled = row.IsEnabled
			existing.LastRun = row.LastRun
			existing.NextRun = row.NextRun
			if err := s.schedules.UpdateSchedule(ctx, existing); err != nil {
				s.logger.Warn().Err(err).Str("job_name", old).Msg("Failed to merge legacy schedule row")
				continue
			}
			if err := s.schedules.DeleteSchedule(ctx, row.ID); err != nil {
				s.logger.Warn().Err(err).Str("job_name", old).Msg("Failed to delete merged legacy row")
			}
			s.logger.Info().Str("from", old).Str("to", key).Msg("Merged legacy schedule row")
			continue
		} else if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_name", old).Msg("Failed to look up keyed schedule row")
			continue
		}

		row.JobName = key
		if err := s.schedules.UpdateSchedule(ctx, row); err != nil {
			s.logger.Warn().Err(err).Str("job_name", old).Msg("Failed to migrate legacy schedule row")
			continue
		}
		s.logger.Info().Str("from", old).Str("to", key).Msg("Migrated legacy schedule row")
	}
}

// tick starts every due schedule. A failed start leaves nextRun unchanged so
// the next poll retries.
func (s *Service) tick(ctx context.Context, now time.Time) {
	due, err := s.schedules.ListDue(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load due schedules")
		return
	}

	for _, schedule := range due {
		if _, ok := s.jobs.GetJob(schedule.JobName); !ok {
			schedule.IsEnabled = false
			if err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
				s.logger.Warn().Err(err).Str("job_name", schedule.JobName).Msg("Failed to disable unknown schedule")
			}
			s.logger.Warn().Str("job_name", schedule.JobName).Msg("Disabled schedule for unknown job")
			continue
		}

		if _, err := s.jobs.StartJob(schedule.JobName, models.JobModeMissing); err != nil {
			s.logger.Warn().Err(err).Str("job_name", schedule.JobName).Msg("Scheduled job start failed")
			continue
		}

		lastRun := now
		schedule.LastRun = &lastRun
		next, err := common.NextCronRun(schedule.CronExpression, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_name", schedule.JobName).Msg("Invalid cron expression on schedule")
		} else {
			schedule.NextRun = &next
		}
		if err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
			s.logger.Warn().Err(err).Str("job_name", schedule.JobName).Msg("Failed to update schedule after start")
		}
	}
}

func (s *Service) ListSchedules(ctx context.Context) ([]*models.ScheduledJob, error) {
	return s.schedules.ListSchedules(ctx)
}

// UpdateSchedule validates the cron expression and recomputes nextRun for
// enabled rows.
func (s *Service) UpdateSchedule(ctx context.Context, schedule *models.ScheduledJob) error {
	if err := common.ValidateCron(schedule.CronExpression); err != nil {
		return fmt.Errorf("%v: %w", err, interfaces.ErrInvalidInput)
	}

	if schedule.IsEnabled {
		next, err := common.NextCronRun(schedule.CronExpression, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("%v: %w", err, interfaces.ErrInvalidInput)
		}
		schedule.NextRun = &next
	} else {
		schedule.NextRun = nil
	}
	return s.schedules.UpdateSchedule(ctx, schedule)
}

// Preview returns up to n upcoming UTC occurrences of the expression; n is
// clamped to 1..10.
func (s *Service) Preview(expression string, n int) interfaces.CronPreview {
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	if err := common.ValidateCron(expression); err != nil {
		return interfaces.CronPreview{Valid: false, Error: err.Error()}
	}
	occurrences, err := common.NextCronRuns(expression, time.Now().UTC(), n)
	if err != nil {
		return interfaces.CronPreview{Valid: false, Error: err.Error()}
	}
	return interfaces.CronPreview{Valid: true, Occurrences: occurrences}
}
