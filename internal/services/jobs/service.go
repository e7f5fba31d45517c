package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

const (
	defaultPersistInterval = 2 * time.Second
	defaultLinger          = 30 * time.Second
)

// runningJob is the live in-memory state of one execution.
type runningJob struct {
	info   interfaces.JobInfo
	cancel context.CancelFunc
	dirty  bool
	done   chan struct{}
}

// Service implements JobService: a registry of jobs, one instance per key at
// a time, persisted history, and live progress snapshots.
type Service struct {
	storage        interfaces.JobStorage
	logger         arbor.ILogger
	reportInterval time.Duration

	persistInterval time.Duration
	linger          time.Duration

	mu         sync.Mutex
	registry   map[string]interfaces.Job
	ordered    []interfaces.Job
	runningKey map[string]struct{}
	byID       map[string]*runningJob

	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup
}

// NewService creates a job service. reportInterval bounds how often reporter
// updates are published.
func NewService(storage interfaces.JobStorage, logger arbor.ILogger, reportInterval time.Duration) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		storage:         storage,
		logger:          logger,
		reportInterval:  reportInterval,
		persistInterval: defaultPersistInterval,
		linger:          defaultLinger,
		registry:        make(map[string]interfaces.Job),
		runningKey:      make(map[string]struct{}),
		byID:            make(map[string]*runningJob),
		baseCtx:         ctx,
		baseStop:        cancel,
	}
}

// Register adds a job to the registry. Duplicate keys are rejected.
func (s *Service) Register(job interfaces.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registry[job.Key()]; exists {
		return fmt.Errorf("job %s already registered: %w", job.Key(), interfaces.ErrConflict)
	}
	s.registry[job.Key()] = job
	s.ordered = append(s.ordered, job)
	sort.SliceStable(s.ordered, func(i, j int) bool {
		return s.ordered[i].DisplayOrder() < s.ordered[j].DisplayOrder()
	})
	return nil
}

func (s *Service) Jobs() []interfaces.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interfaces.Job, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func (s *Service) GetJob(key string) (interfaces.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.registry[key]
	return job, ok
}

// StartJob launches one execution of the job on its own goroutine and
// returns the execution id immediately.
func (s *Service) StartJob(key string, mode models.JobMode) (string, error) {
	s.mu.Lock()
	job, ok := s.registry[key]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("unknown job %s: %w", key, interfaces.ErrNotFound)
	}
	if mode == models.JobModeAll && !job.SupportsAllMode() {
		s.mu.Unlock()
		return "", fmt.Errorf("job %s does not support mode all: %w", key, interfaces.ErrInvalidInput)
	}
	if _, running := s.runningKey[key]; running {
		s.mu.Unlock()
		return "", fmt.Errorf("job %s is already running: %w", key, interfaces.ErrConflict)
	}
	s.runningKey[key] = struct{}{}
	s.mu.Unlock()

	jobID := uuid.NewString()
	now := time.Now().UTC()
	exec := &models.JobExecution{
		ID:           jobID,
		JobKey:       key,
		JobName:      job.Name(),
		Status:       models.JobStatusRunning,
		StartTime:    now,
		ActivityText: "Starting...",
	}
	if err := s.storage.InsertExecution(context.Background(), exec); err != nil {
		s.releaseKey(key)
		return "", fmt.Errorf("failed to record job start: %w", err)
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	rj := &runningJob{
		info: interfaces.JobInfo{
			JobID:        jobID,
			JobKey:       key,
			JobName:      job.Name(),
			Status:       models.JobStatusRunning,
			StartTime:    now,
			ActivityText: exec.ActivityText,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.byID[jobID] = rj
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, job, rj, mode)

	s.logger.Info().Str("job_id", jobID).Str("job_key", key).Str("mode", string(mode)).Msg("Job started")
	return jobID, nil
}

func (s *Service) run(ctx context.Context, job interfaces.Job, rj *runningJob, mode models.JobMode) {
	defer s.wg.Done()

	reporter := NewReporter(s.reportInterval, func(state reporterState) {
		s.mu.Lock()
		rj.info.ActivityText = state.Activity
		rj.info.FinalText = state.FinalText
		rj.info.ProgressCurrent = state.Current
		rj.info.ProgressTotal = state.Total
		rj.info.HasProgress = state.HasProgress
		rj.dirty = true
		s.mu.Unlock()
	})

	// Background persistence: live state is written through to the history
	// row every persistInterval while the job runs.
	persistDone := make(chan struct{})
	go s.persistLoop(rj, reporter, persistDone)

	err := func() (jobErr error) {
		defer func() {
			if r := recover(); r != nil {
				jobErr = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.Execute(ctx, reporter, mode)
	}()

	reporter.Flush()
	close(persistDone)

	now := time.Now().UTC()
	s.mu.Lock()
	rj.info.EndTime = &now
	switch {
	case err == nil:
		rj.info.Status = models.JobStatusCompleted
		if rj.info.ActivityText == "" || rj.info.ActivityText == "Starting..." {
			rj.info.ActivityText = "Completed"
		}
		if rj.info.FinalText == "" {
			rj.info.FinalText = "Completed successfully."
		}
	case errors.Is(err, context.Canceled):
		rj.info.Status = models.JobStatusCancelled
		if rj.info.FinalText == "" {
			rj.info.FinalText = "Cancelled."
		}
	default:
		rj.info.Status = models.JobStatusFailed
		rj.info.ErrorMessage = err.Error()
		rj.info.FinalText = err.Error()
	}
	info := rj.info
	s.mu.Unlock()

	s.persist(info, reporter)
	s.releaseKey(info.JobKey)
	close(rj.done)

	logEvent := s.logger.Info()
	if info.Status == models.JobStatusFailed {
		logEvent = s.logger.Warn()
	}
	logEvent.
		Str("job_id", info.JobID).
		Str("job_key", info.JobKey).
		Str("status", string(info.Status)).
		Str("final", info.FinalText).
		Msg("Job finished")

	// Late readers can still fetch the terminal snapshot for a while.
	time.AfterFunc(s.linger, func() {
		s.mu.Lock()
		delete(s.byID, info.JobID)
		s.mu.Unlock()
	})
}

func (s *Service) persistLoop(rj *runningJob, reporter *Reporter, done <-chan struct{}) {
	ticker := time.NewTicker(s.persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			dirty := rj.dirty
			rj.dirty = false
			info := rj.info
			s.mu.Unlock()
			if dirty {
				s.persist(info, reporter)
			}
		}
	}
}

// persist writes the live snapshot through to the execution row.
func (s *Service) persist(info interfaces.JobInfo, reporter *Reporter) {
	reporter.mu.Lock()
	resultVersion := reporter.state.ResultVersion
	resultJSON := reporter.state.ResultJSON
	reporter.mu.Unlock()

	exec := &models.JobExecution{
		ID:                  info.JobID,
		JobKey:              info.JobKey,
		JobName:             info.JobName,
		Status:              info.Status,
		StartTime:           info.StartTime,
		EndTime:             info.EndTime,
		ErrorMessage:        info.ErrorMessage,
		ActivityText:        info.ActivityText,
		FinalText:           info.FinalText,
		ProgressCurrent:     info.ProgressCurrent,
		ProgressTotal:       info.ProgressTotal,
		ResultSchemaVersion: resultVersion,
		ResultJSON:          resultJSON,
	}
	if err := s.storage.UpdateExecution(context.Background(), exec); err != nil {
		s.logger.Warn().Err(err).Str("job_id", info.JobID).Msg("Failed to persist job state")
	}
}

func (s *Service) releaseKey(key string) {
	s.mu.Lock()
	delete(s.runningKey, key)
	s.mu.Unlock()
}

// CancelJob signals the execution's context. The job observes it at its next
// safe point.
func (s *Service) CancelJob(jobID string) error {
	s.mu.Lock()
	rj, ok := s.byID[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job execution %s not found: %w", jobID, interfaces.ErrNotFound)
	}
	rj.cancel()
	s.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	return nil
}

// GetRunning returns live snapshots of every non-terminal execution.
func (s *Service) GetRunning() []interfaces.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []interfaces.JobInfo
	for _, rj := range s.byID {
		if !rj.info.Status.IsTerminal() {
			out = append(out, rj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

func (s *Service) GetInfo(jobID string) (interfaces.JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj, ok := s.byID[jobID]
	if !ok {
		return interfaces.JobInfo{}, false
	}
	return rj.info, true
}

func (s *Service) History(ctx context.Context, limit, offset int) ([]*models.JobExecution, int64, error) {
	return s.storage.ListExecutions(ctx, limit, offset)
}

// Shutdown cancels every running job and waits for them to finish or the
// context to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.baseStop()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job shutdown timed out: %w", ctx.Err())
	}
}
