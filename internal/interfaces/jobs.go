package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/imago/internal/models"
)

// JobReporter receives progress from a running job. Rapid updates are
// coalesced by a minimum publication interval; Flush forces a publish.
type JobReporter interface {
	SetActivity(text string)
	SetProgress(current, total int64)
	ClearProgress()
	SetFinalText(text string)
	SetResult(schemaVersion int, resultJSON string)
	Flush()
}

// Job is a registered unit of background work. Key is the stable
// machine-friendly identifier, distinct from the human display name.
type Job interface {
	Key() string
	Name() string
	Description() string
	DisplayOrder() int
	SupportsAllMode() bool

	Execute(ctx context.Context, reporter JobReporter, mode models.JobMode) error
}

// JobInfo is a live snapshot of one running (or recently finished) job
// instance, published by the job service.
type JobInfo struct {
	JobID           string
	JobKey          string
	JobName         string
	Status          models.JobStatus
	StartTime       time.Time
	EndTime         *time.Time
	ActivityText    string
	FinalText       string
	ProgressCurrent int64
	ProgressTotal   int64
	HasProgress     bool
	ErrorMessage    string
}

// JobService registers jobs by key, runs at most one instance per key at a
// time, persists history, and publishes live state.
type JobService interface {
	Register(job Job) error
	Jobs() []Job
	GetJob(key string) (Job, bool)

	// StartJob launches the job on an independent worker and returns the
	// fresh execution id. ErrConflict when an instance with the same key is
	// already running; ErrInvalidInput when mode is all and the job does
	// not support it.
	StartJob(key string, mode models.JobMode) (string, error)

	CancelJob(jobID string) error
	GetRunning() []JobInfo
	GetInfo(jobID string) (JobInfo, bool)

	// History pages persisted executions by start time descending.
	History(ctx context.Context, limit, offset int) ([]*models.JobExecution, int64, error)

	// Shutdown cancels running jobs and waits for them to finish.
	Shutdown(ctx context.Context) error
}

// CronOccurrence is one upcoming fire time of a previewed expression.
type CronPreview struct {
	Valid       bool        `json:"valid"`
	Error       string      `json:"error,omitempty"`
	Occurrences []time.Time `json:"occurrences,omitempty"`
}

// SchedulerService drives scheduled job dispatch from the cron table.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool

	ListSchedules(ctx context.Context) ([]*models.ScheduledJob, error)
	UpdateSchedule(ctx context.Context, schedule *models.ScheduledJob) error

	// Preview returns up to n (clamped to 1..10) upcoming UTC occurrences
	// of a 5-field cron expression.
	Preview(expression string, n int) CronPreview
}
