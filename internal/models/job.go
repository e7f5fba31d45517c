package models

import "time"

// JobStatus is the lifecycle state of one job execution.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobMode selects how much work a job run covers. Missing processes only
// items that still need the job's output; All reprocesses everything.
type JobMode string

const (
	JobModeMissing JobMode = "missing"
	JobModeAll     JobMode = "all"
)

// JobExecution is one append-only history row. Created when a job starts
// and mutated only for status/progress state; never deleted.
type JobExecution struct {
	ID                  string     `json:"id"`
	JobKey              string     `json:"job_key"`
	JobName             string     `json:"job_name"`
	Status              JobStatus  `json:"status"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	ActivityText        string     `json:"activity_text"`
	FinalText           string     `json:"final_text"`
	ProgressCurrent     int64      `json:"progress_current"`
	ProgressTotal       int64      `json:"progress_total"`
	ResultSchemaVersion int        `json:"result_schema_version"`
	ResultJSON          string     `json:"result_json,omitempty"`
}

// ScheduledJob is one cron table row. JobName holds the stable job key;
// the display name is resolved from the registry at read time.
type ScheduledJob struct {
	ID             int64      `json:"id"`
	JobName        string     `json:"job_name"`
	CronExpression string     `json:"cron_expression"`
	IsEnabled      bool       `json:"is_enabled"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
}
