package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// ScheduleStorage implements persistence for the cron table.
type ScheduleStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new schedule storage instance
func NewScheduleStorage(db *SQLiteDB, logger arbor.ILogger) *ScheduleStorage {
	return &ScheduleStorage{db: db, logger: logger}
}

const scheduleColumns = `id, job_name, cron_expression, is_enabled, last_run, next_run`

func scanSchedule(row rowScanner) (*models.ScheduledJob, error) {
	schedule := &models.ScheduledJob{}
	var lastRun, nextRun sql.NullInt64
	err := row.Scan(&schedule.ID, &schedule.JobName, &schedule.CronExpression,
		&schedule.IsEnabled, &lastRun, &nextRun)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule: %w", interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	schedule.LastRun = nullableTime(lastRun)
	schedule.NextRun = nullableTime(nextRun)
	return schedule, nil
}

// ListSchedules returns the whole cron table ordered by job name.
func (s *ScheduleStorage) ListSchedules(ctx context.Context) ([]*models.ScheduledJob, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_jobs ORDER BY job_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.ScheduledJob
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// GetScheduleByJobName loads the schedule for one job key.
func (s *ScheduleStorage) GetScheduleByJobName(ctx context.Context, jobName string) (*models.ScheduledJob, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_jobs WHERE job_name = ?`, jobName)
	return scanSchedule(row)
}

// CreateSchedule inserts a new cron row and fills in its assigned id.
func (s *ScheduleStorage) CreateSchedule(ctx context.Context, schedule *models.ScheduledJob) error {
	result, err := s.db.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (job_name, cron_expression, is_enabled, last_run, next_run)
		 VALUES (?, ?, ?, ?, ?)`,
		schedule.JobName, schedule.CronExpression, schedule.IsEnabled,
		nullableUnix(schedule.LastRun), nullableUnix(schedule.NextRun))
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", mapConstraintErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read schedule id: %w", err)
	}
	schedule.ID = id
	return nil
}

// UpdateSchedule saves expression, enablement and run timestamps.
func (s *ScheduleStorage) UpdateSchedule(ctx context.Context, schedule *models.ScheduledJob) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET job_name = ?, cron_expression = ?, is_enabled = ?,
			last_run = ?, next_run = ?
		 WHERE id = ?`,
		schedule.JobName, schedule.CronExpression, schedule.IsEnabled,
		nullableUnix(schedule.LastRun), nullableUnix(schedule.NextRun), schedule.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", mapConstraintErr(err))
	}
	return requireRowAffected(result, "schedule")
}

// DeleteSchedule removes one cron row.
func (s *ScheduleStorage) DeleteSchedule(ctx context.Context, id int64) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return requireRowAffected(result, "schedule")
}

// ListDue returns enabled schedules whose next run is unset or has passed.
func (s *ScheduleStorage) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledJob, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_jobs
		 WHERE is_enabled = 1 AND (next_run IS NULL OR next_run <= ?)
		 ORDER BY job_name`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.ScheduledJob
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}
