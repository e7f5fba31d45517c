package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// JobStorage implements the append-only job execution history.
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

const executionColumns = `id, job_key, job_name, status, start_time, end_time,
	error_message, activity_text, final_text, progress_current, progress_total,
	result_schema_version, result_json`

func scanExecution(row rowScanner) (*models.JobExecution, error) {
	exec := &models.JobExecution{}
	var status string
	var start int64
	var end sql.NullInt64
	err := row.Scan(&exec.ID, &exec.JobKey, &exec.JobName, &status, &start, &end,
		&exec.ErrorMessage, &exec.ActivityText, &exec.FinalText,
		&exec.ProgressCurrent, &exec.ProgressTotal,
		&exec.ResultSchemaVersion, &exec.ResultJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job execution: %w", interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job execution: %w", err)
	}
	exec.Status = models.JobStatus(status)
	exec.StartTime = unixToTime(start)
	exec.EndTime = nullableTime(end)
	return exec, nil
}

// InsertExecution writes the initial running row for one job start.
func (s *JobStorage) InsertExecution(ctx context.Context, exec *models.JobExecution) error {
	_, err := s.db.db.ExecContext(ctx,
		`INSERT INTO job_executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.JobKey, exec.JobName, string(exec.Status),
		exec.StartTime.Unix(), nullableUnix(exec.EndTime),
		exec.ErrorMessage, exec.ActivityText, exec.FinalText,
		exec.ProgressCurrent, exec.ProgressTotal,
		exec.ResultSchemaVersion, exec.ResultJSON)
	if err != nil {
		return fmt.Errorf("failed to insert job execution: %w", mapConstraintErr(err))
	}
	return nil
}

// UpdateExecution saves the mutable state of one execution row.
func (s *JobStorage) UpdateExecution(ctx context.Context, exec *models.JobExecution) error {
	result, err := s.db.db.ExecContext(ctx,
		`UPDATE job_executions SET status = ?, end_time = ?, error_message = ?,
			activity_text = ?, final_text = ?, progress_current = ?, progress_total = ?,
			result_schema_version = ?, result_json = ?
		 WHERE id = ?`,
		string(exec.Status), nullableUnix(exec.EndTime), exec.ErrorMessage,
		exec.ActivityText, exec.FinalText, exec.ProgressCurrent, exec.ProgressTotal,
		exec.ResultSchemaVersion, exec.ResultJSON, exec.ID)
	if err != nil {
		return fmt.Errorf("failed to update job execution: %w", err)
	}
	return requireRowAffected(result, "job execution")
}

// GetExecution loads one execution by id.
func (s *JobStorage) GetExecution(ctx context.Context, id string) (*models.JobExecution, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM job_executions WHERE id = ?`, id)
	return scanExecution(row)
}

// ListExecutions pages history ordered by start time descending.
func (s *JobStorage) ListExecutions(ctx context.Context, limit, offset int) ([]*models.JobExecution, int64, error) {
	var total int64
	if err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_executions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count job executions: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM job_executions
		 ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list job executions: %w", err)
	}
	defer rows.Close()

	var execs []*models.JobExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		execs = append(execs, exec)
	}
	return execs, total, rows.Err()
}
