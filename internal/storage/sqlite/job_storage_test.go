package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

func TestJobStorage_InsertAndUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	exec := &models.JobExecution{
		ID:           uuid.New().String(),
		JobKey:       "generate-thumbnails",
		JobName:      "Generate Thumbnails",
		Status:       models.JobStatusRunning,
		StartTime:    time.Now().UTC().Truncate(time.Second),
		ActivityText: "Starting",
	}
	require.NoError(t, storage.InsertExecution(ctx, exec))

	loaded, err := storage.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, loaded.Status)
	assert.Nil(t, loaded.EndTime)

	end := time.Now().UTC().Truncate(time.Second)
	exec.Status = models.JobStatusCompleted
	exec.EndTime = &end
	exec.FinalText = "Generated 42 thumbnails"
	exec.ProgressCurrent = 42
	exec.ProgressTotal = 42
	exec.ResultSchemaVersion = 1
	exec.ResultJSON = `{"generated":42}`
	require.NoError(t, storage.UpdateExecution(ctx, exec))

	loaded, err = storage.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.EndTime)
	assert.Equal(t, end.Unix(), loaded.EndTime.Unix())
	assert.Equal(t, "Generated 42 thumbnails", loaded.FinalText)
	assert.Equal(t, int64(42), loaded.ProgressCurrent)
	assert.Equal(t, 1, loaded.ResultSchemaVersion)
	assert.Equal(t, `{"generated":42}`, loaded.ResultJSON)
}

func TestJobStorage_ListOrdering(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, storage.InsertExecution(ctx, &models.JobExecution{
			ID:        uuid.New().String(),
			JobKey:    "scan-all-libraries",
			JobName:   "Scan All Libraries",
			Status:    models.JobStatusCompleted,
			StartTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	execs, total, err := storage.ListExecutions(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, execs, 2)
	// Newest first.
	assert.Equal(t, base.Add(2*time.Minute).Unix(), execs[0].StartTime.Unix())
	assert.Equal(t, base.Add(time.Minute).Unix(), execs[1].StartTime.Unix())

	execs, _, err = storage.ListExecutions(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, base.Unix(), execs[0].StartTime.Unix())
}

func TestJobStorage_GetNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())

	_, err := storage.GetExecution(context.Background(), "missing-id")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestScheduleStorage_CRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewScheduleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	schedule := &models.ScheduledJob{
		JobName:        "find-duplicates",
		CronExpression: "0 3 * * *",
		IsEnabled:      false,
	}
	require.NoError(t, storage.CreateSchedule(ctx, schedule))
	assert.NotZero(t, schedule.ID)

	// Job names are unique.
	err := storage.CreateSchedule(ctx, &models.ScheduledJob{
		JobName: "find-duplicates", CronExpression: "0 4 * * *",
	})
	assert.True(t, errors.Is(err, interfaces.ErrConflict))

	loaded, err := storage.GetScheduleByJobName(ctx, "find-duplicates")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", loaded.CronExpression)
	assert.Nil(t, loaded.NextRun)

	next := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	loaded.IsEnabled = true
	loaded.NextRun = &next
	require.NoError(t, storage.UpdateSchedule(ctx, loaded))

	schedules, err := storage.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.True(t, schedules[0].IsEnabled)
	require.NotNil(t, schedules[0].NextRun)
	assert.Equal(t, next.Unix(), schedules[0].NextRun.Unix())

	require.NoError(t, storage.DeleteSchedule(ctx, schedule.ID))
	_, err = storage.GetScheduleByJobName(ctx, "find-duplicates")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestScheduleStorage_ListDue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewScheduleStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := &models.ScheduledJob{JobName: "job-due", CronExpression: "* * * * *", IsEnabled: true, NextRun: &past}
	neverRun := &models.ScheduledJob{JobName: "job-never-run", CronExpression: "* * * * *", IsEnabled: true}
	notYet := &models.ScheduledJob{JobName: "job-not-yet", CronExpression: "* * * * *", IsEnabled: true, NextRun: &future}
	disabled := &models.ScheduledJob{JobName: "job-disabled", CronExpression: "* * * * *", IsEnabled: false, NextRun: &past}

	for _, s := range []*models.ScheduledJob{due, neverRun, notYet, disabled} {
		require.NoError(t, storage.CreateSchedule(ctx, s))
	}

	dueNow, err := storage.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueNow, 2)
	assert.Equal(t, "job-due", dueNow[0].JobName)
	assert.Equal(t, "job-never-run", dueNow[1].JobName)
}

func TestLogStorage_InsertAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []*models.AppLogEntry{
		{TimestampUTC: base, Level: "warn", Category: "scanner", Message: "first"},
		{TimestampUTC: base.Add(time.Minute), Level: "error", Category: "jobs", Message: "second", Exception: "boom"},
	}
	require.NoError(t, storage.InsertLogEntries(ctx, entries))

	listed, err := storage.ListLogEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	// Newest first.
	assert.Equal(t, "second", listed[0].Message)
	assert.Equal(t, "boom", listed[0].Exception)
	assert.Equal(t, "first", listed[1].Message)
}
