package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/common"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"github.com/ternarybob/imago/internal/services/jobs"
	"github.com/ternarybob/imago/internal/storage/sqlite"
)

type recordedJob struct {
	key  string
	name string
	runs chan models.JobMode
}

func (j *recordedJob) Key() string           { return j.key }
func (j *recordedJob) Name() string          { return j.name }
func (j *recordedJob) Description() string   { return "" }
func (j *recordedJob) DisplayOrder() int     { return 1 }
func (j *recordedJob) SupportsAllMode() bool { return false }

func (j *recordedJob) Execute(_ context.Context, _ interfaces.JobReporter, mode models.JobMode) error {
	if j.runs != nil {
		j.runs <- mode
	}
	return nil
}

type schedFixture struct {
	storage    interfaces.StorageManager
	jobService *jobs.Service
	scheduler  *Service
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	logger := arbor.NewLogger()

	storage, err := sqlite.NewManager(logger, &common.SQLiteConfig{
		Path:          t.TempDir() + "/catalog.db",
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	jobService := jobs.NewService(storage.Jobs(), logger, 10*time.Millisecond)
	scheduler := NewService(storage.Schedules(), jobService, logger)

	return &schedFixture{storage: storage, jobService: jobService, scheduler: scheduler}
}

func TestService_SeedsDefaultsDisabled(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Start())
	t.Cleanup(func() { f.scheduler.Stop() })

	schedules, err := f.scheduler.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, len(defaultSchedules))
	for _, schedule := range schedules {
		assert.False(t, schedule.IsEnabled, schedule.JobName)
		assert.NoError(t, common.ValidateCron(schedule.CronExpression), schedule.JobName)
	}

	// A second start run does not duplicate rows.
	require.NoError(t, f.scheduler.Stop())
	require.NoError(t, f.scheduler.Start())
	schedules, err = f.scheduler.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, schedules, len(defaultSchedules))
}

func TestService_MigratesLegacyDisplayNames(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.jobService.Register(&recordedJob{key: "scan-all-libraries", name: "Scan All Libraries"}))
	require.NoError(t, f.storage.Schedules().CreateSchedule(ctx, &models.ScheduledJob{
		JobName:        "Scan All Libraries",
		CronExpression: "0 * * * *",
	}))

	require.NoError(t, f.scheduler.Start())
	t.Cleanup(func() { f.scheduler.Stop() })

	migrated, err := f.storage.Schedules().GetScheduleByJobName(ctx, "scan-all-libraries")
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", migrated.CronExpression)

	// Seeding after migration must not leave a second row for the key.
	schedules, err := f.scheduler.ListSchedules(ctx)
	require.NoError(t, err)
	count := 0
	for _, schedule := range schedules {
		require.NotEqual(t, "Scan All Libraries", schedule.JobName)
		if schedule.JobName == "scan-all-libraries" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestService_MergesLegacyRowIntoSeededRow(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.jobService.Register(&recordedJob{key: "scan-all-libraries", name: "Scan All Libraries"}))

	// A keyed default row from an earlier run sits beside the legacy row.
	require.NoError(t, f.storage.Schedules().CreateSchedule(ctx, &models.ScheduledJob{
		JobName:        "scan-all-libraries",
		CronExpression: "0 */6 * * *",
	}))
	require.NoError(t, f.storage.Schedules().CreateSchedule(ctx, &models.ScheduledJob{
		JobName:        "Scan All Libraries",
		CronExpression: "15 2 * * *",
		IsEnabled:      true,
	}))

	require.NoError(t, f.scheduler.Start())
	t.Cleanup(func() { f.scheduler.Stop() })

	// The user's legacy configuration wins; the legacy row is gone.
	merged, err := f.storage.Schedules().GetScheduleByJobName(ctx, "scan-all-libraries")
	require.NoError(t, err)
	assert.Equal(t, "15 2 * * *", merged.CronExpression)
	assert.True(t, merged.IsEnabled)

	_, err = f.storage.Schedules().GetScheduleByJobName(ctx, "Scan All Libraries")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestService_TickStartsDueJobs(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	job := &recordedJob{key: "tick-job", name: "Tick Job", runs: make(chan models.JobMode, 1)}
	require.NoError(t, f.jobService.Register(job))

	// Never-run enabled schedules (nextRun NULL) are due immediately.
	require.NoError(t, f.storage.Schedules().CreateSchedule(ctx, &models.ScheduledJob{
		JobName:        "tick-job",
		CronExpression: "0 * * * *",
		IsEnabled:      true,
	}))

	now := time.Now().UTC()
	f.scheduler.tick(ctx, now)

	select {
	case mode := <-job.runs:
		assert.Equal(t, models.JobModeMissing, mode)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	updated, err := f.storage.Schedules().GetScheduleByJobName(ctx, "tick-job")
	require.NoError(t, err)
	require.NotNil(t, updated.LastRun)
	require.NotNil(t, updated.NextRun)
	assert.True(t, updated.NextRun.After(now))

	// Not due again until nextRun passes.
	f.scheduler.tick(ctx, now.Add(time.Second))
	select {
	case <-job.runs:
		t.Fatal("job ran before its next fire time")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_TickDisablesUnknownJobs(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.storage.Schedules().CreateSchedule(ctx, &models.ScheduledJob{
		JobName:        "gone-job",
		CronExpression: "0 * * * *",
		IsEnabled:      true,
	}))

	f.scheduler.tick(ctx, time.Now().UTC())

	row, err := f.storage.Schedules().GetScheduleByJobName(ctx, "gone-job")
	require.NoError(t, err)
	assert.False(t, row.IsEnabled)
}

func TestService_UpdateSchedule(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.storage.Schedules().CreateSchedule(ctx, &models.ScheduledJob{
		JobName:        "some-job",
		CronExpression: "0 * * * *",
	}))
	row, err := f.storage.Schedules().GetScheduleByJobName(ctx, "some-job")
	require.NoError(t, err)

	row.IsEnabled = true
	row.CronExpression = "*/5 * * * *"
	require.NoError(t, f.scheduler.UpdateSchedule(ctx, row))
	assert.NotNil(t, row.NextRun)

	row.CronExpression = "not a cron"
	err = f.scheduler.UpdateSchedule(ctx, row)
	assert.ErrorIs(t, err, interfaces.ErrInvalidInput)

	row.CronExpression = "*/5 * * * *"
	row.IsEnabled = false
	require.NoError(t, f.scheduler.UpdateSchedule(ctx, row))
	assert.Nil(t, row.NextRun)
}

func TestService_Preview(t *testing.T) {
	f := newSchedFixture(t)

	preview := f.scheduler.Preview("0 3 * * 0", 3)
	require.True(t, preview.Valid)
	require.Len(t, preview.Occurrences, 3)
	for _, occurrence := range preview.Occurrences {
		assert.Equal(t, time.Sunday, occurrence.Weekday())
		assert.Equal(t, 3, occurrence.Hour())
		assert.Equal(t, time.UTC, occurrence.Location())
	}

	// n is clamped into 1..10.
	preview = f.scheduler.Preview("* * * * *", 99)
	require.True(t, preview.Valid)
	assert.Len(t, preview.Occurrences, 10)

	preview = f.scheduler.Preview("bad", 3)
	assert.False(t, preview.Valid)
	assert.NotEmpty(t, preview.Error)
}
