package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0 */6 * * *"))
	assert.NoError(t, ValidateCron("30 3 * * 0"))
	assert.Error(t, ValidateCron(""))
	assert.Error(t, ValidateCron("not a cron"))
	// 6-field expressions (with seconds) are not accepted.
	assert.Error(t, ValidateCron("0 0 */6 * * *"))
}

func TestNextCronRun(t *testing.T) {
	base := time.Date(2025, 3, 10, 5, 59, 0, 0, time.UTC)

	next, err := NextCronRun("0 */6 * * *", base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.UTC, next.Location())

	// Non-UTC input is evaluated in UTC.
	local := base.In(time.FixedZone("X", 5*3600))
	next, err = NextCronRun("0 */6 * * *", local)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC), next)

	_, err = NextCronRun("bad", base)
	assert.Error(t, err)
}

func TestNextCronRuns(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 30, 0, time.UTC)

	runs, err := NextCronRuns("*/15 * * * *", base, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 15, 0, 0, time.UTC), runs[0])
	assert.Equal(t, time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC), runs[1])
	assert.Equal(t, time.Date(2025, 3, 10, 0, 45, 0, 0, time.UTC), runs[2])
}
