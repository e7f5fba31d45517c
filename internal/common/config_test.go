package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 50, config.Ingestion.BatchSize)
	assert.Equal(t, 200, config.Ingestion.ChannelCapacity)
	assert.Equal(t, 400, config.Processing.ThumbnailMaxEdge)
	assert.Equal(t, 250, config.Processing.JobProgressReportIntervalMs)
	assert.Equal(t, 31, config.Similarity.HammingThreshold)
	assert.GreaterOrEqual(t, config.Scanner.Parallelism, 1)
}

func TestLoadFromFiles_Layering(t *testing.T) {
	dir := t.TempDir()

	base := writeConfig(t, dir, "base.toml", `
environment = "development"

[ingestion]
batch_size = 25

[perceptual_similarity]
hamming_threshold = 16
`)
	override := writeConfig(t, dir, "override.toml", `
[ingestion]
batch_size = 100
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 100, config.Ingestion.BatchSize, "later files win")
	assert.Equal(t, 16, config.Similarity.HammingThreshold, "earlier values survive when not overridden")
}

func TestLoadFromFiles_NormalizesOutOfRangeValues(t *testing.T) {
	dir := t.TempDir()

	path := writeConfig(t, dir, "bad.toml", `
[ingestion]
batch_size = 0
channel_capacity = 2

[processing]
thumbnail_max_edge = 10
job_progress_report_interval_ms = 1

[perceptual_similarity]
hamming_threshold = 999
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 1, config.Ingestion.BatchSize)
	assert.Equal(t, 10, config.Ingestion.ChannelCapacity)
	assert.Equal(t, 400, config.Processing.ThumbnailMaxEdge)
	assert.Equal(t, 250, config.Processing.JobProgressReportIntervalMs)
	assert.Equal(t, 31, config.Similarity.HammingThreshold)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	dir := t.TempDir()
	bad := writeConfig(t, dir, "bad.toml", "not toml [[")
	_, err = LoadFromFiles(bad)
	assert.Error(t, err)
}

func TestThumbnailRoot(t *testing.T) {
	config := DefaultConfig()

	config.Storage.ThumbnailPath = "thumbs"
	assert.Equal(t, filepath.Join("/content", "thumbs"), config.ThumbnailRoot("/content"))

	config.Storage.ThumbnailPath = "/var/lib/imago/thumbs"
	assert.Equal(t, "/var/lib/imago/thumbs", config.ThumbnailRoot("/content"))
}
