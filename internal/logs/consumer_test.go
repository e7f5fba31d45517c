package logs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/imago/internal/models"
)

type fakeLogStorage struct {
	mu      sync.Mutex
	entries []*models.AppLogEntry
}

func (f *fakeLogStorage) InsertLogEntries(ctx context.Context, entries []*models.AppLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeLogStorage) ListLogEntries(ctx context.Context, limit int) ([]*models.AppLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, nil
}

func (f *fakeLogStorage) stored() []*models.AppLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.AppLogEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

func waitForEntries(t *testing.T, storage *fakeLogStorage, count int) []*models.AppLogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries := storage.stored()
		if len(entries) >= count {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d stored entries, got %d", count, len(storage.stored()))
	return nil
}

func TestConsumer_StoresAboveThreshold(t *testing.T) {
	storage := &fakeLogStorage{}
	consumer := NewConsumer(storage, arbor.NewLogger(), "warn")
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	now := time.Now()
	consumer.GetChannel() <- []arbormodels.LogEvent{
		{Timestamp: now, Level: log.InfoLevel, Message: "below threshold"},
		{Timestamp: now, Level: log.WarnLevel, Message: "kept warn"},
		{Timestamp: now, Level: log.ErrorLevel, Message: "kept error"},
	}

	entries := waitForEntries(t, storage, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "WRN", entries[0].Level)
	assert.Equal(t, "kept warn", entries[0].Message)
	assert.Equal(t, "ERR", entries[1].Level)
}

func TestConsumer_ExtractsCategoryAndError(t *testing.T) {
	storage := &fakeLogStorage{}
	consumer := NewConsumer(storage, arbor.NewLogger(), "debug")
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	consumer.GetChannel() <- []arbormodels.LogEvent{
		{
			Timestamp: time.Now(),
			Level:     log.ErrorLevel,
			Message:   "scan failed",
			Fields: map[string]interface{}{
				"category":   "scanner",
				"error":      "permission denied",
				"library_id": 3,
			},
		},
	}

	entries := waitForEntries(t, storage, 1)
	entry := entries[0]
	assert.Equal(t, "scanner", entry.Category)
	assert.Equal(t, "permission denied", entry.Exception)
	assert.Contains(t, entry.PropertiesJSON, "library_id")
	assert.NotContains(t, entry.PropertiesJSON, "category")
}

func TestConsumer_StopDrainsCleanly(t *testing.T) {
	storage := &fakeLogStorage{}
	consumer := NewConsumer(storage, arbor.NewLogger(), "info")
	require.NoError(t, consumer.Start())

	consumer.GetChannel() <- []arbormodels.LogEvent{
		{Timestamp: time.Now(), Level: log.InfoLevel, Message: "before stop"},
	}
	waitForEntries(t, storage, 1)

	require.NoError(t, consumer.Stop())
}
