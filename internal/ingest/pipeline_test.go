package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// fakePostStorage records inserted batches and can be told to fail.
type fakePostStorage struct {
	interfaces.PostStorage

	mu       sync.Mutex
	batches  [][]*models.Post
	failures atomic.Int32
}

func (f *fakePostStorage) InsertPosts(ctx context.Context, posts []*models.Post) error {
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return fmt.Errorf("simulated insert failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]*models.Post, len(posts))
	copy(copied, posts)
	f.batches = append(f.batches, copied)
	return nil
}

func (f *fakePostStorage) inserted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, b := range f.batches {
		total += len(b)
	}
	return total
}

func newTestPost(path string) *models.Post {
	return &models.Post{
		LibraryID:        1,
		RelativePath:     path,
		ContentHash:      "hash-" + path,
		FileModifiedDate: time.Now().UTC(),
		ImportDate:       time.Now().UTC(),
	}
}

func TestPipeline_EnqueueAndFlush(t *testing.T) {
	storage := &fakePostStorage{}
	pipeline := NewPipeline(arbor.NewLogger(), storage, 5, 10)
	defer pipeline.Close()

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		require.NoError(t, pipeline.Enqueue(ctx, newTestPost(fmt.Sprintf("p%d.jpg", i))))
	}

	require.NoError(t, pipeline.Flush(ctx))
	assert.Equal(t, int64(0), pipeline.Pending())
	assert.Equal(t, 12, storage.inserted())
}

func TestPipeline_CloseDrains(t *testing.T) {
	storage := &fakePostStorage{}
	pipeline := NewPipeline(arbor.NewLogger(), storage, 50, 100)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, pipeline.Enqueue(ctx, newTestPost(fmt.Sprintf("c%d.jpg", i))))
	}

	require.NoError(t, pipeline.Close())
	assert.Equal(t, 7, storage.inserted())
	assert.Equal(t, int64(0), pipeline.Pending())

	// Close is idempotent.
	require.NoError(t, pipeline.Close())

	// Enqueue after close fails without hanging.
	err := pipeline.Enqueue(ctx, newTestPost("late.jpg"))
	require.Error(t, err)
}

func TestPipeline_RetrySucceeds(t *testing.T) {
	storage := &fakePostStorage{}
	storage.failures.Store(1) // first attempt fails, retry succeeds
	pipeline := NewPipeline(arbor.NewLogger(), storage, 10, 10)
	defer pipeline.Close()

	ctx := context.Background()
	require.NoError(t, pipeline.Enqueue(ctx, newTestPost("retry.jpg")))
	require.NoError(t, pipeline.Flush(ctx))

	assert.Equal(t, 1, storage.inserted())
}

func TestPipeline_DropAfterSecondFailure(t *testing.T) {
	storage := &fakePostStorage{}
	storage.failures.Store(2) // both attempts fail; batch is dropped
	pipeline := NewPipeline(arbor.NewLogger(), storage, 10, 10)
	defer pipeline.Close()

	ctx := context.Background()
	require.NoError(t, pipeline.Enqueue(ctx, newTestPost("dropped.jpg")))

	// Flush still completes: a dropped batch clears the pending counter.
	require.NoError(t, pipeline.Flush(ctx))
	assert.Equal(t, int64(0), pipeline.Pending())
	assert.Equal(t, 0, storage.inserted())
}

func TestPipeline_EnqueueHonorsContext(t *testing.T) {
	storage := &fakePostStorage{}
	storage.failures.Store(6) // keep the consumer stuck retrying for a while

	pipeline := NewPipeline(arbor.NewLogger(), storage, 1, 10)
	defer pipeline.Close()

	ctx := context.Background()
	// Fill the buffer past capacity; the consumer is busy sleeping between
	// retries so the channel backs up.
	for i := 0; i < 11; i++ {
		_ = pipeline.Enqueue(ctx, newTestPost(fmt.Sprintf("full%d.jpg", i)))
	}

	cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := pipeline.Enqueue(cancelled, newTestPost("blocked.jpg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeline_ConcurrentProducers(t *testing.T) {
	storage := &fakePostStorage{}
	pipeline := NewPipeline(arbor.NewLogger(), storage, 8, 32)
	defer pipeline.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	producers := 4
	perProducer := 25

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				err := pipeline.Enqueue(ctx, newTestPost(fmt.Sprintf("w%d-%d.jpg", p, i)))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	require.NoError(t, pipeline.Flush(ctx))
	assert.Equal(t, producers*perProducer, storage.inserted())
}
