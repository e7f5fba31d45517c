package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
)

// retryDelay is the pause before the single retry of a failed batch save.
const retryDelay = 500 * time.Millisecond

// Pipeline is the bounded multi-producer, single-consumer queue that
// persists newly discovered posts in batches. One consumer goroutine owns
// the database writes, so scanners never contend on the catalog.
type Pipeline struct {
	posts     interfaces.PostStorage
	logger    arbor.ILogger
	batchSize int

	ch      chan *models.Post
	pending atomic.Int64
	dead    atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewPipeline creates and starts an ingestion pipeline. batchSize is the
// number of posts persisted per catalog round-trip; capacity bounds the
// queue and provides backpressure.
func NewPipeline(logger arbor.ILogger, posts interfaces.PostStorage, batchSize, capacity int) interfaces.IngestPipeline {
	if batchSize < 1 {
		batchSize = 1
	}
	if capacity < 10 {
		capacity = 10
	}

	p := &Pipeline{
		posts:     posts,
		logger:    logger,
		batchSize: batchSize,
		ch:        make(chan *models.Post, capacity),
		done:      make(chan struct{}),
	}
	go p.consume()
	return p
}

// Enqueue submits one post. Blocks while the buffer is full and honors ctx
// cancellation.
func (p *Pipeline) Enqueue(ctx context.Context, post *models.Post) error {
	if p.dead.Load() {
		return fmt.Errorf("ingestion pipeline consumer has stopped")
	}

	p.pending.Add(1)
	select {
	case p.ch <- post:
		return nil
	case <-ctx.Done():
		p.pending.Add(-1)
		return ctx.Err()
	case <-p.done:
		p.pending.Add(-1)
		return fmt.Errorf("ingestion pipeline is closed")
	}
}

// Pending reports the number of posts accepted but not yet persisted or
// dropped.
func (p *Pipeline) Pending() int64 {
	return p.pending.Load()
}

// Flush blocks until every enqueued post has been persisted or dropped.
func (p *Pipeline) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.pending.Load() == 0 {
			return nil
		}
		if p.dead.Load() {
			return fmt.Errorf("ingestion pipeline consumer has stopped")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close marks the queue closed and waits for the consumer to drain the
// remaining items. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.ch)
	})
	<-p.done
	return nil
}

// consume is the single consumer loop: collect up to batchSize posts,
// flushing a partial batch whenever the channel runs momentarily empty.
func (p *Pipeline) consume() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.dead.Store(true)
			p.logger.Error().Str("panic", fmt.Sprint(r)).Msg("Ingestion consumer panicked")
		}
	}()

	batch := make([]*models.Post, 0, p.batchSize)
	for {
		post, ok := <-p.ch
		if !ok {
			p.saveBatch(batch)
			return
		}
		batch = append(batch, post)

		// Drain whatever is immediately available up to the batch size.
		for len(batch) < p.batchSize {
			select {
			case next, ok := <-p.ch:
				if !ok {
					p.saveBatch(batch)
					return
				}
				batch = append(batch, next)
			default:
				goto save
			}
		}
	save:
		p.saveBatch(batch)
		batch = batch[:0]
	}
}

// saveBatch persists one batch, retrying once after a short delay. A batch
// that fails twice is logged and dropped; the scan continues.
func (p *Pipeline) saveBatch(batch []*models.Post) {
	if len(batch) == 0 {
		return
	}
	defer p.pending.Add(-int64(len(batch)))

	ctx := context.Background()
	err := p.posts.InsertPosts(ctx, batch)
	if err == nil {
		return
	}

	p.logger.Warn().Int("batch_size", len(batch)).Err(err).Msg("Batch save failed, retrying")
	time.Sleep(retryDelay)

	if err := p.posts.InsertPosts(ctx, batch); err != nil {
		p.logger.Error().
			Int("batch_size", len(batch)).
			Str("first_path", batch[0].RelativePath).
			Err(err).
			Msg("Batch save failed twice, dropping batch")
	}
}
