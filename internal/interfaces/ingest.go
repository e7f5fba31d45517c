package interfaces

import (
	"context"

	"github.com/ternarybob/imago/internal/models"
)

// IngestPipeline is the bounded multi-producer, single-consumer queue that
// persists newly discovered posts in batches.
type IngestPipeline interface {
	// Enqueue submits a fully constructed post. Blocks while the buffer is
	// full (backpressure on scanners) and honors ctx cancellation.
	Enqueue(ctx context.Context, post *models.Post) error

	// Flush blocks until every enqueued post has been persisted or dropped.
	// Returns an error if the consumer has failed catastrophically.
	Flush(ctx context.Context) error

	// Pending reports the number of posts accepted but not yet persisted.
	Pending() int64

	// Close marks the queue closed, drains the remaining items, and stops
	// the consumer. Pending items are not lost.
	Close() error
}
