package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"briefd/pkg/mq"
)

// ItemQueue is the item surface the requeue sweep needs.
type ItemQueue interface {
	ListRequeueable(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// ItemSweeper republishes processing jobs for items stranded in NEW or
// PENDING. An item normally rides its own message through the pipeline; it
// only strands when the publish after insert failed or a nacked retry was
// lost with the broker. Duplicate jobs are harmless, the claim on the
// consumer side admits exactly one.
type ItemSweeper struct {
	items     ItemQueue
	publisher JobPublisher
	minAge    time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewItemSweeper(items ItemQueue, publisher JobPublisher, minAge time.Duration, batchSize int, logger *zap.Logger) *ItemSweeper {
	return &ItemSweeper{
		items:     items,
		publisher: publisher,
		minAge:    minAge,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Tick runs one sweep pass. The age floor keeps the sweep off items whose
// job is still in flight on the queue.
func (s *ItemSweeper) Tick(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.minAge)

	ids, err := s.items.ListRequeueable(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list stranded items", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	requeued := 0
	for _, id := range ids {
		if err := s.publisher.Publish(mq.RouteItemProcess, mq.ItemProcessJob{ItemID: id}); err != nil {
			// The broker is unhappy; stop the pass, the next tick retries.
			s.logger.Error("Failed to republish process job",
				zap.String("item_id", id),
				zap.Error(err),
			)
			break
		}
		requeued++
	}

	s.logger.Warn("Requeued stranded items",
		zap.Int("found", len(ids)),
		zap.Int("requeued", requeued),
	)
}

// Run ticks until the context is cancelled.
func (s *ItemSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Item sweeper stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
