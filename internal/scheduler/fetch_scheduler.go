package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/pkg/mq"
)

// JobPublisher is the queue side the schedulers need.
type JobPublisher interface {
	Publish(routingKey string, payload any) error
}

// SourceQueue is the source surface the fetch scheduler needs.
type SourceQueue interface {
	ResetStuck(ctx context.Context, cutoff time.Time) (int64, error)
	ListDue(ctx context.Context, now time.Time) ([]model.Source, error)
	MarkQueued(ctx context.Context, id string, now time.Time) (bool, error)
	FinishFetchTransient(ctx context.Context, id, errMsg string) error
}

// FetchScheduler periodically selects due sources, claims them with an
// IDLE -> QUEUED compare-and-set, and enqueues one fetch job per source.
// It runs as a single loop, never concurrently with itself; the CAS makes
// an accidental second instance harmless.
type FetchScheduler struct {
	sources      SourceQueue
	publisher    JobPublisher
	stuckTimeout time.Duration
	logger       *zap.Logger
}

func NewFetchScheduler(sources SourceQueue, publisher JobPublisher, stuckTimeout time.Duration, logger *zap.Logger) *FetchScheduler {
	return &FetchScheduler{
		sources:      sources,
		publisher:    publisher,
		stuckTimeout: stuckTimeout,
		logger:       logger,
	}
}

// Tick runs one scheduling pass. Per-source failures are recorded and never
// stop the pass.
func (s *FetchScheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	reset, err := s.sources.ResetStuck(ctx, now.Add(-s.stuckTimeout))
	if err != nil {
		s.logger.Error("Failed to reset stuck sources", zap.Error(err))
	} else if reset > 0 {
		s.logger.Warn("Reset stuck fetch locks", zap.Int64("count", reset))
	}

	due, err := s.sources.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due sources", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	queued := 0
	for _, src := range due {
		ok, err := s.sources.MarkQueued(ctx, src.ID, now)
		if err != nil {
			s.logger.Error("Failed to queue source",
				zap.String("source_id", src.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			// Another scheduler pass won the race.
			continue
		}

		if err := s.publisher.Publish(mq.RouteSourceFetch, mq.SourceFetchJob{SourceID: src.ID}); err != nil {
			s.logger.Error("Failed to publish fetch job, releasing lock",
				zap.String("source_id", src.ID),
				zap.Error(err),
			)
			if rerr := s.sources.FinishFetchTransient(ctx, src.ID, "enqueue failed: "+err.Error()); rerr != nil {
				s.logger.Error("Failed to release fetch lock",
					zap.String("source_id", src.ID),
					zap.Error(rerr),
				)
			}
			continue
		}
		queued++
	}

	s.logger.Info("Fetch scheduling pass complete",
		zap.Int("due", len(due)),
		zap.Int("queued", queued),
	)
}

// Run ticks until the context is cancelled.
func (s *FetchScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Fetch scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
