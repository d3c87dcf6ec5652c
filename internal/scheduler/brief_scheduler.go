package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/pkg/mq"
)

// BriefQueue is the brief surface the brief scheduler needs.
type BriefQueue interface {
	ResetStuckQueued(ctx context.Context, cutoff time.Time) (int64, error)
	ListActive(ctx context.Context) ([]model.Brief, error)
	MarkQueued(ctx context.Context, id string, now time.Time) (bool, error)
	ResetQueued(ctx context.Context, id string) error
}

// BriefScheduler periodically evaluates which briefs are due in their own
// timezone, claims them with an ACTIVE -> QUEUED compare-and-set, and
// enqueues one execution job per brief.
type BriefScheduler struct {
	briefs       BriefQueue
	publisher    JobPublisher
	stuckTimeout time.Duration
	logger       *zap.Logger
}

func NewBriefScheduler(briefs BriefQueue, publisher JobPublisher, stuckTimeout time.Duration, logger *zap.Logger) *BriefScheduler {
	return &BriefScheduler{
		briefs:       briefs,
		publisher:    publisher,
		stuckTimeout: stuckTimeout,
		logger:       logger,
	}
}

// IsDue reports whether a brief should execute at nowUTC:
//
//  1. nowUTC is converted to the brief's timezone; an invalid timezone falls
//     back to UTC.
//  2. A WEEKLY brief with a set day-of-week only fires on that local day; a
//     nil day means any day qualifies.
//  3. The local time of day must have reached the brief's schedule time.
//  4. A brief already executed in the current window (same local day for
//     DAILY, within the last six days for WEEKLY) is not due again.
func IsDue(b *model.Brief, nowUTC time.Time) bool {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil || b.Timezone == "" {
		loc = time.UTC
	}
	localNow := nowUTC.In(loc)

	if b.Frequency == model.FrequencyWeekly && b.ScheduleDay != nil && localNow.Weekday() != *b.ScheduleDay {
		return false
	}

	schedMinutes, err := parseScheduleTime(b.ScheduleTime)
	if err != nil {
		// An unparseable schedule time behaves like midnight.
		schedMinutes = 0
	}
	if localNow.Hour()*60+localNow.Minute() < schedMinutes {
		return false
	}

	if b.LastExecutedAt != nil {
		lastLocal := b.LastExecutedAt.In(loc)
		switch b.Frequency {
		case model.FrequencyDaily:
			if sameLocalDay(lastLocal, localNow) {
				return false
			}
		case model.FrequencyWeekly:
			if localNow.Sub(lastLocal) < 6*24*time.Hour {
				return false
			}
		}
	}

	return true
}

func parseScheduleTime(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, err
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("schedule time out of range: %q", s)
	}
	return hh*60 + mm, nil
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Tick runs one scheduling pass over all ACTIVE briefs.
func (s *BriefScheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	reset, err := s.briefs.ResetStuckQueued(ctx, now.Add(-s.stuckTimeout))
	if err != nil {
		s.logger.Error("Failed to reset stuck briefs", zap.Error(err))
	} else if reset > 0 {
		s.logger.Warn("Reset abandoned queued briefs", zap.Int64("count", reset))
	}

	briefs, err := s.briefs.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active briefs", zap.Error(err))
		return
	}

	queued := 0
	for i := range briefs {
		b := &briefs[i]
		if !IsDue(b, now) {
			continue
		}

		if err := s.QueueBrief(ctx, b.ID, now); err != nil {
			s.logger.Error("Failed to queue brief",
				zap.String("brief_id", b.ID),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.Info("Brief scheduling pass complete",
			zap.Int("evaluated", len(briefs)),
			zap.Int("queued", queued),
		)
	}
}

// QueueBrief claims a brief and enqueues its execution job. It backs the
// scheduler pass and the execute-now API trigger; the CAS makes both paths
// race-safe.
func (s *BriefScheduler) QueueBrief(ctx context.Context, briefID string, now time.Time) error {
	ok, err := s.briefs.MarkQueued(ctx, briefID, now)
	if err != nil {
		return err
	}
	if !ok {
		// Already queued or paused; nothing to do.
		return nil
	}

	if err := s.publisher.Publish(mq.RouteBriefExecute, mq.BriefExecuteJob{BriefID: briefID}); err != nil {
		if rerr := s.briefs.ResetQueued(ctx, briefID); rerr != nil {
			s.logger.Error("Failed to reset brief after publish failure",
				zap.String("brief_id", briefID),
				zap.Error(rerr),
			)
		}
		return fmt.Errorf("publish brief job: %w", err)
	}
	return nil
}

// Run ticks until the context is cancelled.
func (s *BriefScheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Brief scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
