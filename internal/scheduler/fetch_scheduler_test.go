package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/pkg/mq"
)

type fakeSourceQueue struct {
	due       []model.Source
	queueable map[string]bool
	queued    []string
	released  []string
	stuck     int64
}

func (f *fakeSourceQueue) ResetStuck(_ context.Context, _ time.Time) (int64, error) {
	return f.stuck, nil
}

func (f *fakeSourceQueue) ListDue(_ context.Context, _ time.Time) ([]model.Source, error) {
	return f.due, nil
}

func (f *fakeSourceQueue) MarkQueued(_ context.Context, id string, _ time.Time) (bool, error) {
	if f.queueable != nil && !f.queueable[id] {
		return false, nil
	}
	f.queued = append(f.queued, id)
	return true, nil
}

func (f *fakeSourceQueue) FinishFetchTransient(_ context.Context, id, _ string) error {
	f.released = append(f.released, id)
	return nil
}

type capturePublisher struct {
	jobs []any
	err  error
}

func (p *capturePublisher) Publish(routingKey string, payload any) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, payload)
	return nil
}

func TestFetchSchedulerQueuesDueSources(t *testing.T) {
	queue := &fakeSourceQueue{
		due: []model.Source{{ID: "src-1"}, {ID: "src-2"}},
	}
	publisher := &capturePublisher{}

	s := NewFetchScheduler(queue, publisher, 15*time.Minute, zap.NewNop())
	s.Tick(context.Background())

	if len(queue.queued) != 2 {
		t.Fatalf("expected 2 sources queued, got %v", queue.queued)
	}
	if len(publisher.jobs) != 2 {
		t.Fatalf("expected 2 fetch jobs, got %d", len(publisher.jobs))
	}
	job, ok := publisher.jobs[0].(mq.SourceFetchJob)
	if !ok || job.SourceID != "src-1" {
		t.Fatalf("unexpected first job %+v", publisher.jobs[0])
	}
}

func TestFetchSchedulerSkipsLostClaims(t *testing.T) {
	queue := &fakeSourceQueue{
		due:       []model.Source{{ID: "src-1"}, {ID: "src-2"}},
		queueable: map[string]bool{"src-2": true},
	}
	publisher := &capturePublisher{}

	s := NewFetchScheduler(queue, publisher, 15*time.Minute, zap.NewNop())
	s.Tick(context.Background())

	if len(publisher.jobs) != 1 {
		t.Fatalf("expected 1 job after lost claim, got %d", len(publisher.jobs))
	}
	if job := publisher.jobs[0].(mq.SourceFetchJob); job.SourceID != "src-2" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestFetchSchedulerReleasesLockOnPublishFailure(t *testing.T) {
	queue := &fakeSourceQueue{due: []model.Source{{ID: "src-1"}}}
	publisher := &capturePublisher{err: errors.New("broker unavailable")}

	s := NewFetchScheduler(queue, publisher, 15*time.Minute, zap.NewNop())
	s.Tick(context.Background())

	if len(queue.released) != 1 || queue.released[0] != "src-1" {
		t.Fatalf("expected fetch lock released, got %v", queue.released)
	}
}

type fakeBriefQueue struct {
	active    []model.Brief
	queueable map[string]bool
	queued    []string
	resets    []string
}

func (f *fakeBriefQueue) ResetStuckQueued(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeBriefQueue) ListActive(_ context.Context) ([]model.Brief, error) {
	return f.active, nil
}

func (f *fakeBriefQueue) MarkQueued(_ context.Context, id string, _ time.Time) (bool, error) {
	if f.queueable != nil && !f.queueable[id] {
		return false, nil
	}
	f.queued = append(f.queued, id)
	return true, nil
}

func (f *fakeBriefQueue) ResetQueued(_ context.Context, id string) error {
	f.resets = append(f.resets, id)
	return nil
}

func TestBriefSchedulerTickQueuesDueBriefs(t *testing.T) {
	executed := time.Now().UTC()
	// The first brief is always past its midnight schedule; the second
	// already executed today, so the window guard holds it back.
	queue := &fakeBriefQueue{active: []model.Brief{
		{ID: "b-due", Frequency: model.FrequencyDaily, ScheduleTime: "00:00", Timezone: "UTC"},
		{ID: "b-done", Frequency: model.FrequencyDaily, ScheduleTime: "00:00", Timezone: "UTC", LastExecutedAt: &executed},
	}}
	publisher := &capturePublisher{}

	s := NewBriefScheduler(queue, publisher, 2*time.Hour, zap.NewNop())
	s.Tick(context.Background())

	if len(publisher.jobs) != 1 {
		t.Fatalf("expected 1 execute job, got %d", len(publisher.jobs))
	}
	job, ok := publisher.jobs[0].(mq.BriefExecuteJob)
	if !ok || job.BriefID != "b-due" {
		t.Fatalf("unexpected job %+v", publisher.jobs[0])
	}
}

func TestQueueBriefPublishFailureResetsStatus(t *testing.T) {
	queue := &fakeBriefQueue{}
	publisher := &capturePublisher{err: errors.New("broker unavailable")}

	s := NewBriefScheduler(queue, publisher, 2*time.Hour, zap.NewNop())
	if err := s.QueueBrief(context.Background(), "b-1", time.Now().UTC()); err == nil {
		t.Fatal("expected publish failure surfaced")
	}
	if len(queue.resets) != 1 || queue.resets[0] != "b-1" {
		t.Fatalf("expected brief reset after publish failure, got %v", queue.resets)
	}
}

func TestQueueBriefLostClaimIsNoop(t *testing.T) {
	queue := &fakeBriefQueue{queueable: map[string]bool{}}
	publisher := &capturePublisher{}

	s := NewBriefScheduler(queue, publisher, 2*time.Hour, zap.NewNop())
	if err := s.QueueBrief(context.Background(), "b-1", time.Now().UTC()); err != nil {
		t.Fatalf("expected nil for lost claim, got %v", err)
	}
	if len(publisher.jobs) != 0 {
		t.Fatal("lost claim must not publish")
	}
}
