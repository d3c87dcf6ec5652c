package mqhandler

import (
	"context"
	"time"

	"briefd/internal/model"
)

// JobPublisher enqueues follow-up jobs.
type JobPublisher interface {
	Publish(routingKey string, payload any) error
}

// SourceStore is the source surface the fetch pipeline needs.
type SourceStore interface {
	FindByID(ctx context.Context, id string) (*model.Source, error)
	MarkFetching(ctx context.Context, id string, now time.Time) (bool, error)
	FinishFetchSuccess(ctx context.Context, id, etag, lastModified string, now time.Time) error
	FinishFetchTransient(ctx context.Context, id, errMsg string) error
	FinishFetchInvalid(ctx context.Context, id, errMsg string) error
}

// ItemStore is the item surface shared by the fetch and process pipelines.
type ItemStore interface {
	Insert(ctx context.Context, it *model.Item) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Item, error)
	Claim(ctx context.Context, id string) (bool, error)
	SetWebContent(ctx context.Context, id, content string) error
	MarkDone(ctx context.Context, it *model.Item) error
	MarkPending(ctx context.Context, id, errMsg string) error
	MarkError(ctx context.Context, id, errMsg string) error
	ListTopForReport(ctx context.Context, briefID string, since time.Time, limit int) ([]model.Item, error)
}

// BriefStore is the brief surface the process and report pipelines need.
type BriefStore interface {
	FindByID(ctx context.Context, id string) (*model.Brief, error)
	FinishExecution(ctx context.Context, id string, executedAt time.Time) error
}

// ReportStore persists generated reports.
type ReportStore interface {
	CreateWithItems(ctx context.Context, rep *model.Report) error
}

// RetryTracker counts processing attempts across worker restarts.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DedupGuard suppresses concurrent handling of the same entity. Holders
// release the guard when they finish so a later redelivery can run; the
// database status transition is the durable idempotency gate.
type DedupGuard interface {
	AcquireOnce(ctx context.Context, handler, entityID string) bool
	Release(ctx context.Context, handler, entityID string)
}
