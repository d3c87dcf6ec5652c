package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"briefd/internal/fetcher"
	"briefd/internal/model"
	"briefd/internal/urlutil"
	"briefd/pkg/metrics"
	"briefd/pkg/mq"
)

// FetchHandler consumes source.fetch jobs: it claims the source, runs the
// type-appropriate fetcher, and persists new items. One source's failure
// never propagates beyond its own job.
type FetchHandler struct {
	sources      SourceStore
	items        ItemStore
	registry     *fetcher.Registry
	publisher    JobPublisher
	fetchTimeout time.Duration
	logger       *zap.Logger
}

func NewFetchHandler(
	sources SourceStore,
	items ItemStore,
	registry *fetcher.Registry,
	publisher JobPublisher,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *FetchHandler {
	return &FetchHandler{
		sources:      sources,
		items:        items,
		registry:     registry,
		publisher:    publisher,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Handle processes one fetch job. It returns nil for every per-source
// failure (the next due cycle retries naturally); a non-nil return would
// requeue the job, which is only correct for infrastructure errors.
func (h *FetchHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	started := time.Now()

	var job mq.SourceFetchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		// Poison payload: drop it instead of requeueing forever.
		h.logger.Error("Invalid fetch job payload, dropping",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return nil
	}

	src, err := h.sources.FindByID(ctx, job.SourceID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Source deleted between queueing and consumption.
		return nil
	}
	if err != nil {
		return err
	}

	ok, err := h.sources.MarkFetching(ctx, src.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		// Re-delivery or stale job: the fetch lock is not ours.
		h.logger.Debug("Fetch claim failed, skipping",
			zap.String("source_id", src.ID),
			zap.String("fetch_status", string(src.FetchStatus)),
		)
		return nil
	}

	h.fetchSource(ctx, src)

	metrics.RecordMQConsumeLatency(mq.RouteSourceFetch, "source.fetch.q", time.Since(started))
	return nil
}

func (h *FetchHandler) fetchSource(ctx context.Context, src *model.Source) {
	f, err := h.registry.Get(src.Type)
	if err != nil {
		// EMAIL or unknown types should never be queued; release the lock.
		h.logger.Error("No fetcher for queued source",
			zap.String("source_id", src.ID),
			zap.String("type", string(src.Type)),
		)
		h.finishTransient(ctx, src.ID, "no fetcher for type "+string(src.Type))
		return
	}

	since := time.Time{}
	if src.LastFetchedAt != nil {
		since = *src.LastFetchedAt
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
	defer cancel()

	result, err := f.Fetch(fetchCtx, src, since)
	if err != nil {
		if errors.Is(err, fetcher.ErrInvalidSource) {
			h.logger.Warn("Source permanently invalid",
				zap.String("source_id", src.ID),
				zap.String("url", src.URL),
				zap.Error(err),
			)
			metrics.IncrementSourceFetch(string(src.Type), "invalid")
			if ferr := h.sources.FinishFetchInvalid(ctx, src.ID, err.Error()); ferr != nil {
				h.logger.Error("Failed to mark source invalid",
					zap.String("source_id", src.ID),
					zap.Error(ferr),
				)
			}
			return
		}

		h.logger.Warn("Source fetch failed, will retry next cycle",
			zap.String("source_id", src.ID),
			zap.String("url", src.URL),
			zap.Error(err),
		)
		metrics.IncrementSourceFetch(string(src.Type), "transient_error")
		h.finishTransient(ctx, src.ID, err.Error())
		return
	}

	if result.NotModified {
		metrics.IncrementSourceFetch(string(src.Type), "not_modified")
	} else {
		metrics.IncrementSourceFetch(string(src.Type), "success")
	}

	created := 0
	for _, fetched := range result.Items {
		it := &model.Item{
			ID:           uuid.NewString(),
			SourceID:     src.ID,
			GUID:         fetched.GUID,
			Title:        fetched.Title,
			Link:         urlutil.Normalize(fetched.Link),
			Author:       fetched.Author,
			PublishedAt:  fetched.PublishedAt,
			RawContent:   fetched.RawContent,
			CleanContent: fetched.CleanContent,
			Status:       model.ItemStatusNew,
		}

		inserted, err := h.items.Insert(ctx, it)
		if err != nil {
			h.logger.Error("Failed to insert item",
				zap.String("source_id", src.ID),
				zap.String("guid", it.GUID),
				zap.Error(err),
			)
			continue
		}
		if !inserted {
			// Duplicate (source_id, guid): seen in an earlier fetch.
			continue
		}
		created++

		if err := h.publisher.Publish(mq.RouteItemProcess, mq.ItemProcessJob{ItemID: it.ID}); err != nil {
			// The item stays NEW; the scheduler's item sweep republishes
			// it, and the fetch itself still succeeded.
			h.logger.Error("Failed to publish process job",
				zap.String("item_id", it.ID),
				zap.Error(err),
			)
		}
	}

	if created > 0 {
		metrics.AddItemsDiscovered(string(src.Type), created)
	}

	if err := h.sources.FinishFetchSuccess(ctx, src.ID, result.ETag, result.LastModified, time.Now().UTC()); err != nil {
		h.logger.Error("Failed to finish fetch",
			zap.String("source_id", src.ID),
			zap.Error(err),
		)
		return
	}

	h.logger.Info("Source fetched",
		zap.String("source_id", src.ID),
		zap.String("type", string(src.Type)),
		zap.Int("items", len(result.Items)),
		zap.Int("new", created),
	)
}

func (h *FetchHandler) finishTransient(ctx context.Context, sourceID, msg string) {
	if err := h.sources.FinishFetchTransient(ctx, sourceID, msg); err != nil {
		h.logger.Error("Failed to release fetch lock",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
	}
}
