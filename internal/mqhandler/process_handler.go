package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/internal/service"
	"briefd/pkg/metrics"
	"briefd/pkg/mq"
	"briefd/pkg/util"
)

// Enricher is the scoring collaborator surface the processing worker needs.
type Enricher interface {
	EnrichWithScore(ctx context.Context, req service.EnrichRequest) (*service.EnrichResult, error)
}

// ContentExtractor pulls full article text for an item's link on demand.
type ContentExtractor interface {
	Extract(ctx context.Context, pageURL string) string
}

// ProcessHandler consumes item.process jobs: claim the item, optionally pull
// full web content, score against the owning brief's criteria, and settle
// the item in DONE, PENDING (retry) or ERROR.
type ProcessHandler struct {
	items     ItemStore
	sources   SourceStore
	briefs    BriefStore
	enricher  Enricher
	extractor ContentExtractor

	retryCounter         RetryTracker
	maxRetries           int64
	fullContentThreshold int
	extractTimeout       time.Duration
	logger               *zap.Logger
}

func NewProcessHandler(
	items ItemStore,
	sources SourceStore,
	briefs BriefStore,
	enricher Enricher,
	extractor ContentExtractor,
	retryCounter RetryTracker,
	maxRetries int,
	fullContentThreshold int,
	extractTimeout time.Duration,
	logger *zap.Logger,
) *ProcessHandler {
	return &ProcessHandler{
		items:                items,
		sources:              sources,
		briefs:               briefs,
		enricher:             enricher,
		extractor:            extractor,
		retryCounter:         retryCounter,
		maxRetries:           int64(maxRetries),
		fullContentThreshold: fullContentThreshold,
		extractTimeout:       extractTimeout,
		logger:               logger,
	}
}

func (h *ProcessHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	started := time.Now()

	var job mq.ItemProcessJob
	if err := json.Unmarshal(raw, &job); err != nil {
		h.logger.Error("Invalid process job payload, dropping",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return nil
	}

	// The claim is the only admission gate here: NEW/PENDING -> PROCESSING,
	// atomically. A re-delivered job for an item already in flight or
	// settled fails the claim and is dropped, while a nacked retry finds
	// the item back in PENDING and claims it again. A once-ever guard in
	// front of this would swallow those retries.
	claimed, err := h.items.Claim(ctx, job.ItemID)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.IncrementItemProcessed("skipped")
		return nil
	}

	if err := h.process(ctx, job.ItemID); err != nil {
		return err
	}

	metrics.RecordMQConsumeLatency(mq.RouteItemProcess, "item.process.q", time.Since(started))
	return nil
}

func (h *ProcessHandler) process(ctx context.Context, itemID string) error {
	it, err := h.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		// We hold the claim; put the item back before surfacing the error.
		h.revertToPending(ctx, itemID, "load failed: "+err.Error())
		return err
	}

	src, err := h.sources.FindByID(ctx, it.SourceID)
	if err != nil {
		h.revertToPending(ctx, itemID, "source load failed: "+err.Error())
		return err
	}

	brief, err := h.briefs.FindByID(ctx, src.BriefID)
	if err != nil {
		h.revertToPending(ctx, itemID, "brief load failed: "+err.Error())
		return err
	}

	content := it.CleanContent
	if content == "" {
		content = it.RawContent
	}

	webContent := it.WebContent
	if webContent == "" && h.shouldFetchWebContent(it, content) {
		extractCtx, cancel := context.WithTimeout(ctx, h.extractTimeout)
		webContent = h.extractor.Extract(extractCtx, it.Link)
		cancel()
		if webContent != "" {
			if err := h.items.SetWebContent(ctx, it.ID, webContent); err != nil {
				h.logger.Error("Failed to store web content",
					zap.String("item_id", it.ID),
					zap.Error(err),
				)
			}
		}
	}

	result, err := h.enricher.EnrichWithScore(ctx, service.EnrichRequest{
		Title:      it.Title,
		Content:    content,
		WebContent: webContent,
		Criteria:   brief.Criteria,
	})
	if err != nil {
		return h.handleEnrichError(ctx, it.ID, err)
	}

	it.Summary = result.Summary
	it.Topics = result.Topics
	it.Entities = result.Entities
	it.Sentiment = result.Sentiment
	it.Score = result.Score
	it.ScoreReasoning = result.ScoreReasoning

	if err := h.items.MarkDone(ctx, it); err != nil {
		h.revertToPending(ctx, it.ID, "finalize failed: "+err.Error())
		return err
	}

	h.retryCounter.Reset(ctx, util.FormatRetryKey("process", it.ID))
	metrics.IncrementItemProcessed("done")

	if result.Score == nil {
		// Enrichment without a score is still DONE; the report query's
		// score IS NOT NULL filter keeps such items out of reports.
		h.logger.Info("Item enriched without score",
			zap.String("item_id", it.ID),
		)
	}
	return nil
}

// shouldFetchWebContent skips extraction for non-web links and for items
// whose source already delivered full text.
func (h *ProcessHandler) shouldFetchWebContent(it *model.Item, content string) bool {
	if !strings.HasPrefix(it.Link, "http://") && !strings.HasPrefix(it.Link, "https://") {
		return false
	}
	return len(content) < h.fullContentThreshold
}

// handleEnrichError settles a failed scoring attempt: retryable errors with
// budget left revert the item to PENDING and requeue the job; everything
// else terminates the item in ERROR.
func (h *ProcessHandler) handleEnrichError(ctx context.Context, itemID string, enrichErr error) error {
	retryable, errType := util.IsRetryableError(enrichErr)

	retryKey := util.FormatRetryKey("process", itemID)
	count, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		h.logger.Warn("Retry counter unavailable, treating as first attempt",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
		count = 1
	}

	if util.ShouldRetry(count, h.maxRetries, retryable) {
		h.logger.Warn("Item processing failed, scheduling retry",
			zap.String("item_id", itemID),
			zap.String("error_type", errType),
			zap.Int64("attempt", count),
			zap.Error(enrichErr),
		)
		if err := h.items.MarkPending(ctx, itemID, enrichErr.Error()); err != nil {
			h.logger.Error("Failed to revert item to pending",
				zap.String("item_id", itemID),
				zap.Error(err),
			)
		}
		metrics.IncrementItemProcessed("retried")
		// Non-nil return nacks the job back onto the queue.
		return enrichErr
	}

	h.logger.Error("Item processing failed permanently",
		zap.String("item_id", itemID),
		zap.String("error_type", errType),
		zap.Int64("attempts", count),
		zap.Error(enrichErr),
	)
	if err := h.items.MarkError(ctx, itemID, enrichErr.Error()); err != nil {
		h.logger.Error("Failed to mark item error",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
	}
	h.retryCounter.Reset(ctx, retryKey)
	metrics.IncrementItemProcessed("error")
	return nil
}

func (h *ProcessHandler) revertToPending(ctx context.Context, itemID, msg string) {
	if err := h.items.MarkPending(ctx, itemID, msg); err != nil {
		h.logger.Error("Failed to revert item to pending",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
	}
}
