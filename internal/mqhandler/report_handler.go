package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/pkg/metrics"
	"briefd/pkg/mq"
)

// ReportHandler consumes brief.execute jobs: it aggregates the brief's
// top-scored DONE items since the last execution into an immutable, ranked
// report, then reopens the brief for the next scheduling window.
type ReportHandler struct {
	briefs   BriefStore
	items    ItemStore
	reports  ReportStore
	deduper  DedupGuard
	maxItems int
	logger   *zap.Logger
}

func NewReportHandler(
	briefs BriefStore,
	items ItemStore,
	reports ReportStore,
	deduper DedupGuard,
	maxItems int,
	logger *zap.Logger,
) *ReportHandler {
	return &ReportHandler{
		briefs:   briefs,
		items:    items,
		reports:  reports,
		deduper:  deduper,
		maxItems: maxItems,
		logger:   logger,
	}
}

func (h *ReportHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var job mq.BriefExecuteJob
	if err := json.Unmarshal(raw, &job); err != nil {
		h.logger.Error("Invalid brief job payload, dropping",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return nil
	}

	brief, err := h.briefs.FindByID(ctx, job.BriefID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if brief.Status != model.BriefStatusQueued {
		// Already executed (re-delivery) or reset by the stuck sweep.
		h.logger.Debug("Brief not queued, skipping execution",
			zap.String("brief_id", brief.ID),
			zap.String("status", string(brief.Status)),
		)
		return nil
	}

	// The guard only suppresses concurrent duplicate execution; it is
	// released after every attempt so the redelivery of a nacked job can
	// run. The status check above is what makes an already executed brief
	// a no-op.
	if h.deduper != nil {
		if !h.deduper.AcquireOnce(ctx, "report", brief.ID) {
			return nil
		}
		defer h.deduper.Release(ctx, "report", brief.ID)
	}

	now := time.Now().UTC()
	since := lookbackSince(brief, now)

	top, err := h.items.ListTopForReport(ctx, brief.ID, since, h.maxItems)
	if err != nil {
		// Leave the brief QUEUED; the requeued job retries, the stuck
		// sweep is the backstop.
		return err
	}

	rep := &model.Report{
		ID:          uuid.NewString(),
		BriefID:     brief.ID,
		GeneratedAt: now,
		Status:      model.ReportStatusGenerated,
	}
	for i, it := range top {
		rep.Items = append(rep.Items, model.ReportItem{
			ReportID: rep.ID,
			ItemID:   it.ID,
			Position: i + 1,
			Score:    *it.Score,
		})
	}

	// An empty result set still produces a valid, empty report.
	if err := h.reports.CreateWithItems(ctx, rep); err != nil {
		return err
	}

	if err := h.briefs.FinishExecution(ctx, brief.ID, now); err != nil {
		h.logger.Error("Report written but brief not reopened",
			zap.String("brief_id", brief.ID),
			zap.String("report_id", rep.ID),
			zap.Error(err),
		)
		return err
	}

	metrics.IncrementReportGenerated(string(brief.Frequency))
	h.logger.Info("Report generated",
		zap.String("brief_id", brief.ID),
		zap.String("report_id", rep.ID),
		zap.Int("items", len(rep.Items)),
		zap.Time("since", since),
	)
	return nil
}

// lookbackSince anchors the item window at the previous execution, or one
// schedule period back for a brief that has never run.
func lookbackSince(b *model.Brief, now time.Time) time.Time {
	if b.LastExecutedAt != nil {
		return *b.LastExecutedAt
	}
	if b.Frequency == model.FrequencyWeekly {
		return now.Add(-7 * 24 * time.Hour)
	}
	return now.Add(-24 * time.Hour)
}
