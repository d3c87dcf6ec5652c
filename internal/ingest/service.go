package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/internal/service"
	"briefd/internal/urlutil"
	"briefd/pkg/metrics"
	"briefd/pkg/mq"
)

// Extractor is the collaborator that pulls candidate items out of an email.
type Extractor interface {
	ExtractFromEmail(ctx context.Context, subject, content string) ([]service.EmailCandidate, error)
}

// SourceDirectory resolves an inbound address to its EMAIL source.
type SourceDirectory interface {
	FindByEmailAddress(ctx context.Context, address string) (*model.Source, error)
}

// ItemWriter inserts discovered items, reporting guid-dedup misses.
type ItemWriter interface {
	Insert(ctx context.Context, it *model.Item) (bool, error)
}

// AuditLog records inbound email metadata.
type AuditLog interface {
	Create(ctx context.Context, rec *model.InboundEmail) error
}

// BlobStore persists raw email bodies for audit.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// JobPublisher enqueues processing jobs for newly created items.
type JobPublisher interface {
	Publish(routingKey string, payload any) error
}

// InboundEmail is the event delivered by the inbound-email collaborator.
type InboundEmail struct {
	Recipient  string    `json:"recipient"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
	MessageID  string    `json:"message_id"`
}

// Service routes inbound email to its owning EMAIL source and turns the body
// into items. Routing misses are silent drops, not errors; a failed
// extraction still produces a fallback item so no email is lost.
type Service struct {
	sources   SourceDirectory
	items     ItemWriter
	emails    AuditLog
	blob      BlobStore
	extractor Extractor
	publisher JobPublisher
	logger    *zap.Logger
}

func NewService(
	sources SourceDirectory,
	items ItemWriter,
	emails AuditLog,
	blob BlobStore,
	extractor Extractor,
	publisher JobPublisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		sources:   sources,
		items:     items,
		emails:    emails,
		blob:      blob,
		extractor: extractor,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleInbound processes one delivered email end to end.
func (s *Service) HandleInbound(ctx context.Context, msg InboundEmail) error {
	address := normalizeRecipient(msg.Recipient)

	src, err := s.sources.FindByEmailAddress(ctx, address)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Info("Inbound email has no matching source, dropping",
			zap.String("recipient", msg.Recipient),
			zap.String("message_id", msg.MessageID),
		)
		metrics.IncrementEmailIngested("unrouted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup source by address: %w", err)
	}
	if src.Status != model.SourceStatusActive {
		s.logger.Info("Inbound email for inactive source, dropping",
			zap.String("source_id", src.ID),
			zap.String("message_id", msg.MessageID),
		)
		metrics.IncrementEmailIngested("inactive")
		return nil
	}

	s.audit(ctx, msg)

	candidates, err := s.extractor.ExtractFromEmail(ctx, msg.Subject, msg.Content)
	if err != nil {
		// The email is never silently dropped: keep a visible ERROR item.
		s.logger.Warn("Email extraction failed, creating fallback item",
			zap.String("source_id", src.ID),
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		metrics.IncrementEmailIngested("extract_failed")
		return s.createFallbackItem(ctx, src, msg, err)
	}

	created := 0
	for i, cand := range candidates {
		link := ""
		if cand.URL != "" {
			link = urlutil.Normalize(cand.URL)
		} else {
			link = "mailto:" + src.EmailAddress
		}

		it := &model.Item{
			ID:           uuid.NewString(),
			SourceID:     src.ID,
			GUID:         fmt.Sprintf("%s#%d", msg.MessageID, i),
			Title:        cand.Title,
			Link:         link,
			Author:       msg.From,
			PublishedAt:  msg.ReceivedAt,
			RawContent:   msg.Content,
			CleanContent: cand.Summary,
			Status:       model.ItemStatusNew,
		}

		inserted, err := s.items.Insert(ctx, it)
		if err != nil {
			s.logger.Error("Failed to insert email item",
				zap.String("source_id", src.ID),
				zap.String("guid", it.GUID),
				zap.Error(err),
			)
			continue
		}
		if !inserted {
			// Re-delivered email; the guid dedup makes this a no-op.
			continue
		}
		created++

		if err := s.publisher.Publish(mq.RouteItemProcess, mq.ItemProcessJob{ItemID: it.ID}); err != nil {
			// The item stays NEW until the scheduler's item sweep
			// republishes it.
			s.logger.Error("Failed to publish process job for email item",
				zap.String("item_id", it.ID),
				zap.Error(err),
			)
		}
	}

	metrics.IncrementEmailIngested("accepted")
	s.logger.Info("Inbound email ingested",
		zap.String("source_id", src.ID),
		zap.String("message_id", msg.MessageID),
		zap.Int("candidates", len(candidates)),
		zap.Int("created", created),
	)
	return nil
}

// audit stores the raw body in blob storage and the metadata row. Audit
// failures are logged but never block ingestion.
func (s *Service) audit(ctx context.Context, msg InboundEmail) {
	blobKey := "emails/" + msg.MessageID
	if err := s.blob.Put(ctx, blobKey, []byte(msg.Content), "message/rfc822"); err != nil {
		s.logger.Error("Failed to store raw email blob",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}

	rec := &model.InboundEmail{
		ID:         uuid.NewString(),
		MessageID:  msg.MessageID,
		Recipient:  msg.Recipient,
		Sender:     msg.From,
		Subject:    msg.Subject,
		ReceivedAt: msg.ReceivedAt,
		BlobKey:    blobKey,
	}
	if err := s.emails.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to write email audit row",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
}

func (s *Service) createFallbackItem(ctx context.Context, src *model.Source, msg InboundEmail, extractErr error) error {
	title := strings.TrimSpace(msg.Subject)
	if title == "" {
		title = "(no subject)"
	}

	it := &model.Item{
		ID:           uuid.NewString(),
		SourceID:     src.ID,
		GUID:         msg.MessageID + "#fallback",
		Title:        title,
		Link:         "mailto:" + src.EmailAddress,
		Author:       msg.From,
		PublishedAt:  msg.ReceivedAt,
		RawContent:   msg.Content,
		Status:       model.ItemStatusError,
		ErrorMessage: "email extraction failed: " + extractErr.Error(),
	}

	if _, err := s.items.Insert(ctx, it); err != nil {
		return fmt.Errorf("insert fallback item: %w", err)
	}
	return nil
}

// normalizeRecipient lowercases the address and strips a "+tag" suffix from
// the local part so tagged deliveries still route.
func normalizeRecipient(recipient string) string {
	addr := strings.ToLower(strings.TrimSpace(recipient))
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return addr
	}
	local, domain := addr[:at], addr[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	return local + "@" + domain
}
