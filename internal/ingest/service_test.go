package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/internal/service"
	"briefd/pkg/mq"
)

type fakeDirectory struct {
	sources map[string]*model.Source
}

func (f *fakeDirectory) FindByEmailAddress(_ context.Context, address string) (*model.Source, error) {
	src, ok := f.sources[address]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return src, nil
}

type fakeItemWriter struct {
	inserted []*model.Item
	seen     map[string]bool
}

func (f *fakeItemWriter) Insert(_ context.Context, it *model.Item) (bool, error) {
	key := it.SourceID + "|" + it.GUID
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	f.inserted = append(f.inserted, it)
	return true, nil
}

type fakeAuditLog struct {
	records []*model.InboundEmail
}

func (f *fakeAuditLog) Create(_ context.Context, rec *model.InboundEmail) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeBlobStore struct {
	keys []string
}

func (f *fakeBlobStore) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.keys = append(f.keys, key)
	return nil
}

type fakeExtractor struct {
	candidates []service.EmailCandidate
	err        error
}

func (f *fakeExtractor) ExtractFromEmail(_ context.Context, _, _ string) ([]service.EmailCandidate, error) {
	return f.candidates, f.err
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	job, ok := payload.(mq.ItemProcessJob)
	if !ok {
		return errors.New("unexpected payload type")
	}
	f.published = append(f.published, routingKey+":"+job.ItemID)
	return nil
}

type ingestFixture struct {
	svc       *Service
	items     *fakeItemWriter
	audit     *fakeAuditLog
	blob      *fakeBlobStore
	publisher *fakePublisher
}

func newFixture(extractor *fakeExtractor, sources map[string]*model.Source) *ingestFixture {
	f := &ingestFixture{
		items:     &fakeItemWriter{},
		audit:     &fakeAuditLog{},
		blob:      &fakeBlobStore{},
		publisher: &fakePublisher{},
	}
	f.svc = NewService(&fakeDirectory{sources: sources}, f.items, f.audit, f.blob, extractor, f.publisher, zap.NewNop())
	return f
}

func emailSource() *model.Source {
	return &model.Source{
		ID:           "src-1",
		Type:         model.SourceTypeEmail,
		Status:       model.SourceStatusActive,
		EmailAddress: "digest-abc@in.briefd.local",
	}
}

func inbound(recipient string) InboundEmail {
	return InboundEmail{
		Recipient:  recipient,
		From:       "newsletter@sender.io",
		Subject:    "Weekly digest",
		Content:    "raw email body",
		ReceivedAt: time.Date(2026, 7, 6, 9, 0, 0, 0, time.UTC),
		MessageID:  "<msg-1@sender.io>",
	}
}

func TestHandleInboundCreatesItems(t *testing.T) {
	extractor := &fakeExtractor{candidates: []service.EmailCandidate{
		{Title: "Story one", Summary: "first summary", URL: "https://Example.com/a/?utm_source=mail"},
		{Title: "Story two", Summary: "second summary"},
	}}
	fix := newFixture(extractor, map[string]*model.Source{
		"digest-abc@in.briefd.local": emailSource(),
	})

	if err := fix.svc.HandleInbound(context.Background(), inbound("digest-abc@in.briefd.local")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(fix.items.inserted) != 2 {
		t.Fatalf("expected 2 items, got %d", len(fix.items.inserted))
	}

	first := fix.items.inserted[0]
	if first.GUID != "<msg-1@sender.io>#0" {
		t.Fatalf("unexpected guid %q", first.GUID)
	}
	if first.Link != "https://example.com/a" {
		t.Fatalf("expected normalized link, got %q", first.Link)
	}
	if first.Status != model.ItemStatusNew {
		t.Fatalf("expected NEW status, got %s", first.Status)
	}
	if first.Author != "newsletter@sender.io" {
		t.Fatalf("unexpected author %q", first.Author)
	}

	// A candidate without a URL links back to the source address.
	second := fix.items.inserted[1]
	if second.Link != "mailto:digest-abc@in.briefd.local" {
		t.Fatalf("expected mailto link, got %q", second.Link)
	}

	if len(fix.publisher.published) != 2 {
		t.Fatalf("expected 2 process jobs, got %d", len(fix.publisher.published))
	}
	for _, p := range fix.publisher.published {
		if !strings.HasPrefix(p, mq.RouteItemProcess+":") {
			t.Fatalf("unexpected routing %q", p)
		}
	}

	// Audit trail: one blob, one metadata row.
	if len(fix.blob.keys) != 1 || fix.blob.keys[0] != "emails/<msg-1@sender.io>" {
		t.Fatalf("unexpected blob keys %v", fix.blob.keys)
	}
	if len(fix.audit.records) != 1 || fix.audit.records[0].BlobKey != fix.blob.keys[0] {
		t.Fatalf("unexpected audit records %+v", fix.audit.records)
	}
}

func TestHandleInboundUnroutedIsSilentDrop(t *testing.T) {
	fix := newFixture(&fakeExtractor{}, map[string]*model.Source{})

	if err := fix.svc.HandleInbound(context.Background(), inbound("nobody@in.briefd.local")); err != nil {
		t.Fatalf("expected nil for unrouted email, got %v", err)
	}
	if len(fix.items.inserted) != 0 || len(fix.audit.records) != 0 {
		t.Fatal("unrouted email must not create items or audit rows")
	}
}

func TestHandleInboundInactiveSourceDrops(t *testing.T) {
	src := emailSource()
	src.Status = model.SourceStatusPaused
	fix := newFixture(&fakeExtractor{}, map[string]*model.Source{src.EmailAddress: src})

	if err := fix.svc.HandleInbound(context.Background(), inbound(src.EmailAddress)); err != nil {
		t.Fatalf("expected nil for inactive source, got %v", err)
	}
	if len(fix.items.inserted) != 0 {
		t.Fatal("inactive source must not create items")
	}
}

func TestHandleInboundExtractionFailureKeepsFallbackItem(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("scoring service 5xx: 503")}
	fix := newFixture(extractor, map[string]*model.Source{
		"digest-abc@in.briefd.local": emailSource(),
	})

	if err := fix.svc.HandleInbound(context.Background(), inbound("digest-abc@in.briefd.local")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(fix.items.inserted) != 1 {
		t.Fatalf("expected fallback item, got %d items", len(fix.items.inserted))
	}
	it := fix.items.inserted[0]
	if it.Status != model.ItemStatusError {
		t.Fatalf("expected ERROR status, got %s", it.Status)
	}
	if it.GUID != "<msg-1@sender.io>#fallback" {
		t.Fatalf("unexpected guid %q", it.GUID)
	}
	if !strings.Contains(it.ErrorMessage, "email extraction failed") {
		t.Fatalf("unexpected error message %q", it.ErrorMessage)
	}
	if len(fix.publisher.published) != 0 {
		t.Fatal("fallback items are not queued for processing")
	}
}

func TestHandleInboundRedeliveryDedups(t *testing.T) {
	extractor := &fakeExtractor{candidates: []service.EmailCandidate{
		{Title: "Story", Summary: "s", URL: "https://example.com/a"},
	}}
	fix := newFixture(extractor, map[string]*model.Source{
		"digest-abc@in.briefd.local": emailSource(),
	})

	msg := inbound("digest-abc@in.briefd.local")
	for i := 0; i < 2; i++ {
		if err := fix.svc.HandleInbound(context.Background(), msg); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	if len(fix.items.inserted) != 1 {
		t.Fatalf("expected guid dedup to keep 1 item, got %d", len(fix.items.inserted))
	}
	if len(fix.publisher.published) != 1 {
		t.Fatalf("expected 1 process job, got %d", len(fix.publisher.published))
	}
}

func TestHandleInboundTaggedRecipientRoutes(t *testing.T) {
	extractor := &fakeExtractor{candidates: []service.EmailCandidate{
		{Title: "Story", Summary: "s", URL: "https://example.com/a"},
	}}
	fix := newFixture(extractor, map[string]*model.Source{
		"digest-abc@in.briefd.local": emailSource(),
	})

	if err := fix.svc.HandleInbound(context.Background(), inbound("Digest-ABC+promo@In.Briefd.Local")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fix.items.inserted) != 1 {
		t.Fatalf("expected tagged recipient to route, got %d items", len(fix.items.inserted))
	}
}

func TestNormalizeRecipient(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"user+tag@example.com", "user@example.com"},
		{"  user@example.com ", "user@example.com"},
		{"no-at-sign", "no-at-sign"},
		{"a+b+c@example.com", "a@example.com"},
	}
	for _, tc := range cases {
		if got := normalizeRecipient(tc.in); got != tc.want {
			t.Fatalf("normalizeRecipient(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
