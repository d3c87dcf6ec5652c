package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"briefd/internal/ingest"
	"briefd/internal/model"
	"briefd/internal/service"
)

type stubDirectory struct {
	source *model.Source
}

func (s *stubDirectory) FindByEmailAddress(_ context.Context, address string) (*model.Source, error) {
	if s.source == nil || s.source.EmailAddress != address {
		return nil, pgx.ErrNoRows
	}
	return s.source, nil
}

type stubItemWriter struct{ count int }

func (s *stubItemWriter) Insert(_ context.Context, _ *model.Item) (bool, error) {
	s.count++
	return true, nil
}

type stubAuditLog struct{}

func (stubAuditLog) Create(_ context.Context, _ *model.InboundEmail) error { return nil }

type stubBlobStore struct{}

func (stubBlobStore) Put(_ context.Context, _ string, _ []byte, _ string) error { return nil }

type stubExtractor struct{}

func (stubExtractor) ExtractFromEmail(_ context.Context, _, _ string) ([]service.EmailCandidate, error) {
	return []service.EmailCandidate{{Title: "Item", Summary: "s", URL: "https://example.com/a"}}, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(_ string, _ any) error { return nil }

func inboundRouter(items *stubItemWriter, src *model.Source) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := ingest.NewService(
		&stubDirectory{source: src},
		items,
		stubAuditLog{},
		stubBlobStore{},
		stubExtractor{},
		stubPublisher{},
		zap.NewNop(),
	)
	h := NewInboundHandler(svc, zap.NewNop())

	r := gin.New()
	r.POST("/inbound/email", h.ReceiveEmail)
	return r
}

func TestReceiveEmailAccepted(t *testing.T) {
	items := &stubItemWriter{}
	src := &model.Source{
		ID:           "src-1",
		Type:         model.SourceTypeEmail,
		Status:       model.SourceStatusActive,
		EmailAddress: "digest-abc@in.briefd.local",
	}
	r := inboundRouter(items, src)

	body := `{
		"recipient": "digest-abc@in.briefd.local",
		"from": "news@sender.io",
		"subject": "Weekly",
		"content": "body",
		"received_at": "2026-07-06T09:00:00Z",
		"message_id": "<m1@sender.io>"
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbound/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if items.count != 1 {
		t.Fatalf("expected 1 item created, got %d", items.count)
	}
}

func TestReceiveEmailUnroutedStillNoContent(t *testing.T) {
	items := &stubItemWriter{}
	r := inboundRouter(items, nil)

	body := `{"recipient":"nobody@in.briefd.local","message_id":"<m2@sender.io>"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inbound/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	// The collaborator must not retry unrouted mail.
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unrouted email, got %d", w.Code)
	}
	if items.count != 0 {
		t.Fatal("unrouted email must not create items")
	}
}

func TestReceiveEmailValidation(t *testing.T) {
	r := inboundRouter(&stubItemWriter{}, nil)

	cases := []string{
		`{not json`,
		`{"recipient":"","message_id":"<m3@sender.io>"}`,
		`{"recipient":"a@b.c","message_id":""}`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/inbound/email", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}
