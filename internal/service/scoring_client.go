package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"briefd/pkg/metrics"
)

// ScoringClient talks to the scoring/extraction collaborator service. All
// calls carry the client's hard timeout; a stalled call affects only the
// worker holding it.
type ScoringClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewScoringClient(baseURL string, timeout time.Duration) *ScoringClient {
	return &ScoringClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type EnrichRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	WebContent string `json:"web_content,omitempty"`
	Criteria   string `json:"criteria"`
}

// EnrichResult is the collaborator's verdict. Score may be absent: the item
// still counts as enriched but is excluded from reports.
type EnrichResult struct {
	Summary        string   `json:"summary"`
	Topics         []string `json:"topics"`
	Entities       []string `json:"entities"`
	Sentiment      string   `json:"sentiment"`
	Score          *int     `json:"score"`
	ScoreReasoning string   `json:"score_reasoning"`
}

// EnrichWithScore scores one item against the brief's interest criteria.
func (c *ScoringClient) EnrichWithScore(ctx context.Context, req EnrichRequest) (*EnrichResult, error) {
	var result EnrichResult
	if err := c.post(ctx, "/enrich", req, &result); err != nil {
		return nil, err
	}
	if result.Score != nil && (*result.Score < 0 || *result.Score > 100) {
		return nil, fmt.Errorf("scoring service returned out-of-range score %d", *result.Score)
	}
	return &result, nil
}

type EmailCandidate struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}

type extractRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

type extractResponse struct {
	Candidates []EmailCandidate `json:"candidates"`
}

// ExtractFromEmail pulls 0..K candidate items out of an email body.
func (c *ScoringClient) ExtractFromEmail(ctx context.Context, subject, content string) ([]EmailCandidate, error) {
	var result extractResponse
	if err := c.post(ctx, "/extract", extractRequest{Subject: subject, Content: content}, &result); err != nil {
		return nil, err
	}
	return result.Candidates, nil
}

func (c *ScoringClient) post(ctx context.Context, endpoint string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordCollaboratorCallLatency(endpoint, "error", time.Since(start))
		return fmt.Errorf("failed to call scoring service: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordCollaboratorCallLatency(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("scoring service 5xx: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scoring service error: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scoring service response decode: %w", err)
	}
	return nil
}
