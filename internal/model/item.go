package model

import "time"

// ItemStatus tracks an item through the processing state machine.
// Transitions are monotonic (NEW -> PENDING/PROCESSING -> DONE/ERROR) except
// PROCESSING -> PENDING on a transient scoring failure.
type ItemStatus string

const (
	ItemStatusNew        ItemStatus = "NEW"
	ItemStatusPending    ItemStatus = "PENDING"
	ItemStatusProcessing ItemStatus = "PROCESSING"
	ItemStatusDone       ItemStatus = "DONE"
	ItemStatusError      ItemStatus = "ERROR"
)

type Item struct {
	ID             string     `json:"id"`
	SourceID       string     `json:"source_id"`
	GUID           string     `json:"guid"`
	Title          string     `json:"title"`
	Link           string     `json:"link"`
	Author         string     `json:"author,omitempty"`
	PublishedAt    time.Time  `json:"published_at"`
	RawContent     string     `json:"raw_content,omitempty"`
	CleanContent   string     `json:"clean_content,omitempty"`
	WebContent     string     `json:"web_content,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	Topics         []string   `json:"topics,omitempty"`
	Entities       []string   `json:"entities,omitempty"`
	Sentiment      string     `json:"sentiment,omitempty"`
	Score          *int       `json:"score,omitempty"` // 0-100, nil until scored
	ScoreReasoning string     `json:"score_reasoning,omitempty"`
	Status         ItemStatus `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	Saved          bool       `json:"saved"`
	CreatedAt      time.Time  `json:"created_at"`
}
