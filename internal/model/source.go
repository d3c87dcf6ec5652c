package model

import "time"

type SourceType string

const (
	SourceTypeFeed       SourceType = "FEED"
	SourceTypeSocialLink SourceType = "SOCIAL_LINK"
	SourceTypeEmail      SourceType = "EMAIL"
	SourceTypeWeb        SourceType = "WEB"
)

type SourceStatus string

const (
	SourceStatusActive SourceStatus = "ACTIVE"
	SourceStatusPaused SourceStatus = "PAUSED"
	SourceStatusError  SourceStatus = "ERROR"
)

// FetchStatus encodes the single-flight fetch lock: exactly one in-flight
// fetch per source. Transitions are IDLE -> QUEUED -> FETCHING -> IDLE,
// enforced by conditional updates in the repository.
type FetchStatus string

const (
	FetchStatusIdle     FetchStatus = "IDLE"
	FetchStatusQueued   FetchStatus = "QUEUED"
	FetchStatusFetching FetchStatus = "FETCHING"
)

type Source struct {
	ID                     string       `json:"id"`
	BriefID                string       `json:"brief_id"`
	Type                   SourceType   `json:"type"`
	Name                   string       `json:"name"`
	Status                 SourceStatus `json:"status"`
	FetchStatus            FetchStatus  `json:"fetch_status"`
	URL                    string       `json:"url"`
	ETag                   string       `json:"etag,omitempty"`
	LastModified           string       `json:"last_modified,omitempty"`
	RefreshIntervalMinutes int          `json:"refresh_interval_minutes"`
	QueuedAt               *time.Time   `json:"queued_at,omitempty"`
	FetchStartedAt         *time.Time   `json:"fetch_started_at,omitempty"`
	LastFetchedAt          *time.Time   `json:"last_fetched_at,omitempty"`
	LastError              string       `json:"last_error,omitempty"`
	EmailAddress           string       `json:"email_address,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
}
