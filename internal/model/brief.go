package model

import "time"

type BriefFrequency string

const (
	FrequencyDaily  BriefFrequency = "DAILY"
	FrequencyWeekly BriefFrequency = "WEEKLY"
)

// BriefStatus doubles as the double-queue guard: the scheduler only queues
// ACTIVE briefs, and a brief stays QUEUED until the report worker resets it.
type BriefStatus string

const (
	BriefStatusActive BriefStatus = "ACTIVE"
	BriefStatusPaused BriefStatus = "PAUSED"
	BriefStatusQueued BriefStatus = "QUEUED"
)

type Brief struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Criteria       string         `json:"criteria"`
	Frequency      BriefFrequency `json:"frequency"`
	ScheduleTime   string         `json:"schedule_time"` // "HH:MM" local time of day
	ScheduleDay    *time.Weekday  `json:"schedule_day_of_week,omitempty"`
	Timezone       string         `json:"timezone"`
	LastExecutedAt *time.Time     `json:"last_executed_at,omitempty"`
	QueuedAt       *time.Time     `json:"queued_at,omitempty"`
	Status         BriefStatus    `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}
