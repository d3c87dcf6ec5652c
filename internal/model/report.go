package model

import "time"

type ReportStatus string

const (
	ReportStatusGenerated ReportStatus = "GENERATED"
)

// Report is the immutable output of one brief execution. Items carry a dense
// 1..N position, ranked by score descending at generation time.
type Report struct {
	ID          string       `json:"id"`
	BriefID     string       `json:"brief_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Status      ReportStatus `json:"status"`
	Items       []ReportItem `json:"items,omitempty"`
}

type ReportItem struct {
	ReportID string `json:"report_id"`
	ItemID   string `json:"item_id"`
	Position int    `json:"position"`
	Score    int    `json:"score"` // snapshot at generation time
}
