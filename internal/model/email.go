package model

import "time"

// InboundEmail is the audit record for one delivered email. The raw body
// lives in blob storage under BlobKey; this row keeps the routing metadata.
type InboundEmail struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	Recipient  string    `json:"recipient"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	BlobKey    string    `json:"blob_key"`
	CreatedAt  time.Time `json:"created_at"`
}
