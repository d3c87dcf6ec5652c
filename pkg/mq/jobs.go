package mq

// Job payloads carried on the exchange. They identify the unit of work only;
// consumers re-read current entity state so re-delivery of a stale payload
// is harmless.

type SourceFetchJob struct {
	SourceID string `json:"source_id"`
}

type ItemProcessJob struct {
	ItemID string `json:"item_id"`
}

type BriefExecuteJob struct {
	BriefID string `json:"brief_id"`
}
