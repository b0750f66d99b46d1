package models

import "time"

// Event types
const (
	EventTypeSyncCompleted = "SYNC_COMPLETED"
	EventTypeSyncRequested = "SYNC_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncCompletedEvent published after every sync log row is written
type SyncCompletedEvent struct {
	BaseEvent
	SyncLogID        string  `json:"sync_log_id"`
	TenantID         string  `json:"tenant_id"`
	EntityType       string  `json:"entity_type"`
	Status           string  `json:"status"`
	RecordsProcessed int     `json:"records_processed"`
	RecordsFailed    int     `json:"records_failed"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

// SyncRequestedEvent asks the engine to sync one tenant outside the schedule
type SyncRequestedEvent struct {
	BaseEvent
	TenantID string `json:"tenant_id"`
	Source   string `json:"source,omitempty"`
}
