package events

import (
	"time"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	// Job lifecycle events
	EventTypeJobSubmitted EventType = "job.submitted"
	EventTypeJobStarted   EventType = "job.started"
	EventTypeJobCompleted EventType = "job.completed"
	EventTypeJobFailed    EventType = "job.failed"
	EventTypeJobCancelled EventType = "job.cancelled"

	// Match events
	EventTypeMatchReviewed EventType = "match.reviewed"

	// Entity events
	EventTypeEntityMerged EventType = "entity.merged"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// JobEvent is emitted on every job lifecycle transition
type JobEvent struct {
	BaseEvent
	JobID            string  `json:"job_id"`
	JobName          string  `json:"job_name"`
	Status           string  `json:"status"`
	TotalRecords     int     `json:"total_records,omitempty"`
	MatchedRecords   int     `json:"matched_records,omitempty"`
	UnmatchedRecords int     `json:"unmatched_records,omitempty"`
	ReviewRecords    int     `json:"review_records,omitempty"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

// MatchReviewedEvent is emitted when a reviewer settles a pending match
type MatchReviewedEvent struct {
	BaseEvent
	MatchID    string  `json:"match_id"`
	JobID      string  `json:"job_id"`
	Decision   string  `json:"decision"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	ReviewedBy string  `json:"reviewed_by"`
}

// EntityMergedEvent is emitted when dedup merges records into a golden record
type EntityMergedEvent struct {
	BaseEvent
	GoldenID   string   `json:"golden_id"`
	ClusterID  string   `json:"cluster_id"`
	MergedFrom []string `json:"merged_from"`
	EntityType string   `json:"entity_type"`
	Confidence float64  `json:"confidence"`
}
