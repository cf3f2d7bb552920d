package models

import (
	"time"
)

// JobStatus is the lifecycle state of a reconciliation job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	}
	return false
}

// JobType defines what the pipeline does with the submitted datasets
type JobType string

const (
	JobTypeFullReconciliation JobType = "FULL_RECONCILIATION" // Match source against target
	JobTypeDeduplication      JobType = "DEDUPLICATION"       // Dedup within a single dataset
	JobTypeValidationOnly     JobType = "VALIDATION_ONLY"     // Validate records, no matching
)

// ReconciliationJob tracks one submitted reconciliation run
type ReconciliationJob struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	RequestID        string     `json:"request_id" db:"request_id"`
	Name             string     `json:"name" db:"name"`
	Type             JobType    `json:"type" db:"type"`
	Status           JobStatus  `json:"status" db:"status"`
	SourceDataset    string     `json:"source_dataset" db:"source_dataset"`
	TargetDataset    *string    `json:"target_dataset,omitempty" db:"target_dataset"`
	TotalRecords     int        `json:"total_records" db:"total_records"`
	ProcessedRecords int        `json:"processed_records" db:"processed_records"`
	MatchedRecords   int        `json:"matched_records" db:"matched_records"`
	UnmatchedRecords int        `json:"unmatched_records" db:"unmatched_records"`
	ReviewRecords    int        `json:"review_records" db:"review_records"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
	SubmittedBy      *string    `json:"submitted_by,omitempty" db:"submitted_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// JobProgress is the counters reported while a job runs
type JobProgress struct {
	TotalRecords     int `json:"total_records"`
	ProcessedRecords int `json:"processed_records"`
	MatchedRecords   int `json:"matched_records"`
	UnmatchedRecords int `json:"unmatched_records"`
	ReviewRecords    int `json:"review_records"`
}

// JobSummary is the result payload returned once a job completes
type JobSummary struct {
	JobID            string        `json:"job_id"`
	Status           JobStatus     `json:"status"`
	TotalRecords     int           `json:"total_records"`
	MatchedRecords   int           `json:"matched_records"`
	UnmatchedRecords int           `json:"unmatched_records"`
	ReviewRecords    int           `json:"review_records"`
	Duration         time.Duration `json:"duration"`
}
