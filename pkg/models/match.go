package models

import (
	"encoding/json"
	"time"
)

// MatchStatus classifies a scored candidate pair
type MatchStatus string

const (
	MatchStatusExact         MatchStatus = "EXACT_MATCH"
	MatchStatusFuzzy         MatchStatus = "FUZZY_MATCH"
	MatchStatusPartial       MatchStatus = "PARTIAL_MATCH"
	MatchStatusNoMatch       MatchStatus = "NO_MATCH"
	MatchStatusPendingReview MatchStatus = "PENDING_REVIEW"
	MatchStatusReviewed      MatchStatus = "REVIEWED"
)

// MatchResult is a scored source/target pair produced by a job
type MatchResult struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	JobID         string          `json:"job_id" db:"job_id"`
	SourceRef     string          `json:"source_ref" db:"source_ref"`
	TargetRef     *string         `json:"target_ref,omitempty" db:"target_ref"`
	Status        MatchStatus     `json:"status" db:"status"`
	Confidence    float64         `json:"confidence" db:"confidence"`
	MatchedFields json.RawMessage `json:"matched_fields,omitempty" db:"matched_fields"`
	Differences   json.RawMessage `json:"differences,omitempty" db:"differences"`
	ModelName     *string         `json:"model_name,omitempty" db:"model_name"`
	ModelVersion  *string         `json:"model_version,omitempty" db:"model_version"`
	ReviewedBy    *string         `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNote    *string         `json:"review_note,omitempty" db:"review_note"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	Version       int             `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// FieldComparison records how a single field compared across the pair
type FieldComparison struct {
	Field       string  `json:"field"`
	SourceValue string  `json:"source_value"`
	TargetValue string  `json:"target_value"`
	Similarity  float64 `json:"similarity"`
}

// ReviewDecision is the reviewer verdict applied to a pending match
type ReviewDecision string

const (
	ReviewDecisionConfirm ReviewDecision = "CONFIRM"
	ReviewDecisionReject  ReviewDecision = "REJECT"
)

// ReviewRequest is the payload for reviewing a pending match
type ReviewRequest struct {
	Decision   ReviewDecision `json:"decision" validate:"required,oneof=CONFIRM REJECT"`
	ReviewedBy string         `json:"reviewed_by" validate:"required"`
	Confidence *float64       `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Note       *string        `json:"note,omitempty"`
	Version    int            `json:"version" validate:"gte=1"`
}

// MatchFilter narrows paged match queries
type MatchFilter struct {
	Status        *MatchStatus `query:"status"`
	MinConfidence *float64     `query:"min_confidence"`
	Page          int          `query:"page"`
	PageSize      int          `query:"page_size"`
}

// MatchPage is one page of match results with paging metadata
type MatchPage struct {
	Items      []MatchResult `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalItems int           `json:"total_items"`
	TotalPages int           `json:"total_pages"`
}
