package models

import (
	"time"
)

// Thresholds partitions confidence scores into match statuses.
// Scores land in exactly one band:
//
//	[Exact, 1.0]         -> EXACT_MATCH
//	[Fuzzy, Exact)       -> FUZZY_MATCH
//	[Partial, Fuzzy)     -> PARTIAL_MATCH
//	[ReviewFloor, Partial) -> PENDING_REVIEW
//	[0, ReviewFloor)     -> NO_MATCH
type Thresholds struct {
	Exact       float64 `json:"exact" validate:"omitempty,gt=0,lte=1"`
	Fuzzy       float64 `json:"fuzzy" validate:"omitempty,gt=0,lte=1"`
	Partial     float64 `json:"partial" validate:"omitempty,gt=0,lte=1"`
	ReviewFloor float64 `json:"review_floor" validate:"gte=0,lte=1"`
}

// Validate checks the ordering invariant ReviewFloor <= Partial <= Fuzzy <= Exact
func (t Thresholds) Validate() bool {
	return t.ReviewFloor <= t.Partial && t.Partial <= t.Fuzzy && t.Fuzzy <= t.Exact
}

// Classify maps a confidence score onto its status band
func (t Thresholds) Classify(score float64) MatchStatus {
	switch {
	case score >= t.Exact:
		return MatchStatusExact
	case score >= t.Fuzzy:
		return MatchStatusFuzzy
	case score >= t.Partial:
		return MatchStatusPartial
	case score >= t.ReviewFloor:
		return MatchStatusPendingReview
	default:
		return MatchStatusNoMatch
	}
}

// BlockingConfig controls candidate generation
type BlockingConfig struct {
	Keys         []BlockingKey `json:"keys" validate:"min=1,dive"`
	MaxBlockSize int           `json:"max_block_size"` // 0 means unlimited
}

// BlockingKey derives a bucket key from a record field
type BlockingKey struct {
	Field      string  `json:"field" validate:"required"`
	Transform  string  `json:"transform"` // "exact", "prefix", "soundex"
	PrefixLen  int     `json:"prefix_len"`
	Normalizer *string `json:"normalizer,omitempty"`
}

// ReconciliationConfig is the per-job tuning block
type ReconciliationConfig struct {
	Thresholds        Thresholds     `json:"thresholds"`
	Blocking          BlockingConfig `json:"blocking" validate:"required"`
	CompareFields     []CompareField `json:"compare_fields" validate:"min=1,dive"`
	ModelName         *string        `json:"model_name,omitempty"`
	MaxProcessingTime time.Duration  `json:"max_processing_time"`
}

// CompareField names a field scored during matching with its weight
type CompareField struct {
	Field      string  `json:"field" validate:"required"`
	Comparator string  `json:"comparator"` // "exact", "jaro_winkler", "levenshtein", "numeric", "date"
	Weight     float64 `json:"weight" validate:"gt=0"`
	Normalizer *string `json:"normalizer,omitempty"`
}

// ReconciliationRequest is the payload to submit a job. RequestID makes
// submission idempotent: resubmitting while the job is non-terminal returns
// the existing job.
type ReconciliationRequest struct {
	RequestID     string               `json:"request_id" validate:"required"`
	Name          string               `json:"name" validate:"required"`
	Type          JobType              `json:"type" validate:"required,oneof=FULL_RECONCILIATION DEDUPLICATION VALIDATION_ONLY"`
	SourceDataset string               `json:"source_dataset" validate:"required"`
	TargetDataset *string              `json:"target_dataset,omitempty"`
	Config        ReconciliationConfig `json:"config"`
	SubmittedBy   *string              `json:"submitted_by,omitempty"`
}
