package models

import (
	"encoding/json"
	"time"
)

// EntityRecord is a stored record eligible for deduplication. Records that
// survive dedup as the canonical member of a cluster carry IsGoldenRecord.
type EntityRecord struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	Dataset        string          `json:"dataset" db:"dataset"`
	ExternalRef    string          `json:"external_ref" db:"external_ref"`
	EntityType     string          `json:"entity_type" db:"entity_type"`
	Data           json.RawMessage `json:"data" db:"data"`
	IsGoldenRecord bool            `json:"is_golden_record" db:"is_golden_record"`
	ClusterID      *string         `json:"cluster_id,omitempty" db:"cluster_id"`
	MergedIntoID   *string         `json:"merged_into_id,omitempty" db:"merged_into_id"`
	Version        int             `json:"version" db:"version"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// DuplicateCluster groups records that dedup decided refer to the same entity
type DuplicateCluster struct {
	ClusterID string         `json:"cluster_id"`
	GoldenID  string         `json:"golden_id"`
	MemberIDs []string       `json:"member_ids"`
	Scores    map[string]float64 `json:"scores,omitempty"`
}

// DedupResult is what one dedup pass over an incoming record produced
type DedupResult struct {
	RecordID    string   `json:"record_id"`
	Action      string   `json:"action"` // "created", "merged", "updated_golden"
	GoldenID    string   `json:"golden_id"`
	MergedFrom  []string `json:"merged_from,omitempty"`
	Confidence  float64  `json:"confidence"`
	ModelScored bool     `json:"model_scored"`
}
