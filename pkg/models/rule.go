package models

import (
	"encoding/json"
	"time"
)

// RuleType defines what a reconciliation rule does during a run
type RuleType string

const (
	RuleTypeMatching       RuleType = "MATCHING"       // Contributes to candidate scoring
	RuleTypeValidation     RuleType = "VALIDATION"     // Rejects records before matching
	RuleTypeTransformation RuleType = "TRANSFORMATION" // Normalizes a field before comparison
	RuleTypeException      RuleType = "EXCEPTION"      // Forces a pair outcome regardless of score
)

// ReconciliationRule is a tenant-scoped rule applied during a job
type ReconciliationRule struct {
	ID          string          `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	Name        string          `json:"name" db:"name"`
	Description *string         `json:"description,omitempty" db:"description"`
	Type        RuleType        `json:"type" db:"type"`
	Priority    int             `json:"priority" db:"priority"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	Conditions  json.RawMessage `json:"conditions" db:"conditions"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// RuleCondition is a single predicate inside a rule
type RuleCondition struct {
	Field         string   `json:"field"`                // Field name (dot notation)
	Operator      string   `json:"operator"`             // "eq", "neq", "contains", "matches", "gt", "lt"
	Value         string   `json:"value"`                // Comparison value or regex
	Normalizer    *string  `json:"normalizer,omitempty"` // Normalizer to apply before comparison
	Weight        float64  `json:"weight"`               // For MATCHING rules
	CaseSensitive bool     `json:"case_sensitive"`
}

// RuleConditions is a condition set joined by an operator. ForceStatus is
// only meaningful on EXCEPTION rules.
type RuleConditions struct {
	Operator    string          `json:"operator"` // "AND" or "OR"
	Conditions  []RuleCondition `json:"conditions"`
	ForceStatus MatchStatus     `json:"force_status,omitempty"`
}

// CreateRuleRequest is the payload to create a reconciliation rule
type CreateRuleRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description *string         `json:"description,omitempty"`
	Type        RuleType        `json:"type" validate:"required,oneof=MATCHING VALIDATION TRANSFORMATION EXCEPTION"`
	Priority    int             `json:"priority"`
	IsActive    *bool           `json:"is_active,omitempty"`
	Conditions  json.RawMessage `json:"conditions" validate:"required"`
}

// UpdateRuleRequest is the payload to update a reconciliation rule
type UpdateRuleRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
}
