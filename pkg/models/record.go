package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Record is one dataset row flowing through the pipeline
type Record struct {
	Ref  string         `json:"ref"`
	Data map[string]any `json:"data"`
}

// Field resolves a dot-notation path against the record data and returns
// the value as a string. Missing paths yield an empty string.
func (r Record) Field(path string) string {
	parts := strings.Split(path, ".")
	var current any = r.Data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[part]
		if !ok {
			return ""
		}
	}
	switch v := current.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// DatasetRecord is a raw ingested row persisted before a job picks it up
type DatasetRecord struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	Dataset    string          `json:"dataset" db:"dataset"`
	RecordRef  string          `json:"record_ref" db:"record_ref"`
	Data       json.RawMessage `json:"data" db:"data"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"`
}
