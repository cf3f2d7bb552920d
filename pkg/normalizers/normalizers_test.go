package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCompany(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Acme Corp", "acme"},
		{"Acme Corporation", "acme"},
		{"ACME CORP.", "acme"},
		{"Acme, Inc.", "acme"},
		{"Globex Holdings LLC", "globex holdings"},
		{"Initech", "initech"},
		{"Corp", "corp"}, // never strip the last remaining word
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeCompany(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "john smith", NormalizeName("John Smith Jr."))
	assert.Equal(t, "jane o brien", NormalizeName("Jane O'Brien, PhD"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "15551234567", NormalizePhone("+1 (555) 123-4567"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "123 main st ste 400", NormalizeAddress("123 Main Street, Suite 400"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "acmecorp", ApplyChain("  Acme Corp ", "trim", "lowercase", "remove_whitespace"))
}

func TestApply_UnknownNormalizerPassesThrough(t *testing.T) {
	assert.Equal(t, "Value", Apply("Value", "does_not_exist"))
}
