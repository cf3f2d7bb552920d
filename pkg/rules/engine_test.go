package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
)

func strPtr(s string) *string { return &s }

func rule(name string, ruleType models.RuleType, priority int, conditions models.RuleConditions) models.ReconciliationRule {
	raw, _ := json.Marshal(conditions)
	return models.ReconciliationRule{
		ID:         "id-" + name,
		TenantID:   "t1",
		Name:       name,
		Type:       ruleType,
		Priority:   priority,
		IsActive:   true,
		Conditions: raw,
	}
}

func TestValidate_FailingRuleNamesRule(t *testing.T) {
	engine, err := NewEngine([]models.ReconciliationRule{
		rule("require-email", models.RuleTypeValidation, 10, models.RuleConditions{
			Operator:   "AND",
			Conditions: []models.RuleCondition{{Field: "email", Operator: "present"}},
		}),
	})
	require.NoError(t, err)

	err = engine.Validate(models.Record{Ref: "r1", Data: map[string]any{"name": "Acme"}})
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindValidation))
	assert.Contains(t, err.Error(), "require-email")

	assert.NoError(t, engine.Validate(models.Record{Ref: "r2", Data: map[string]any{"email": "a@b.com"}}))
}

func TestTransform_NormalizesWithoutMutatingInput(t *testing.T) {
	engine, err := NewEngine([]models.ReconciliationRule{
		rule("normalize-phone", models.RuleTypeTransformation, 0, models.RuleConditions{
			Conditions: []models.RuleCondition{{Field: "contact.phone", Normalizer: strPtr("nphone")}},
		}),
	})
	require.NoError(t, err)

	input := models.Record{Ref: "r1", Data: map[string]any{
		"contact": map[string]any{"phone": "(555) 123-4567"},
	}}

	out := engine.Transform(input)

	assert.Equal(t, "5551234567", out.Field("contact.phone"))
	assert.Equal(t, "(555) 123-4567", input.Field("contact.phone"))
}

func TestForcedStatus_HighestPriorityWins(t *testing.T) {
	engine, err := NewEngine([]models.ReconciliationRule{
		rule("block-test-accounts", models.RuleTypeException, 5, models.RuleConditions{
			Conditions:  []models.RuleCondition{{Field: "type", Operator: "eq", Value: "test"}},
			ForceStatus: models.MatchStatusNoMatch,
		}),
		rule("confirm-same-tax-id", models.RuleTypeException, 10, models.RuleConditions{
			Conditions:  []models.RuleCondition{{Field: "tax_id", Operator: "present"}},
			ForceStatus: models.MatchStatusExact,
		}),
	})
	require.NoError(t, err)

	source := models.Record{Ref: "s", Data: map[string]any{"type": "test", "tax_id": "12-345"}}
	target := models.Record{Ref: "t", Data: map[string]any{"type": "test", "tax_id": "12-345"}}

	status, forced := engine.ForcedStatus(source, target)
	require.True(t, forced)
	assert.Equal(t, models.MatchStatusExact, status)

	_, forced = engine.ForcedStatus(
		models.Record{Ref: "s", Data: map[string]any{"name": "Acme"}},
		models.Record{Ref: "t", Data: map[string]any{"name": "Acme"}},
	)
	assert.False(t, forced)
}

func TestCompareFields_FromMatchingRules(t *testing.T) {
	engine, err := NewEngine([]models.ReconciliationRule{
		rule("match-on-email", models.RuleTypeMatching, 0, models.RuleConditions{
			Conditions: []models.RuleCondition{
				{Field: "email", Operator: "eq", Weight: 2.0, Normalizer: strPtr("nemail")},
				{Field: "name", Weight: 0},
			},
		}),
	})
	require.NoError(t, err)

	fields := engine.CompareFields()
	require.Len(t, fields, 2)
	assert.Equal(t, "exact", fields[0].Comparator)
	assert.Equal(t, 2.0, fields[0].Weight)
	assert.Equal(t, "jaro_winkler", fields[1].Comparator)
	assert.Equal(t, 1.0, fields[1].Weight)
}

func TestNewEngine_RejectsBadRules(t *testing.T) {
	bad := models.ReconciliationRule{Name: "broken", Type: models.RuleTypeValidation, IsActive: true, Conditions: json.RawMessage(`{`)}
	_, err := NewEngine([]models.ReconciliationRule{bad})
	assert.Error(t, err)

	_, err = NewEngine([]models.ReconciliationRule{
		rule("no-outcome", models.RuleTypeException, 0, models.RuleConditions{
			Conditions: []models.RuleCondition{{Field: "x", Operator: "present"}},
		}),
	})
	assert.Error(t, err)

	_, err = NewEngine([]models.ReconciliationRule{
		rule("bad-regex", models.RuleTypeValidation, 0, models.RuleConditions{
			Conditions: []models.RuleCondition{{Field: "x", Operator: "matches", Value: "("}},
		}),
	})
	assert.Error(t, err)
}

func TestInactiveAndDeletedRulesIgnored(t *testing.T) {
	inactive := rule("inactive", models.RuleTypeValidation, 0, models.RuleConditions{
		Conditions: []models.RuleCondition{{Field: "email", Operator: "present"}},
	})
	inactive.IsActive = false

	engine, err := NewEngine([]models.ReconciliationRule{inactive})
	require.NoError(t, err)
	assert.NoError(t, engine.Validate(models.Record{Ref: "r1", Data: map[string]any{}}))
}
