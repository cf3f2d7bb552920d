// Package rules evaluates tenant reconciliation rules during a job run.
// Validation rules reject records before matching, transformation rules
// normalize fields, matching rules contribute compare fields to scoring,
// and exception rules force a pair outcome regardless of score.
package rules

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
)

type compiledRule struct {
	rule       models.ReconciliationRule
	conditions models.RuleConditions
	patterns   map[int]*regexp.Regexp
}

// Engine evaluates a compiled, priority-ordered rule set
type Engine struct {
	validation     []compiledRule
	transformation []compiledRule
	matching       []compiledRule
	exception      []compiledRule
}

// NewEngine compiles active rules, ordered by descending priority
func NewEngine(ruleSet []models.ReconciliationRule) (*Engine, error) {
	active := make([]models.ReconciliationRule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.IsActive && r.DeletedAt == nil {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})

	engine := &Engine{}
	for _, r := range active {
		var conditions models.RuleConditions
		if err := json.Unmarshal(r.Conditions, &conditions); err != nil {
			return nil, sageerrors.NewConfiguration("rule %q has invalid conditions: %v", r.Name, err)
		}

		compiled := compiledRule{rule: r, conditions: conditions, patterns: make(map[int]*regexp.Regexp)}
		for i, cond := range conditions.Conditions {
			if cond.Operator == "matches" {
				re, err := regexp.Compile(cond.Value)
				if err != nil {
					return nil, sageerrors.NewConfiguration("rule %q condition %d has invalid pattern: %v", r.Name, i, err)
				}
				compiled.patterns[i] = re
			}
		}

		switch r.Type {
		case models.RuleTypeValidation:
			engine.validation = append(engine.validation, compiled)
		case models.RuleTypeTransformation:
			engine.transformation = append(engine.transformation, compiled)
		case models.RuleTypeMatching:
			engine.matching = append(engine.matching, compiled)
		case models.RuleTypeException:
			if compiled.conditions.ForceStatus == "" {
				return nil, sageerrors.NewConfiguration("exception rule %q has no force_status", r.Name)
			}
			engine.exception = append(engine.exception, compiled)
		default:
			return nil, sageerrors.NewConfiguration("rule %q has unknown type %q", r.Name, r.Type)
		}
	}
	return engine, nil
}

// Validate runs validation rules against a record. The first failing rule
// produces a validation error naming the rule.
func (e *Engine) Validate(rec models.Record) error {
	for _, cr := range e.validation {
		if !cr.evaluate(rec) {
			return sageerrors.NewValidation("record %q failed validation rule %q", rec.Ref, cr.rule.Name)
		}
	}
	return nil
}

// Transform applies transformation rules to a record, returning a copy with
// normalized field values. The input record is not modified.
func (e *Engine) Transform(rec models.Record) models.Record {
	if len(e.transformation) == 0 {
		return rec
	}

	data := make(map[string]any, len(rec.Data))
	for k, v := range rec.Data {
		data[k] = v
	}
	out := models.Record{Ref: rec.Ref, Data: data}

	for _, cr := range e.transformation {
		for _, cond := range cr.conditions.Conditions {
			if cond.Normalizer == nil {
				continue
			}
			if value := out.Field(cond.Field); value != "" {
				setField(out.Data, cond.Field, normalizers.Apply(value, *cond.Normalizer))
			}
		}
	}
	return out
}

// CompareFields derives extra compare fields from matching rules, merged
// into the job's configured field set by the orchestrator.
func (e *Engine) CompareFields() []models.CompareField {
	var fields []models.CompareField
	for _, cr := range e.matching {
		for _, cond := range cr.conditions.Conditions {
			weight := cond.Weight
			if weight <= 0 {
				weight = 1.0
			}
			fields = append(fields, models.CompareField{
				Field:      cond.Field,
				Comparator: comparatorFor(cond.Operator),
				Weight:     weight,
				Normalizer: cond.Normalizer,
			})
		}
	}
	return fields
}

// ForcedStatus returns the outcome of the highest-priority exception rule
// matching both records of a pair, if any.
func (e *Engine) ForcedStatus(source, target models.Record) (models.MatchStatus, bool) {
	for _, cr := range e.exception {
		if cr.evaluate(source) && cr.evaluate(target) {
			return cr.conditions.ForceStatus, true
		}
	}
	return "", false
}

func (cr compiledRule) evaluate(rec models.Record) bool {
	if len(cr.conditions.Conditions) == 0 {
		return true
	}

	anyMode := strings.EqualFold(cr.conditions.Operator, "OR")
	for i, cond := range cr.conditions.Conditions {
		ok := cr.evaluateCondition(i, cond, rec)
		if anyMode && ok {
			return true
		}
		if !anyMode && !ok {
			return false
		}
	}
	return !anyMode
}

func (cr compiledRule) evaluateCondition(idx int, cond models.RuleCondition, rec models.Record) bool {
	value := rec.Field(cond.Field)
	if cond.Normalizer != nil {
		value = normalizers.Apply(value, *cond.Normalizer)
	}

	expected := cond.Value
	if !cond.CaseSensitive {
		value = strings.ToLower(value)
		expected = strings.ToLower(expected)
	}

	switch cond.Operator {
	case "eq":
		return value == expected
	case "neq":
		return value != expected
	case "contains":
		return strings.Contains(value, expected)
	case "matches":
		return cr.patterns[idx].MatchString(value)
	case "gt", "lt":
		actual, err1 := strconv.ParseFloat(value, 64)
		bound, err2 := strconv.ParseFloat(expected, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if cond.Operator == "gt" {
			return actual > bound
		}
		return actual < bound
	case "present":
		return value != ""
	default:
		return false
	}
}

func comparatorFor(operator string) string {
	switch operator {
	case "eq":
		return "exact"
	default:
		return "jaro_winkler"
	}
}

// setField writes a value back through a dot-notation path. Nested maps
// are cloned on the way down so the caller's record stays untouched.
func setField(data map[string]any, path string, value string) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next := make(map[string]any)
		if existing, ok := current[part].(map[string]any); ok {
			for k, v := range existing {
				next[k] = v
			}
		}
		current[part] = next
		current = next
	}
	current[parts[len(parts)-1]] = value
}
