// Package scoring compares candidate record pairs and produces confidence
// scores. A Matcher combines per-field similarity with an optional learned
// pairwise model signal.
package scoring

import (
	"strconv"
	"time"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
)

// Model scores a feature vector of per-field similarities. Implementations
// must be safe for concurrent use.
type Model interface {
	Name() string
	Version() string
	Score(features map[string]float64) float64
}

// PairScore is the outcome of comparing one candidate pair
type PairScore struct {
	Confidence   float64
	FieldScores  []models.FieldComparison
	ModelName    *string
	ModelVersion *string
}

// MatchedFields returns the comparisons that cleared the matched threshold
func (p PairScore) MatchedFields() []models.FieldComparison {
	var out []models.FieldComparison
	for _, fc := range p.FieldScores {
		if fc.Similarity >= matchedFieldThreshold {
			out = append(out, fc)
		}
	}
	return out
}

// Differences returns the comparisons below the matched threshold
func (p PairScore) Differences() []models.FieldComparison {
	var out []models.FieldComparison
	for _, fc := range p.FieldScores {
		if fc.Similarity < matchedFieldThreshold {
			out = append(out, fc)
		}
	}
	return out
}

// A field counts as matched when its similarity clears this bar
const matchedFieldThreshold = 0.95

const dateProximityMaxDays = 30

// Matcher scores candidate pairs against a configured field set
type Matcher struct {
	scorer *Scorer
	fields []models.CompareField
	model  Model
}

// NewMatcher creates a Matcher. model may be nil, in which case confidence
// is the weighted average of field similarities.
func NewMatcher(fields []models.CompareField, model Model) (*Matcher, error) {
	if len(fields) == 0 {
		return nil, sageerrors.NewConfiguration("at least one compare field is required")
	}
	for _, f := range fields {
		if f.Weight <= 0 {
			return nil, sageerrors.NewConfiguration("compare field %q has non-positive weight %f", f.Field, f.Weight)
		}
	}
	return &Matcher{
		scorer: NewScorer(),
		fields: fields,
		model:  model,
	}, nil
}

// Score compares a source/target pair and returns its confidence
func (m *Matcher) Score(source, target models.Record) PairScore {
	scores := make(map[string]float64, len(m.fields))
	weights := make(map[string]float64, len(m.fields))
	fieldScores := make([]models.FieldComparison, 0, len(m.fields))

	for _, f := range m.fields {
		sv := source.Field(f.Field)
		tv := target.Field(f.Field)
		if f.Normalizer != nil {
			sv = normalizers.Apply(sv, *f.Normalizer)
			tv = normalizers.Apply(tv, *f.Normalizer)
		}

		sim := m.compare(f.Comparator, sv, tv)
		scores[f.Field] = sim
		weights[f.Field] = f.Weight
		fieldScores = append(fieldScores, models.FieldComparison{
			Field:       f.Field,
			SourceValue: sv,
			TargetValue: tv,
			Similarity:  sim,
		})
	}

	score := PairScore{FieldScores: fieldScores}
	if m.model != nil {
		score.Confidence = m.model.Score(scores)
		name := m.model.Name()
		version := m.model.Version()
		score.ModelName = &name
		score.ModelVersion = &version
	} else {
		score.Confidence = m.scorer.WeightedScore(scores, weights)
	}
	return score
}

func (m *Matcher) compare(comparator, a, b string) float64 {
	if a == "" && b == "" {
		return 0.0
	}

	switch comparator {
	case "exact":
		return m.scorer.ExactMatch(a, b, false)
	case "levenshtein":
		return m.scorer.Levenshtein(a, b)
	case "soundex":
		return m.scorer.SoundexMatch(a, b)
	case "numeric":
		av, aErr := strconv.ParseFloat(a, 64)
		bv, bErr := strconv.ParseFloat(b, 64)
		if aErr != nil || bErr != nil {
			return 0.0
		}
		return m.scorer.NumericProximity(av, bv)
	case "date":
		av, aErr := parseDate(a)
		bv, bErr := parseDate(b)
		if aErr != nil || bErr != nil {
			return 0.0
		}
		return m.scorer.DateProximity(av, bv, dateProximityMaxDays)
	default:
		return m.scorer.JaroWinkler(a, b)
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
