package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.JaroWinkler("acme", "acme"))
	assert.Equal(t, 0.0, s.JaroWinkler("", "acme"))

	// Shared prefix boosts the score above plain Jaro
	jw := s.JaroWinkler("martha", "marhta")
	jaro := s.Jaro("martha", "marhta")
	assert.Greater(t, jw, jaro)
	assert.InDelta(t, 0.961, jw, 0.001)
}

func TestLevenshteinDistance(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 0, s.LevenshteinDistance("same", "same"))
	assert.Equal(t, 3, s.LevenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 4, s.LevenshteinDistance("", "acme"))
}

func TestLevenshtein_Similarity(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.Levenshtein("", ""))
	assert.InDelta(t, 1.0-3.0/7.0, s.Levenshtein("kitten", "sitting"), 0.0001)
}

func TestSoundex(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, "R163", s.Soundex("Robert"))
	assert.Equal(t, "R163", s.Soundex("Rupert"))
	assert.Equal(t, 1.0, s.SoundexMatch("Robert", "Rupert"))
	assert.Equal(t, 0.0, s.SoundexMatch("Robert", "Alice"))
}

func TestDateProximity(t *testing.T) {
	s := NewScorer()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, s.DateProximity(base, base, 30))
	assert.InDelta(t, 0.5, s.DateProximity(base, base.AddDate(0, 0, 15), 30), 0.0001)
	assert.Equal(t, 0.0, s.DateProximity(base, base.AddDate(0, 0, 45), 30))
	assert.Equal(t, 0.0, s.DateProximity(time.Time{}, base, 30))
}

func TestNumericProximity(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.NumericProximity(100, 100))
	assert.InDelta(t, 0.9, s.NumericProximity(90, 100), 0.0001)
	assert.Equal(t, 0.0, s.NumericProximity(0, 100))
}

func TestWeightedScore(t *testing.T) {
	s := NewScorer()

	scores := map[string]float64{"name": 1.0, "email": 0.5}
	weights := map[string]float64{"name": 3.0, "email": 1.0}

	assert.InDelta(t, 0.875, s.WeightedScore(scores, weights), 0.0001)
	assert.Equal(t, 0.0, s.WeightedScore(nil, nil))
}
