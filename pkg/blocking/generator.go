// Package blocking generates candidate pairs for scoring. Records are
// bucketed by derived blocking keys so only records sharing a key get
// compared, instead of the full cross product.
package blocking

import (
	"fmt"
	"strings"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/scoring"
)

// Pair is a source/target candidate produced by blocking
type Pair struct {
	Source models.Record
	Target models.Record
}

// Generator buckets records by blocking keys and emits candidate pairs
type Generator struct {
	cfg    models.BlockingConfig
	scorer *scoring.Scorer
}

// NewGenerator validates the blocking configuration and creates a Generator
func NewGenerator(cfg models.BlockingConfig) (*Generator, error) {
	if len(cfg.Keys) == 0 {
		return nil, sageerrors.NewConfiguration("blocking requires at least one key")
	}
	for _, key := range cfg.Keys {
		if key.Field == "" {
			return nil, sageerrors.NewConfiguration("blocking key field must not be empty")
		}
		switch key.Transform {
		case "", "exact", "prefix", "soundex":
		default:
			return nil, sageerrors.NewConfiguration("unknown blocking transform %q", key.Transform)
		}
		if key.Transform == "prefix" && key.PrefixLen <= 0 {
			return nil, sageerrors.NewConfiguration("prefix blocking key %q requires prefix_len > 0", key.Field)
		}
	}
	return &Generator{cfg: cfg, scorer: scoring.NewScorer()}, nil
}

// KeysFor derives the bucket keys for a record. Records whose key field is
// empty get no key for that entry, so they never bucket together on absence.
func (g *Generator) KeysFor(rec models.Record) []string {
	keys := make([]string, 0, len(g.cfg.Keys))
	for i, key := range g.cfg.Keys {
		value := rec.Field(key.Field)
		if key.Normalizer != nil {
			value = normalizers.Apply(value, *key.Normalizer)
		}
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}

		switch key.Transform {
		case "prefix":
			if len(value) > key.PrefixLen {
				value = value[:key.PrefixLen]
			}
		case "soundex":
			value = g.scorer.Soundex(value)
		}

		keys = append(keys, fmt.Sprintf("%d:%s", i, value))
	}
	return keys
}

// Pairs generates source/target candidate pairs across two datasets. Every
// pair sharing at least one bucket is emitted exactly once even when the
// pair shares several buckets.
func (g *Generator) Pairs(source, target []models.Record) []Pair {
	targetBuckets := make(map[string][]int)
	targetKeys := make([][]string, len(target))
	for i, rec := range target {
		keys := g.KeysFor(rec)
		targetKeys[i] = keys
		for _, key := range keys {
			targetBuckets[key] = append(targetBuckets[key], i)
		}
	}

	var pairs []Pair
	for _, src := range source {
		srcKeys := g.KeysFor(src)
		for _, key := range srcKeys {
			bucket := targetBuckets[key]
			if g.cfg.MaxBlockSize > 0 && len(bucket) > g.cfg.MaxBlockSize {
				continue
			}
			for _, ti := range bucket {
				if minSharedKey(srcKeys, targetKeys[ti]) == key {
					pairs = append(pairs, Pair{Source: src, Target: target[ti]})
				}
			}
		}
	}
	return pairs
}

// DedupPairs generates candidate pairs within a single dataset, each
// unordered pair exactly once.
func (g *Generator) DedupPairs(records []models.Record) []Pair {
	buckets := make(map[string][]int)
	recordKeys := make([][]string, len(records))
	for i, rec := range records {
		keys := g.KeysFor(rec)
		recordKeys[i] = keys
		for _, key := range keys {
			buckets[key] = append(buckets[key], i)
		}
	}

	var pairs []Pair
	for key, bucket := range buckets {
		if g.cfg.MaxBlockSize > 0 && len(bucket) > g.cfg.MaxBlockSize {
			continue
		}
		for x := 0; x < len(bucket); x++ {
			for y := x + 1; y < len(bucket); y++ {
				i, j := bucket[x], bucket[y]
				if minSharedKey(recordKeys[i], recordKeys[j]) == key {
					pairs = append(pairs, Pair{Source: records[i], Target: records[j]})
				}
			}
		}
	}
	return pairs
}

// minSharedKey returns the lexicographically smallest key both records
// share. Emitting a pair only from its minimal shared bucket is what makes
// generation exactly-once across overlapping buckets.
func minSharedKey(a, b []string) string {
	shared := ""
	for _, ka := range a {
		for _, kb := range b {
			if ka == kb && (shared == "" || ka < shared) {
				shared = ka
			}
		}
	}
	return shared
}
