// Package dedup detects duplicate entity records and maintains golden
// records. Incoming records are matched against stored candidates through
// an exact identifier lookup plus a fuzzy search index; confirmed
// duplicates are merged into a cluster with exactly one golden record.
package dedup

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/blocking"
	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/scoring"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// SearchIndex finds stored candidate records for an incoming record
type SearchIndex interface {
	FindByExternalRef(ctx context.Context, tenantID, entityType, externalRef string) ([]models.EntityRecord, error)
	SearchSimilar(ctx context.Context, tenantID, entityType, name string, minSimilarity float64, limit int) ([]models.EntityRecord, error)
}

// Store persists dedup outcomes
type Store interface {
	Create(ctx context.Context, record *models.EntityRecord) (*models.EntityRecord, error)
	MergeCluster(ctx context.Context, tenantID string, cluster models.DuplicateCluster, goldenData []byte) error
}

// MergeEmitter publishes entity merged events
type MergeEmitter interface {
	EmitEntityMerged(ctx context.Context, tenantID, entityType string, cluster models.DuplicateCluster, confidence float64) error
}

// Config tunes the dedup engine
type Config struct {
	// MergeThreshold is the minimum confidence to merge without review
	MergeThreshold float64
	// SearchMinSimilarity is the trigram floor for the fuzzy index lookup
	SearchMinSimilarity float64
	// SearchLimit caps candidates fetched from the fuzzy index
	SearchLimit int
}

// Engine deduplicates entity records
type Engine struct {
	index   SearchIndex
	store   Store
	matcher *scoring.Matcher
	emitter MergeEmitter
	cfg     Config
	logger  ectologger.Logger
}

// NewEngine creates a dedup engine
func NewEngine(index SearchIndex, store Store, matcher *scoring.Matcher, emitter MergeEmitter, cfg Config, logger ectologger.Logger) (*Engine, error) {
	if cfg.MergeThreshold <= 0 || cfg.MergeThreshold > 1 {
		return nil, sageerrors.NewConfiguration("dedup merge threshold %f out of range", cfg.MergeThreshold)
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
	if cfg.SearchMinSimilarity <= 0 {
		cfg.SearchMinSimilarity = 0.3
	}
	return &Engine{
		index:   index,
		store:   store,
		matcher: matcher,
		emitter: emitter,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Process runs one incoming record through the dedup pipeline: candidate
// lookup, pairwise scoring, then merge or create.
func (e *Engine) Process(ctx context.Context, incoming *models.EntityRecord) (*models.DedupResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Engine.Process")
	defer span.End()

	rec, err := toRecord(incoming)
	if err != nil {
		return nil, sageerrors.NewValidation("record %s has malformed data: %v", incoming.ExternalRef, err)
	}

	candidates, err := e.findCandidates(ctx, incoming, rec)
	if err != nil {
		return nil, err
	}

	best, bestScore := e.bestCandidate(rec, candidates)
	if best == nil || bestScore.Confidence < e.cfg.MergeThreshold {
		created, err := e.store.Create(ctx, incoming)
		if err != nil {
			return nil, err
		}
		metrics.DedupMergesTotal.WithLabelValues(incoming.TenantID, "created").Inc()
		return &models.DedupResult{
			RecordID: created.ID,
			Action:   "created",
			GoldenID: created.ID,
		}, nil
	}

	created, err := e.store.Create(ctx, incoming)
	if err != nil {
		return nil, err
	}

	cluster := e.buildCluster(best, created)
	goldenData := e.goldenData(best, created)

	if err := e.store.MergeCluster(ctx, incoming.TenantID, cluster, goldenData); err != nil {
		return nil, err
	}
	metrics.DedupMergesTotal.WithLabelValues(incoming.TenantID, "merged").Inc()

	if e.emitter != nil {
		if err := e.emitter.EmitEntityMerged(ctx, incoming.TenantID, incoming.EntityType, cluster, bestScore.Confidence); err != nil {
			e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity merged event")
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id":  created.ID,
		"golden_id":  cluster.GoldenID,
		"confidence": bestScore.Confidence,
	}).Debug("Merged duplicate record")

	return &models.DedupResult{
		RecordID:    created.ID,
		Action:      "merged",
		GoldenID:    cluster.GoldenID,
		MergedFrom:  cluster.MemberIDs,
		Confidence:  bestScore.Confidence,
		ModelScored: bestScore.ModelName != nil,
	}, nil
}

func (e *Engine) findCandidates(ctx context.Context, incoming *models.EntityRecord, rec models.Record) ([]models.EntityRecord, error) {
	seen := make(map[string]struct{})
	var candidates []models.EntityRecord

	exact, err := e.index.FindByExternalRef(ctx, incoming.TenantID, incoming.EntityType, incoming.ExternalRef)
	if err != nil {
		return nil, err
	}
	for _, c := range exact {
		if _, ok := seen[c.ID]; !ok {
			seen[c.ID] = struct{}{}
			candidates = append(candidates, c)
		}
	}

	if name := rec.Field("name"); name != "" {
		similar, err := e.index.SearchSimilar(ctx, incoming.TenantID, incoming.EntityType, name, e.cfg.SearchMinSimilarity, e.cfg.SearchLimit)
		if err != nil {
			return nil, err
		}
		for _, c := range similar {
			if _, ok := seen[c.ID]; !ok {
				seen[c.ID] = struct{}{}
				candidates = append(candidates, c)
			}
		}
	}

	return candidates, nil
}

func (e *Engine) bestCandidate(rec models.Record, candidates []models.EntityRecord) (*models.EntityRecord, scoring.PairScore) {
	var best *models.EntityRecord
	var bestScore scoring.PairScore

	for i := range candidates {
		candidateRec, err := toRecord(&candidates[i])
		if err != nil {
			continue
		}
		score := e.matcher.Score(rec, candidateRec)
		if best == nil || score.Confidence > bestScore.Confidence {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// buildCluster joins the incoming record to the candidate's cluster,
// keeping the candidate side golden
func (e *Engine) buildCluster(existing, incoming *models.EntityRecord) models.DuplicateCluster {
	clusterID := uuid.New().String()
	if existing.ClusterID != nil && *existing.ClusterID != "" {
		clusterID = *existing.ClusterID
	}

	goldenID := existing.ID
	if existing.MergedIntoID != nil && *existing.MergedIntoID != "" {
		goldenID = *existing.MergedIntoID
	}

	return models.DuplicateCluster{
		ClusterID: clusterID,
		GoldenID:  goldenID,
		MemberIDs: []string{incoming.ID},
	}
}

// goldenData merges the incoming record's fields over the golden record,
// keeping existing values where the incoming record is silent
func (e *Engine) goldenData(existing, incoming *models.EntityRecord) []byte {
	var existingData, incomingData map[string]any
	if err := json.Unmarshal(existing.Data, &existingData); err != nil {
		return nil
	}
	if err := json.Unmarshal(incoming.Data, &incomingData); err != nil {
		return nil
	}

	merged := make(map[string]any, len(existingData)+len(incomingData))
	for k, v := range existingData {
		merged[k] = v
	}
	for k, v := range incomingData {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil
	}
	return out
}

// ClusterDataset groups the records of one dataset into duplicate
// clusters. Pairs come from blocking, edges from scored confidence, and
// connected components become clusters with one golden record each.
func (e *Engine) ClusterDataset(ctx context.Context, records []models.EntityRecord, generator *blocking.Generator) ([]models.DuplicateCluster, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Engine.ClusterDataset")
	defer span.End()

	pipelineRecords := make([]models.Record, 0, len(records))
	byRef := make(map[string]*models.EntityRecord, len(records))
	for i := range records {
		rec, err := toRecord(&records[i])
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).Warnf("Skipping malformed record %s", records[i].ID)
			continue
		}
		rec.Ref = records[i].ID
		pipelineRecords = append(pipelineRecords, rec)
		byRef[records[i].ID] = &records[i]
	}

	parent := make(map[string]string, len(pipelineRecords))
	scores := make(map[string]float64)
	for _, rec := range pipelineRecords {
		parent[rec.Ref] = rec.Ref
	}

	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, pair := range generator.DedupPairs(pipelineRecords) {
		score := e.matcher.Score(pair.Source, pair.Target)
		if score.Confidence >= e.cfg.MergeThreshold {
			union(pair.Source.Ref, pair.Target.Ref)
			key := pair.Source.Ref + "/" + pair.Target.Ref
			scores[key] = score.Confidence
		}
	}

	components := make(map[string][]string)
	for _, rec := range pipelineRecords {
		root := find(rec.Ref)
		components[root] = append(components[root], rec.Ref)
	}

	var clusters []models.DuplicateCluster
	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)

		clusters = append(clusters, models.DuplicateCluster{
			ClusterID: uuid.New().String(),
			GoldenID:  e.pickGolden(members, byRef),
			MemberIDs: members,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].MemberIDs[0] < clusters[j].MemberIDs[0]
	})
	return clusters, nil
}

// MergeAll persists a set of clusters, emitting a merged event per cluster
func (e *Engine) MergeAll(ctx context.Context, tenantID, entityType string, clusters []models.DuplicateCluster) error {
	ctx, span := tracing.StartSpan(ctx, "dedup.Engine.MergeAll")
	defer span.End()

	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.store.MergeCluster(ctx, tenantID, cluster, nil); err != nil {
			return err
		}
		metrics.DedupMergesTotal.WithLabelValues(tenantID, "merged").Inc()

		if e.emitter != nil {
			if err := e.emitter.EmitEntityMerged(ctx, tenantID, entityType, cluster, 0); err != nil {
				e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity merged event")
			}
		}
	}
	return nil
}

// pickGolden keeps an already-golden member if there is one, otherwise the
// most complete record, oldest first on ties
func (e *Engine) pickGolden(members []string, byRef map[string]*models.EntityRecord) string {
	golden := members[0]
	bestFields := -1
	for _, id := range members {
		rec := byRef[id]
		if rec == nil {
			continue
		}
		if rec.IsGoldenRecord {
			return id
		}
		fields := fieldCount(rec.Data)
		if fields > bestFields || (fields == bestFields && rec.CreatedAt.Before(byRef[golden].CreatedAt)) {
			golden = id
			bestFields = fields
		}
	}
	return golden
}

func fieldCount(raw json.RawMessage) int {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0
	}
	count := 0
	for _, v := range data {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		count++
	}
	return count
}

func toRecord(entity *models.EntityRecord) (models.Record, error) {
	var data map[string]any
	if err := json.Unmarshal(entity.Data, &data); err != nil {
		return models.Record{}, err
	}
	return models.Record{Ref: entity.ExternalRef, Data: data}, nil
}
