package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/blocking"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/scoring"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string { return &s }

type fakeIndex struct {
	byRef  map[string][]models.EntityRecord
	byName []models.EntityRecord
}

func (f *fakeIndex) FindByExternalRef(_ context.Context, _, _, externalRef string) ([]models.EntityRecord, error) {
	return f.byRef[externalRef], nil
}

func (f *fakeIndex) SearchSimilar(_ context.Context, _, _, _ string, _ float64, _ int) ([]models.EntityRecord, error) {
	return f.byName, nil
}

type fakeStore struct {
	created []models.EntityRecord
	merges  []models.DuplicateCluster
}

func (f *fakeStore) Create(_ context.Context, record *models.EntityRecord) (*models.EntityRecord, error) {
	if record.ID == "" {
		record.ID = fmt.Sprintf("created-%d", len(f.created)+1)
	}
	f.created = append(f.created, *record)
	return record, nil
}

func (f *fakeStore) MergeCluster(_ context.Context, _ string, cluster models.DuplicateCluster, _ []byte) error {
	f.merges = append(f.merges, cluster)
	return nil
}

type fakeEmitter struct {
	merged []models.DuplicateCluster
}

func (f *fakeEmitter) EmitEntityMerged(_ context.Context, _, _ string, cluster models.DuplicateCluster, _ float64) error {
	f.merged = append(f.merged, cluster)
	return nil
}

func newTestMatcher(t *testing.T) *scoring.Matcher {
	t.Helper()
	matcher, err := scoring.NewMatcher([]models.CompareField{
		{Field: "name", Comparator: "jaro_winkler", Weight: 2.0, Normalizer: strPtr("ncompany")},
		{Field: "email", Comparator: "exact", Weight: 1.0, Normalizer: strPtr("nemail")},
	}, nil)
	require.NoError(t, err)
	return matcher
}

func entity(id, ref string, data map[string]any) models.EntityRecord {
	raw, _ := json.Marshal(data)
	return models.EntityRecord{
		ID:          id,
		TenantID:    "t1",
		Dataset:     "crm",
		ExternalRef: ref,
		EntityType:  "company",
		Data:        raw,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestProcess_CreatesWhenNoCandidateClears(t *testing.T) {
	store := &fakeStore{}
	engine, err := NewEngine(&fakeIndex{}, store, newTestMatcher(t), nil, Config{MergeThreshold: 0.85}, testLogger())
	require.NoError(t, err)

	incoming := entity("", "X1", map[string]any{"name": "Acme Corp", "email": "sales@acme.com"})
	result, err := engine.Process(context.Background(), &incoming)
	require.NoError(t, err)

	assert.Equal(t, "created", result.Action)
	assert.Equal(t, result.RecordID, result.GoldenID)
	assert.Len(t, store.created, 1)
	assert.Empty(t, store.merges)
}

func TestProcess_MergesIntoExistingGolden(t *testing.T) {
	existing := entity("g1", "X1", map[string]any{"name": "Acme Corporation", "email": "sales@acme.com"})
	existing.IsGoldenRecord = true

	index := &fakeIndex{byRef: map[string][]models.EntityRecord{"X1": {existing}}}
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	engine, err := NewEngine(index, store, newTestMatcher(t), emitter, Config{MergeThreshold: 0.85}, testLogger())
	require.NoError(t, err)

	incoming := entity("", "X1", map[string]any{"name": "ACME CORP.", "email": "Sales@Acme.com"})
	result, err := engine.Process(context.Background(), &incoming)
	require.NoError(t, err)

	assert.Equal(t, "merged", result.Action)
	assert.Equal(t, "g1", result.GoldenID)
	require.Len(t, store.merges, 1)
	assert.Equal(t, "g1", store.merges[0].GoldenID)
	require.Len(t, emitter.merged, 1)
	assert.Equal(t, "g1", emitter.merged[0].GoldenID)
}

func TestClusterDataset_OneGoldenPerCluster(t *testing.T) {
	engine, err := NewEngine(&fakeIndex{}, &fakeStore{}, newTestMatcher(t), nil, Config{MergeThreshold: 0.85}, testLogger())
	require.NoError(t, err)

	generator, err := blocking.NewGenerator(models.BlockingConfig{Keys: []models.BlockingKey{
		{Field: "name", Transform: "prefix", PrefixLen: 4, Normalizer: strPtr("ncompany")},
	}})
	require.NoError(t, err)

	records := []models.EntityRecord{
		entity("r1", "A1", map[string]any{"name": "Acme Corp", "email": "sales@acme.com"}),
		entity("r2", "A2", map[string]any{"name": "ACME CORPORATION", "email": "sales@acme.com"}),
		entity("r3", "B1", map[string]any{"name": "Globex", "email": "info@globex.com"}),
	}

	clusters, err := engine.ClusterDataset(context.Background(), records, generator)
	require.NoError(t, err)

	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{"r1", "r2"}, clusters[0].MemberIDs)
	assert.Contains(t, clusters[0].MemberIDs, clusters[0].GoldenID)

	// No entity id repeats across clusters
	seen := make(map[string]bool)
	for _, c := range clusters {
		for _, id := range c.MemberIDs {
			assert.False(t, seen[id], "id %s appears in more than one cluster", id)
			seen[id] = true
		}
	}
}

func TestClusterDataset_ExistingGoldenWins(t *testing.T) {
	engine, err := NewEngine(&fakeIndex{}, &fakeStore{}, newTestMatcher(t), nil, Config{MergeThreshold: 0.85}, testLogger())
	require.NoError(t, err)

	generator, err := blocking.NewGenerator(models.BlockingConfig{Keys: []models.BlockingKey{
		{Field: "email", Normalizer: strPtr("nemail")},
	}})
	require.NoError(t, err)

	sparse := entity("r1", "A1", map[string]any{"name": "Acme Corp", "email": "sales@acme.com"})
	golden := entity("r2", "A2", map[string]any{"name": "Acme Corp", "email": "sales@acme.com"})
	golden.IsGoldenRecord = true

	clusters, err := engine.ClusterDataset(context.Background(), []models.EntityRecord{sparse, golden}, generator)
	require.NoError(t, err)

	require.Len(t, clusters, 1)
	assert.Equal(t, "r2", clusters[0].GoldenID)
}
