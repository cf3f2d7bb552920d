package review

import (
	"context"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeMatchStore struct {
	mu      sync.Mutex
	matches map[string]*models.MatchResult
}

func (f *fakeMatchStore) Get(_ context.Context, _, id string) (*models.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	match, ok := f.matches[id]
	if !ok {
		return nil, sageerrors.NewNotFound("match %s not found", id)
	}
	copied := *match
	return &copied, nil
}

func (f *fakeMatchStore) ApplyReview(_ context.Context, match *models.MatchResult, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.matches[match.ID]
	if current.Version != expectedVersion {
		return sageerrors.NewConcurrentModification(
			"match %s was modified concurrently (expected version %d)", match.ID, expectedVersion)
	}
	match.Version = expectedVersion + 1
	copied := *match
	f.matches[match.ID] = &copied
	return nil
}

type fakeJobStore struct {
	job *models.ReconciliationJob
}

func (f *fakeJobStore) Get(_ context.Context, _, _ string) (*models.ReconciliationJob, error) {
	return f.job, nil
}

type countingEmitter struct {
	mu       sync.Mutex
	reviewed int
	last     models.ReviewDecision
}

func (c *countingEmitter) EmitJobEvent(_ context.Context, _ events.EventType, _ *models.ReconciliationJob) error {
	return nil
}

func (c *countingEmitter) EmitMatchReviewed(_ context.Context, _ *models.MatchResult, decision models.ReviewDecision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reviewed++
	c.last = decision
	return nil
}

func (c *countingEmitter) EmitEntityMerged(_ context.Context, _, _ string, _ models.DuplicateCluster, _ float64) error {
	return nil
}

func strPtr(s string) *string { return &s }

func fixture(jobStatus models.JobStatus) (*Service, *fakeMatchStore, *countingEmitter) {
	matches := &fakeMatchStore{matches: map[string]*models.MatchResult{
		"m1": {
			ID:         "m1",
			TenantID:   "t1",
			JobID:      "j1",
			SourceRef:  "A1",
			TargetRef:  strPtr("B7"),
			Status:     models.MatchStatusPendingReview,
			Confidence: 0.7,
			Version:    1,
		},
	}}
	jobs := &fakeJobStore{job: &models.ReconciliationJob{ID: "j1", TenantID: "t1", Status: jobStatus}}
	emitter := &countingEmitter{}
	return NewService(matches, jobs, emitter, testLogger()), matches, emitter
}

func TestReview_RejectedWhileJobRunning(t *testing.T) {
	svc, _, emitter := fixture(models.JobStatusRunning)

	_, err := svc.Review(context.Background(), "t1", "m1", &models.ReviewRequest{
		Decision:   models.ReviewDecisionConfirm,
		ReviewedBy: "u1",
		Version:    1,
	})
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindInvalidState))
	assert.Equal(t, 0, emitter.reviewed)
}

func TestReview_ConfirmAfterJobCompleted(t *testing.T) {
	svc, matches, emitter := fixture(models.JobStatusCompleted)

	confidence := 0.9
	reviewed, err := svc.Review(context.Background(), "t1", "m1", &models.ReviewRequest{
		Decision:   models.ReviewDecisionConfirm,
		ReviewedBy: "u1",
		Confidence: &confidence,
		Note:       strPtr("verified against the billing export"),
		Version:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusReviewed, reviewed.Status)
	assert.Equal(t, 0.9, reviewed.Confidence)
	assert.Equal(t, 2, reviewed.Version)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "u1", *reviewed.ReviewedBy)

	stored, err := matches.Get(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusReviewed, stored.Status)

	assert.Equal(t, 1, emitter.reviewed)
	assert.Equal(t, models.ReviewDecisionConfirm, emitter.last)
}

func TestReview_RejectDowngradesToNoMatch(t *testing.T) {
	svc, _, _ := fixture(models.JobStatusCompleted)

	reviewed, err := svc.Review(context.Background(), "t1", "m1", &models.ReviewRequest{
		Decision:   models.ReviewDecisionReject,
		ReviewedBy: "u1",
		Version:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusNoMatch, reviewed.Status)
}

func TestReview_StaleVersionRejected(t *testing.T) {
	svc, _, emitter := fixture(models.JobStatusCompleted)

	// First review bumps the version to 2
	_, err := svc.Review(context.Background(), "t1", "m1", &models.ReviewRequest{
		Decision:   models.ReviewDecisionConfirm,
		ReviewedBy: "u1",
		Version:    1,
	})
	require.NoError(t, err)

	// A second reviewer still holding version 1 loses
	_, err = svc.Review(context.Background(), "t1", "m1", &models.ReviewRequest{
		Decision:   models.ReviewDecisionReject,
		ReviewedBy: "u2",
		Version:    1,
	})
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindConcurrentModification))
	assert.Equal(t, 1, emitter.reviewed)
}

func TestReview_ValidatesRequest(t *testing.T) {
	svc, _, _ := fixture(models.JobStatusCompleted)

	_, err := svc.Review(context.Background(), "t1", "m1", &models.ReviewRequest{
		Decision:   "MAYBE",
		ReviewedBy: "u1",
		Version:    1,
	})
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindValidation))
}

func TestReview_UnknownMatch(t *testing.T) {
	svc, _, _ := fixture(models.JobStatusCompleted)

	_, err := svc.Review(context.Background(), "t1", "missing", &models.ReviewRequest{
		Decision:   models.ReviewDecisionConfirm,
		ReviewedBy: "u1",
		Version:    1,
	})
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindNotFound))
}
