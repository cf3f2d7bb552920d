package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/blocking"
	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/ratelimit"
	"github.com/Ramsey-B/sage/pkg/scoring"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func strPtr(s string) *string { return &s }

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ReconciliationJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.ReconciliationJob)}
}

func (s *memJobStore) Create(_ context.Context, job *models.ReconciliationJob) (*models.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = models.JobStatusPending
	copied := *job
	s.jobs[job.ID] = &copied
	return job, nil
}

func (s *memJobStore) Get(_ context.Context, _, id string) (*models.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sageerrors.NewNotFound("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (s *memJobStore) FindActiveByRequestID(_ context.Context, _, requestID string) (*models.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.RequestID == requestID && !job.Status.IsTerminal() {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memJobStore) List(_ context.Context, _ string, _, _ int) ([]models.ReconciliationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReconciliationJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (s *memJobStore) UpdateStatus(_ context.Context, _, id string, from, to models.JobStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sageerrors.NewNotFound("job %s not found", id)
	}
	if job.Status != from {
		return sageerrors.NewInvalidState("job %s is no longer in status %s", id, from)
	}
	if !from.CanTransitionTo(to) {
		return sageerrors.NewInvalidState("job cannot transition from %s to %s", from, to)
	}
	job.Status = to
	job.ErrorMessage = errMsg
	return nil
}

func (s *memJobStore) UpdateProgress(_ context.Context, _, id string, progress models.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sageerrors.NewNotFound("job %s not found", id)
	}
	job.TotalRecords = progress.TotalRecords
	job.ProcessedRecords = progress.ProcessedRecords
	job.MatchedRecords = progress.MatchedRecords
	job.UnmatchedRecords = progress.UnmatchedRecords
	job.ReviewRecords = progress.ReviewRecords
	return nil
}

type memMatchStore struct {
	mu      sync.Mutex
	matches []*models.MatchResult
}

func (s *memMatchStore) CreateBatch(_ context.Context, matches []*models.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, matches...)
	return nil
}

func (s *memMatchStore) all() []*models.MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.MatchResult{}, s.matches...)
}

type fakeRecordSource struct {
	mu       sync.Mutex
	datasets map[string][]models.Record
	failures int
	block    chan struct{}
}

func (f *fakeRecordSource) ListByDataset(ctx context.Context, _, dataset string) ([]models.Record, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, sageerrors.NewTransientIO(nil, "dataset store unavailable")
	}
	return f.datasets[dataset], nil
}

type fakeRuleSource struct{}

func (fakeRuleSource) ListActive(_ context.Context, _ string) ([]models.ReconciliationRule, error) {
	return nil, nil
}

type fakeModelProvider struct{}

func (fakeModelProvider) GetModel(name string) (scoring.Model, error) {
	return nil, sageerrors.NewModelNotFound(name)
}

type fakeDeduper struct{}

func (fakeDeduper) ClusterDataset(_ context.Context, _ []models.EntityRecord, _ *blocking.Generator) ([]models.DuplicateCluster, error) {
	return nil, nil
}

func (fakeDeduper) MergeAll(_ context.Context, _, _ string, _ []models.DuplicateCluster) error {
	return nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.EventType
}

func (r *recordingEmitter) EmitJobEvent(_ context.Context, eventType events.EventType, _ *models.ReconciliationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

func (r *recordingEmitter) EmitMatchReviewed(_ context.Context, _ *models.MatchResult, _ models.ReviewDecision) error {
	return nil
}

func (r *recordingEmitter) EmitEntityMerged(_ context.Context, _, _ string, _ models.DuplicateCluster, _ float64) error {
	return nil
}

func (r *recordingEmitter) seen() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventType{}, r.events...)
}

type testHarness struct {
	engine  *Engine
	jobs    *memJobStore
	matches *memMatchStore
	records *fakeRecordSource
	emitter *recordingEmitter
	limiter *ratelimit.MemoryLimiter
}

func newHarness(t *testing.T, records *fakeRecordSource, maxPerTenant int) *testHarness {
	t.Helper()
	jobs := newMemJobStore()
	matches := &memMatchStore{}
	emitter := &recordingEmitter{}
	limiter := ratelimit.NewMemoryLimiter(maxPerTenant)

	engine := NewEngine(jobs, matches, records, fakeRuleSource{}, fakeModelProvider{}, fakeDeduper{}, limiter, emitter, 2, Config{
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		DefaultThresholds: models.Thresholds{
			Exact: 0.95, Fuzzy: 0.85, Partial: 0.65, ReviewFloor: 0.4,
		},
	}, testLogger())
	t.Cleanup(engine.Shutdown)

	return &testHarness{engine: engine, jobs: jobs, matches: matches, records: records, emitter: emitter, limiter: limiter}
}

func companyRequest(requestID string) *models.ReconciliationRequest {
	return &models.ReconciliationRequest{
		RequestID:     requestID,
		Name:          "nightly-crm-recon",
		Type:          models.JobTypeFullReconciliation,
		SourceDataset: "crm",
		TargetDataset: strPtr("billing"),
		Config: models.ReconciliationConfig{
			Blocking: models.BlockingConfig{Keys: []models.BlockingKey{{Field: "id"}}},
			CompareFields: []models.CompareField{
				{Field: "id", Comparator: "exact", Weight: 1.0},
				{Field: "name", Comparator: "jaro_winkler", Weight: 2.0, Normalizer: strPtr("lowercase")},
			},
		},
	}
}

func waitForJob(t *testing.T, h *testHarness, jobID string) *models.ReconciliationJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job, err := h.jobs.Get(context.Background(), "t1", jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s did not reach a terminal state (status %s)", jobID, job.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmit_RunsJobToCompletion(t *testing.T) {
	records := &fakeRecordSource{datasets: map[string][]models.Record{
		"crm":     {{Ref: "A1", Data: map[string]any{"id": "A1", "name": "Acme Corp"}}},
		"billing": {{Ref: "A1", Data: map[string]any{"id": "A1", "name": "ACME CORPORATION"}}},
	}}
	h := newHarness(t, records, 2)

	job, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)

	final := waitForJob(t, h, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 1, final.TotalRecords)
	assert.Equal(t, 1, final.ProcessedRecords)
	assert.Equal(t, 1, final.MatchedRecords)
	assert.Equal(t, 0, final.UnmatchedRecords)

	matches := h.matches.all()
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchStatusFuzzy, matches[0].Status)
	assert.Equal(t, "A1", matches[0].SourceRef)

	seen := h.emitter.seen()
	assert.Contains(t, seen, events.EventTypeJobSubmitted)
	assert.Contains(t, seen, events.EventTypeJobStarted)
	assert.Contains(t, seen, events.EventTypeJobCompleted)
}

func TestSubmit_IdempotentWhileNonTerminal(t *testing.T) {
	records := &fakeRecordSource{
		datasets: map[string][]models.Record{"crm": nil, "billing": nil},
		block:    make(chan struct{}),
	}
	h := newHarness(t, records, 2)

	first, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)

	second, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	close(records.block)
	waitForJob(t, h, first.ID)

	// After the job is terminal the same request id starts a fresh job
	third, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	waitForJob(t, h, third.ID)
}

func TestSubmit_RejectsBadThresholdOrdering(t *testing.T) {
	h := newHarness(t, &fakeRecordSource{datasets: map[string][]models.Record{}}, 2)

	req := companyRequest("req-1")
	req.Config.Thresholds = models.Thresholds{Exact: 0.6, Fuzzy: 0.85, Partial: 0.65, ReviewFloor: 0.4}

	_, err := h.engine.Submit(context.Background(), "t1", req)
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindConfiguration))
}

func TestSubmit_EnforcesTenantJobLimit(t *testing.T) {
	records := &fakeRecordSource{
		datasets: map[string][]models.Record{"crm": nil, "billing": nil},
		block:    make(chan struct{}),
	}
	h := newHarness(t, records, 1)

	first, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)

	_, err = h.engine.Submit(context.Background(), "t1", companyRequest("req-2"))
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindResourceExhausted))

	close(records.block)
	waitForJob(t, h, first.ID)

	// The slot frees once the first job finishes
	require.Eventually(t, func() bool {
		_, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-3"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmit_RetriesTransientRecordLoads(t *testing.T) {
	records := &fakeRecordSource{
		datasets: map[string][]models.Record{"crm": nil, "billing": nil},
		failures: 2,
	}
	h := newHarness(t, records, 2)

	job, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)

	final := waitForJob(t, h, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}

func TestSubmit_FailsAfterRetriesExhausted(t *testing.T) {
	records := &fakeRecordSource{
		datasets: map[string][]models.Record{"crm": nil, "billing": nil},
		failures: 10,
	}
	h := newHarness(t, records, 2)

	job, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)

	final := waitForJob(t, h, job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)

	seen := h.emitter.seen()
	assert.Contains(t, seen, events.EventTypeJobFailed)
}

func TestCancel_RunningJob(t *testing.T) {
	records := &fakeRecordSource{
		datasets: map[string][]models.Record{"crm": nil, "billing": nil},
		block:    make(chan struct{}),
	}
	h := newHarness(t, records, 2)

	job, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)

	// Wait until the worker picks the job up
	require.Eventually(t, func() bool {
		current, err := h.jobs.Get(context.Background(), "t1", job.ID)
		return err == nil && current.Status == models.JobStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.Cancel(context.Background(), "t1", job.ID))

	final := waitForJob(t, h, job.ID)
	assert.Equal(t, models.JobStatusCancelled, final.Status)
}

func TestCancel_TerminalJobRejected(t *testing.T) {
	records := &fakeRecordSource{datasets: map[string][]models.Record{"crm": nil, "billing": nil}}
	h := newHarness(t, records, 2)

	job, err := h.engine.Submit(context.Background(), "t1", companyRequest("req-1"))
	require.NoError(t, err)
	waitForJob(t, h, job.ID)

	err = h.engine.Cancel(context.Background(), "t1", job.ID)
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindInvalidState))
}

func TestSubmit_ValidationOnlySkipsMatching(t *testing.T) {
	records := &fakeRecordSource{datasets: map[string][]models.Record{
		"crm": {{Ref: "A1", Data: map[string]any{"id": "A1", "name": "Acme"}}},
	}}
	h := newHarness(t, records, 2)

	req := companyRequest("req-1")
	req.Type = models.JobTypeValidationOnly
	req.TargetDataset = nil

	job, err := h.engine.Submit(context.Background(), "t1", req)
	require.NoError(t, err)

	final := waitForJob(t, h, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 1, final.ProcessedRecords)
	assert.Empty(t, h.matches.all())
}
