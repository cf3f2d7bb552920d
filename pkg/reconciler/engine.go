// Package reconciler orchestrates reconciliation jobs: admission, the
// matching pipeline phases, progress tracking and the job lifecycle.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/sage/pkg/blocking"
	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/ratelimit"
	"github.com/Ramsey-B/sage/pkg/rules"
	"github.com/Ramsey-B/sage/pkg/scoring"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// JobStore persists job state
type JobStore interface {
	Create(ctx context.Context, job *models.ReconciliationJob) (*models.ReconciliationJob, error)
	Get(ctx context.Context, tenantID, id string) (*models.ReconciliationJob, error)
	FindActiveByRequestID(ctx context.Context, tenantID, requestID string) (*models.ReconciliationJob, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.ReconciliationJob, error)
	UpdateStatus(ctx context.Context, tenantID, id string, from, to models.JobStatus, errorMessage *string) error
	UpdateProgress(ctx context.Context, tenantID, id string, progress models.JobProgress) error
}

// MatchStore persists scored matches
type MatchStore interface {
	CreateBatch(ctx context.Context, matches []*models.MatchResult) error
}

// RecordSource loads dataset records for a job
type RecordSource interface {
	ListByDataset(ctx context.Context, tenantID, dataset string) ([]models.Record, error)
}

// RuleSource loads the tenant's active rules
type RuleSource interface {
	ListActive(ctx context.Context, tenantID string) ([]models.ReconciliationRule, error)
}

// ModelProvider resolves scoring models by name
type ModelProvider interface {
	GetModel(name string) (scoring.Model, error)
}

// EntityDeduper runs within-dataset deduplication
type EntityDeduper interface {
	ClusterDataset(ctx context.Context, records []models.EntityRecord, generator *blocking.Generator) ([]models.DuplicateCluster, error)
	MergeAll(ctx context.Context, tenantID, entityType string, clusters []models.DuplicateCluster) error
}

// Config tunes the orchestrator
type Config struct {
	QueueSize         int
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	MaxProcessingTime time.Duration
	ScoreWorkerCount  int
	MatchBatchSize    int
	DefaultThresholds models.Thresholds
}

// Engine is the reconciliation job orchestrator
type Engine struct {
	jobs     JobStore
	matches  MatchStore
	records  RecordSource
	rules    RuleSource
	modelReg ModelProvider
	deduper  EntityDeduper
	limiter  ratelimit.TenantLimiter
	emitter  events.Emitter
	pool     *Pool
	validate *validator.Validate
	cfg      Config
	logger   ectologger.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewEngine creates the orchestrator and starts its worker pool
func NewEngine(
	jobs JobStore,
	matches MatchStore,
	records RecordSource,
	ruleSource RuleSource,
	modelReg ModelProvider,
	deduper EntityDeduper,
	limiter ratelimit.TenantLimiter,
	emitter events.Emitter,
	workers int,
	cfg Config,
	logger ectologger.Logger,
) *Engine {
	if cfg.MatchBatchSize <= 0 {
		cfg.MatchBatchSize = 100
	}
	if cfg.ScoreWorkerCount <= 0 {
		cfg.ScoreWorkerCount = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxProcessingTime <= 0 {
		cfg.MaxProcessingTime = 30 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = workers * 4
	}

	return &Engine{
		jobs:     jobs,
		matches:  matches,
		records:  records,
		rules:    ruleSource,
		modelReg: modelReg,
		deduper:  deduper,
		limiter:  limiter,
		emitter:  emitter,
		pool:     NewPool(workers, cfg.QueueSize, logger),
		validate: validator.New(),
		cfg:      cfg,
		logger:   logger,
		handles:  make(map[string]*Handle),
	}
}

// Shutdown drains the worker pool
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
}

// Submit validates a request, admits it against tenant limits and enqueues
// the job. Resubmitting a request ID whose job is still non-terminal
// returns that job unchanged.
func (e *Engine) Submit(ctx context.Context, tenantID string, req *models.ReconciliationRequest) (*models.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciler.Engine.Submit")
	defer span.End()

	if err := e.validateRequest(tenantID, req); err != nil {
		return nil, err
	}

	existing, err := e.jobs.FindActiveByRequestID(ctx, tenantID, req.RequestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	release, err := e.limiter.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	job := &models.ReconciliationJob{
		TenantID:      tenantID,
		RequestID:     req.RequestID,
		Name:          req.Name,
		Type:          req.Type,
		SourceDataset: req.SourceDataset,
		TargetDataset: req.TargetDataset,
		SubmittedBy:   req.SubmittedBy,
	}

	job, err = e.jobs.Create(ctx, job)
	if err != nil {
		release()
		return nil, err
	}

	if err := e.emitter.EmitJobEvent(ctx, events.EventTypeJobSubmitted, job); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit job submitted event")
	}

	config := req.Config
	handle, err := e.pool.Submit(context.WithoutCancel(ctx), func(taskCtx context.Context) error {
		defer release()
		return e.runJob(taskCtx, job.TenantID, job.ID, config)
	})
	if err != nil {
		release()
		msg := err.Error()
		_ = e.jobs.UpdateStatus(ctx, tenantID, job.ID, models.JobStatusPending, models.JobStatusFailed, &msg)
		return nil, err
	}

	e.mu.Lock()
	e.handles[job.ID] = handle
	e.mu.Unlock()

	go func() {
		<-handle.Done()
		e.mu.Lock()
		delete(e.handles, job.ID)
		e.mu.Unlock()
	}()

	return job, nil
}

// Cancel requests cancellation of a running or pending job
func (e *Engine) Cancel(ctx context.Context, tenantID, jobID string) error {
	ctx, span := tracing.StartSpan(ctx, "reconciler.Engine.Cancel")
	defer span.End()

	job, err := e.jobs.Get(ctx, tenantID, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return sageerrors.NewInvalidState("job %s is already %s", jobID, job.Status)
	}

	e.mu.Lock()
	handle := e.handles[jobID]
	e.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}

	// Pending jobs have no running task to observe the cancellation
	if job.Status == models.JobStatusPending {
		if err := e.jobs.UpdateStatus(ctx, tenantID, jobID, models.JobStatusPending, models.JobStatusCancelled, nil); err != nil {
			return err
		}
		job.Status = models.JobStatusCancelled
		if err := e.emitter.EmitJobEvent(ctx, events.EventTypeJobCancelled, job); err != nil {
			e.logger.WithContext(ctx).WithError(err).Error("Failed to emit job cancelled event")
		}
	}

	return nil
}

// Handle returns the task handle for a job if it is still tracked
func (e *Engine) Handle(jobID string) (*Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[jobID]
	return h, ok
}

func (e *Engine) validateRequest(tenantID string, req *models.ReconciliationRequest) error {
	if tenantID == "" {
		return sageerrors.NewValidation("tenant id is required")
	}
	if err := e.validate.Struct(req); err != nil {
		return sageerrors.NewValidation("invalid reconciliation request: %v", err)
	}
	if req.Type == models.JobTypeFullReconciliation && (req.TargetDataset == nil || *req.TargetDataset == "") {
		return sageerrors.NewValidation("full reconciliation requires a target dataset")
	}

	thresholds := e.thresholds(req.Config)
	if !thresholds.Validate() {
		return sageerrors.NewConfiguration(
			"thresholds must be ordered review_floor <= partial <= fuzzy <= exact, got %v", thresholds)
	}
	return nil
}

func (e *Engine) thresholds(cfg models.ReconciliationConfig) models.Thresholds {
	t := cfg.Thresholds
	if t == (models.Thresholds{}) {
		return e.cfg.DefaultThresholds
	}
	return t
}

// runJob drives one job through its phases. Cancellation is checked at
// every phase boundary and between score batches.
func (e *Engine) runJob(ctx context.Context, tenantID, jobID string, cfg models.ReconciliationConfig) error {
	ctx, span := tracing.StartSpan(ctx, "reconciler.Engine.runJob")
	defer span.End()

	maxTime := cfg.MaxProcessingTime
	if maxTime <= 0 {
		maxTime = e.cfg.MaxProcessingTime
	}
	ctx, cancel := context.WithTimeout(ctx, maxTime)
	defer cancel()

	job, err := e.jobs.Get(ctx, tenantID, jobID)
	if err != nil {
		return err
	}

	if err := e.jobs.UpdateStatus(ctx, tenantID, jobID, models.JobStatusPending, models.JobStatusRunning, nil); err != nil {
		// Cancelled before the worker picked it up
		if sageerrors.IsKind(err, sageerrors.KindInvalidState) {
			return nil
		}
		return err
	}
	job.Status = models.JobStatusRunning
	if err := e.emitter.EmitJobEvent(ctx, events.EventTypeJobStarted, job); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit job started event")
	}

	metrics.JobsInFlight.Inc()
	start := time.Now()
	progress, runErr := e.runPhases(ctx, job, cfg)
	metrics.JobsInFlight.Dec()

	return e.finishJob(ctx, job, progress, runErr, time.Since(start))
}

func (e *Engine) finishJob(ctx context.Context, job *models.ReconciliationJob, progress models.JobProgress, runErr error, elapsed time.Duration) error {
	// The job row must still be finalized after cancellation or timeout
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	status := models.JobStatusCompleted
	eventType := events.EventTypeJobCompleted
	var errMsg *string

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = models.JobStatusCancelled
		eventType = events.EventTypeJobCancelled
	case errors.Is(runErr, context.DeadlineExceeded):
		status = models.JobStatusFailed
		eventType = events.EventTypeJobFailed
		msg := "processing time limit exceeded"
		errMsg = &msg
	default:
		status = models.JobStatusFailed
		eventType = events.EventTypeJobFailed
		msg := runErr.Error()
		errMsg = &msg
	}

	if err := e.jobs.UpdateProgress(finishCtx, job.TenantID, job.ID, progress); err != nil {
		e.logger.WithContext(finishCtx).WithError(err).Error("Failed to write final job progress")
	}
	if err := e.jobs.UpdateStatus(finishCtx, job.TenantID, job.ID, models.JobStatusRunning, status, errMsg); err != nil {
		e.logger.WithContext(finishCtx).WithError(err).Error("Failed to finalize job status")
		return err
	}

	job.Status = status
	job.ErrorMessage = errMsg
	job.TotalRecords = progress.TotalRecords
	job.MatchedRecords = progress.MatchedRecords
	job.UnmatchedRecords = progress.UnmatchedRecords
	job.ReviewRecords = progress.ReviewRecords

	metrics.JobsTotal.WithLabelValues(job.TenantID, string(job.Type), string(status)).Inc()
	metrics.JobDuration.WithLabelValues(job.TenantID, string(job.Type)).Observe(elapsed.Seconds())

	if err := e.emitter.EmitJobEvent(finishCtx, eventType, job); err != nil {
		e.logger.WithContext(finishCtx).WithError(err).Error("Failed to emit job finished event")
	}

	e.logger.WithContext(finishCtx).WithFields(map[string]any{
		"job_id":   job.ID,
		"status":   status,
		"matched":  progress.MatchedRecords,
		"review":   progress.ReviewRecords,
		"duration": elapsed.String(),
	}).Infof("Job finished")

	return runErr
}

func (e *Engine) runPhases(ctx context.Context, job *models.ReconciliationJob, cfg models.ReconciliationConfig) (models.JobProgress, error) {
	var progress models.JobProgress

	source, err := e.loadRecords(ctx, job.TenantID, job.SourceDataset)
	if err != nil {
		return progress, err
	}

	var target []models.Record
	if job.Type == models.JobTypeFullReconciliation {
		target, err = e.loadRecords(ctx, job.TenantID, *job.TargetDataset)
		if err != nil {
			return progress, err
		}
	}

	progress.TotalRecords = len(source)
	if err := e.jobs.UpdateProgress(ctx, job.TenantID, job.ID, progress); err != nil {
		return progress, err
	}

	ruleSet, err := e.rules.ListActive(ctx, job.TenantID)
	if err != nil {
		return progress, err
	}
	ruleEngine, err := rules.NewEngine(ruleSet)
	if err != nil {
		return progress, err
	}

	if err := ctx.Err(); err != nil {
		return progress, err
	}

	// Validation phase
	valid := make([]models.Record, 0, len(source))
	for _, rec := range source {
		if err := ruleEngine.Validate(rec); err != nil {
			e.logger.WithContext(ctx).WithError(err).Debugf("Record %s rejected by validation", rec.Ref)
			progress.ProcessedRecords++
			progress.UnmatchedRecords++
			continue
		}
		valid = append(valid, ruleEngine.Transform(rec))
	}
	if job.Type == models.JobTypeValidationOnly {
		progress.ProcessedRecords = progress.TotalRecords
		return progress, e.jobs.UpdateProgress(ctx, job.TenantID, job.ID, progress)
	}

	for i := range target {
		target[i] = ruleEngine.Transform(target[i])
	}

	if err := ctx.Err(); err != nil {
		return progress, err
	}

	matcher, err := e.buildMatcher(cfg, ruleEngine)
	if err != nil {
		return progress, err
	}
	generator, err := blocking.NewGenerator(cfg.Blocking)
	if err != nil {
		return progress, err
	}

	if job.Type == models.JobTypeDeduplication {
		return e.runDedupPhase(ctx, job, valid, generator, progress)
	}

	return e.runScoringPhase(ctx, job, cfg, ruleEngine, matcher, generator, valid, target, progress)
}

func (e *Engine) loadRecords(ctx context.Context, tenantID, dataset string) ([]models.Record, error) {
	var records []models.Record
	err := WithRetry(ctx, e.cfg.MaxAttempts, e.cfg.RetryBaseDelay, func(ctx context.Context) error {
		var err error
		records, err = e.records.ListByDataset(ctx, tenantID, dataset)
		return err
	})
	return records, err
}

func (e *Engine) buildMatcher(cfg models.ReconciliationConfig, ruleEngine *rules.Engine) (*scoring.Matcher, error) {
	fields := append([]models.CompareField{}, cfg.CompareFields...)
	fields = append(fields, ruleEngine.CompareFields()...)

	var model scoring.Model
	if cfg.ModelName != nil && *cfg.ModelName != "" {
		var err error
		model, err = e.modelReg.GetModel(*cfg.ModelName)
		if err != nil {
			return nil, err
		}
	}

	return scoring.NewMatcher(fields, model)
}

type scoredPair struct {
	pair  blocking.Pair
	score scoring.PairScore
}

func (e *Engine) runScoringPhase(
	ctx context.Context,
	job *models.ReconciliationJob,
	cfg models.ReconciliationConfig,
	ruleEngine *rules.Engine,
	matcher *scoring.Matcher,
	generator *blocking.Generator,
	source, target []models.Record,
	progress models.JobProgress,
) (models.JobProgress, error) {
	thresholds := e.thresholds(cfg)

	pairs := generator.Pairs(source, target)
	metrics.CandidatePairsTotal.WithLabelValues(job.TenantID).Add(float64(len(pairs)))

	scored := e.scorePairs(ctx, matcher, pairs)
	if err := ctx.Err(); err != nil {
		return progress, err
	}

	// Keep each source record's best outcome; store every pair that
	// cleared the review floor.
	bestBySource := make(map[string]models.MatchStatus, len(source))
	var batch []*models.MatchResult

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		toWrite := batch
		batch = nil
		return WithRetry(ctx, e.cfg.MaxAttempts, e.cfg.RetryBaseDelay, func(ctx context.Context) error {
			return e.matches.CreateBatch(ctx, toWrite)
		})
	}

	for _, sp := range scored {
		status := thresholds.Classify(sp.score.Confidence)
		if forced, ok := ruleEngine.ForcedStatus(sp.pair.Source, sp.pair.Target); ok {
			status = forced
		}
		if status == models.MatchStatusNoMatch {
			continue
		}

		if better(status, bestBySource[sp.pair.Source.Ref]) {
			bestBySource[sp.pair.Source.Ref] = status
		}

		targetRef := sp.pair.Target.Ref
		matchedFields, _ := json.Marshal(sp.score.MatchedFields())
		differences, _ := json.Marshal(sp.score.Differences())
		batch = append(batch, &models.MatchResult{
			TenantID:      job.TenantID,
			JobID:         job.ID,
			SourceRef:     sp.pair.Source.Ref,
			TargetRef:     &targetRef,
			Status:        status,
			Confidence:    sp.score.Confidence,
			MatchedFields: matchedFields,
			Differences:   differences,
			ModelName:     sp.score.ModelName,
			ModelVersion:  sp.score.ModelVersion,
		})
		metrics.MatchesTotal.WithLabelValues(job.TenantID, string(status)).Inc()

		if len(batch) >= e.cfg.MatchBatchSize {
			if err := flush(); err != nil {
				return progress, err
			}
			if err := ctx.Err(); err != nil {
				return progress, err
			}
		}
	}
	if err := flush(); err != nil {
		return progress, err
	}

	// Source records with no surviving pair get a NO_MATCH row so the
	// result set accounts for every record.
	var unmatchedRows []*models.MatchResult
	for _, rec := range source {
		progress.ProcessedRecords++
		switch bestBySource[rec.Ref] {
		case models.MatchStatusExact, models.MatchStatusFuzzy, models.MatchStatusPartial:
			progress.MatchedRecords++
		case models.MatchStatusPendingReview:
			progress.ReviewRecords++
		default:
			progress.UnmatchedRecords++
			unmatchedRows = append(unmatchedRows, &models.MatchResult{
				TenantID:  job.TenantID,
				JobID:     job.ID,
				SourceRef: rec.Ref,
				Status:    models.MatchStatusNoMatch,
			})
			metrics.MatchesTotal.WithLabelValues(job.TenantID, string(models.MatchStatusNoMatch)).Inc()
		}
	}
	for start := 0; start < len(unmatchedRows); start += e.cfg.MatchBatchSize {
		end := min(start+e.cfg.MatchBatchSize, len(unmatchedRows))
		chunk := unmatchedRows[start:end]
		if err := WithRetry(ctx, e.cfg.MaxAttempts, e.cfg.RetryBaseDelay, func(ctx context.Context) error {
			return e.matches.CreateBatch(ctx, chunk)
		}); err != nil {
			return progress, err
		}
	}

	return progress, e.jobs.UpdateProgress(ctx, job.TenantID, job.ID, progress)
}

// scorePairs fans pair scoring out over a bounded worker set
func (e *Engine) scorePairs(ctx context.Context, matcher *scoring.Matcher, pairs []blocking.Pair) []scoredPair {
	workers := min(e.cfg.ScoreWorkerCount, len(pairs))
	if workers <= 1 {
		out := make([]scoredPair, 0, len(pairs))
		for _, p := range pairs {
			if ctx.Err() != nil {
				return out
			}
			out = append(out, scoredPair{pair: p, score: matcher.Score(p.Source, p.Target)})
		}
		return out
	}

	out := make([]scoredPair, len(pairs))
	indexes := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				out[i] = scoredPair{pair: pairs[i], score: matcher.Score(pairs[i].Source, pairs[i].Target)}
			}
		}()
	}

	for i := range pairs {
		if ctx.Err() != nil {
			break
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return out
}

func (e *Engine) runDedupPhase(
	ctx context.Context,
	job *models.ReconciliationJob,
	source []models.Record,
	generator *blocking.Generator,
	progress models.JobProgress,
) (models.JobProgress, error) {
	entities := make([]models.EntityRecord, 0, len(source))
	for _, rec := range source {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			continue
		}
		entities = append(entities, models.EntityRecord{
			ID:          rec.Ref,
			TenantID:    job.TenantID,
			Dataset:     job.SourceDataset,
			ExternalRef: rec.Ref,
			Data:        raw,
		})
	}

	clusters, err := e.deduper.ClusterDataset(ctx, entities, generator)
	if err != nil {
		return progress, err
	}
	if err := ctx.Err(); err != nil {
		return progress, err
	}

	if err := e.deduper.MergeAll(ctx, job.TenantID, job.SourceDataset, clusters); err != nil {
		return progress, err
	}

	clustered := make(map[string]bool)
	for _, c := range clusters {
		for _, id := range c.MemberIDs {
			clustered[id] = true
		}
	}

	progress.ProcessedRecords = len(source)
	for _, rec := range source {
		if clustered[rec.Ref] {
			progress.MatchedRecords++
		} else {
			progress.UnmatchedRecords++
		}
	}

	return progress, e.jobs.UpdateProgress(ctx, job.TenantID, job.ID, progress)
}

// better reports whether a is a stronger outcome than b for a source record
func better(a, b models.MatchStatus) bool {
	return statusRank(a) > statusRank(b)
}

func statusRank(s models.MatchStatus) int {
	switch s {
	case models.MatchStatusExact:
		return 4
	case models.MatchStatusFuzzy:
		return 3
	case models.MatchStatusPartial:
		return 2
	case models.MatchStatusPendingReview:
		return 1
	default:
		return 0
	}
}
