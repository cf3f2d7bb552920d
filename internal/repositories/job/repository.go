package job

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var jobColumns = []string{
	"id", "tenant_id", "request_id", "name", "type", "status", "source_dataset", "target_dataset",
	"total_records", "processed_records", "matched_records", "unmatched_records", "review_records",
	"error_message", "submitted_by", "created_at", "updated_at", "started_at", "completed_at",
}

// Repository handles reconciliation job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new job in PENDING state
func (r *Repository) Create(ctx context.Context, job *models.ReconciliationJob) (*models.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Create")
	defer span.End()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("reconciliation_jobs")
	sb.Cols(jobColumns...)
	sb.Values(job.ID, job.TenantID, job.RequestID, job.Name, job.Type, job.Status, job.SourceDataset, job.TargetDataset,
		job.TotalRecords, job.ProcessedRecords, job.MatchedRecords, job.UnmatchedRecords, job.ReviewRecords,
		job.ErrorMessage, job.SubmittedBy, job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": job.ID}).Error("Failed to create job")
		return nil, sageerrors.NewTransientIO(err, "failed to create job")
	}

	return job, nil
}

// Get retrieves a job by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("reconciliation_jobs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var job models.ReconciliationJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, sageerrors.NewNotFound("job %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": id}).Error("Failed to get job")
		return nil, sageerrors.NewTransientIO(err, "failed to get job")
	}

	return &job, nil
}

// FindActiveByRequestID returns a non-terminal job submitted with the given
// request ID, used for idempotent resubmission
func (r *Repository) FindActiveByRequestID(ctx context.Context, tenantID, requestID string) (*models.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.FindActiveByRequestID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("reconciliation_jobs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("request_id", requestID),
		sb.In("status", string(models.JobStatusPending), string(models.JobStatusRunning)),
	)
	sb.OrderBy("created_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var job models.ReconciliationJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find active job by request id")
		return nil, sageerrors.NewTransientIO(err, "failed to find active job")
	}

	return &job, nil
}

// List returns jobs for a tenant, newest first
func (r *Repository) List(ctx context.Context, tenantID string, limit, offset int) ([]models.ReconciliationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.List")
	defer span.End()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("reconciliation_jobs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at").Desc()
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	var jobs []models.ReconciliationJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list jobs")
		return nil, sageerrors.NewTransientIO(err, "failed to list jobs")
	}

	return jobs, nil
}

// UpdateStatus moves a job to a new status if the transition is legal. The
// status check runs in the WHERE clause so concurrent transitions cannot
// both win.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id string, from, to models.JobStatus, errorMessage *string) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.UpdateStatus")
	defer span.End()

	if !from.CanTransitionTo(to) {
		return sageerrors.NewInvalidState("job cannot transition from %s to %s", from, to)
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("reconciliation_jobs")
	assignments := []string{
		sb.Assign("status", to),
		sb.Assign("updated_at", now),
	}
	if to == models.JobStatusRunning {
		assignments = append(assignments, sb.Assign("started_at", now))
	}
	if to.IsTerminal() {
		assignments = append(assignments, sb.Assign("completed_at", now))
	}
	if errorMessage != nil {
		assignments = append(assignments, sb.Assign("error_message", *errorMessage))
	}
	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", from),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": id}).Error("Failed to update job status")
		return sageerrors.NewTransientIO(err, "failed to update job status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sageerrors.NewTransientIO(err, "failed to update job status")
	}
	if rows == 0 {
		return sageerrors.NewInvalidState("job %s is no longer in status %s", id, from)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"job_id": id, "from": from, "to": to}).Debug("Job status updated")
	return nil
}

// UpdateProgress writes the running counters for a job
func (r *Repository) UpdateProgress(ctx context.Context, tenantID, id string, progress models.JobProgress) error {
	ctx, span := tracing.StartSpan(ctx, "job.Repository.UpdateProgress")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("reconciliation_jobs")
	sb.Set(
		sb.Assign("total_records", progress.TotalRecords),
		sb.Assign("processed_records", progress.ProcessedRecords),
		sb.Assign("matched_records", progress.MatchedRecords),
		sb.Assign("unmatched_records", progress.UnmatchedRecords),
		sb.Assign("review_records", progress.ReviewRecords),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": id}).Error("Failed to update job progress")
		return sageerrors.NewTransientIO(err, "failed to update job progress")
	}

	return nil
}
