package match

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

var matchColumns = []string{
	"id", "tenant_id", "job_id", "source_ref", "target_ref", "status", "confidence",
	"matched_fields", "differences", "model_name", "model_version",
	"reviewed_by", "review_note", "reviewed_at", "version", "created_at", "updated_at",
}

// Repository handles match result persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch persists a batch of scored matches
func (r *Repository) CreateBatch(ctx context.Context, matches []*models.MatchResult) error {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.CreateBatch")
	defer span.End()

	if len(matches) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_results")
	sb.Cols(matchColumns...)

	for _, m := range matches {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.Version == 0 {
			m.Version = 1
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		sb.Values(m.ID, m.TenantID, m.JobID, m.SourceRef, m.TargetRef, m.Status, m.Confidence,
			m.MatchedFields, m.Differences, m.ModelName, m.ModelVersion,
			m.ReviewedBy, m.ReviewNote, m.ReviewedAt, m.Version, m.CreatedAt, m.UpdatedAt)
	}

	query, args := sb.Build()
	// Re-running a job phase must not duplicate pairs
	query += " ON CONFLICT (tenant_id, job_id, source_ref, COALESCE(target_ref, '')) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create match batch")
		return sageerrors.NewTransientIO(err, "failed to create match batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(matches)}).Debug("Created match batch")
	return nil
}

// Get retrieves a match by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("match_results")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var match models.MatchResult
	if err := r.db.GetContext(ctx, &match, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, sageerrors.NewNotFound("match %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"match_id": id}).Error("Failed to get match")
		return nil, sageerrors.NewTransientIO(err, "failed to get match")
	}

	return &match, nil
}

// ListByJob returns a page of matches for a job, filtered by status and
// minimum confidence
func (r *Repository) ListByJob(ctx context.Context, tenantID, jobID string, filter models.MatchFilter) (*models.MatchPage, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.ListByJob")
	defer span.End()

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 50
	}

	conditions := func(sb *sqlbuilder.SelectBuilder) []string {
		conds := []string{
			sb.Equal("tenant_id", tenantID),
			sb.Equal("job_id", jobID),
		}
		if filter.Status != nil {
			conds = append(conds, sb.Equal("status", *filter.Status))
		}
		if filter.MinConfidence != nil {
			conds = append(conds, sb.GreaterEqualThan("confidence", *filter.MinConfidence))
		}
		return conds
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("match_results")
	countBuilder.Where(conditions(countBuilder)...)

	query, args := countBuilder.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count matches")
		return nil, sageerrors.NewTransientIO(err, "failed to count matches")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("match_results")
	sb.Where(conditions(sb)...)
	sb.OrderBy("confidence").Desc()
	sb.OrderBy("id")
	sb.Limit(pageSize).Offset((page - 1) * pageSize)

	query, args = sb.Build()
	items := []models.MatchResult{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matches")
		return nil, sageerrors.NewTransientIO(err, "failed to list matches")
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &models.MatchPage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// CountByStatus returns match counts per status for a job
func (r *Repository) CountByStatus(ctx context.Context, tenantID, jobID string) (map[models.MatchStatus]int, error) {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.CountByStatus")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS count")
	sb.From("match_results")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("job_id", jobID),
	)
	sb.GroupBy("status")

	query, args := sb.Build()
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count matches by status")
		return nil, sageerrors.NewTransientIO(err, "failed to count matches by status")
	}
	defer rows.Close()

	counts := make(map[models.MatchStatus]int)
	for rows.Next() {
		var status models.MatchStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, sageerrors.NewTransientIO(err, "failed to scan match counts")
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// ApplyReview writes a review decision with optimistic concurrency: the
// update only lands if the caller's version is still current.
func (r *Repository) ApplyReview(ctx context.Context, match *models.MatchResult, expectedVersion int) error {
	ctx, span := tracing.StartSpan(ctx, "match.Repository.ApplyReview")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("match_results")
	sb.Set(
		sb.Assign("status", match.Status),
		sb.Assign("confidence", match.Confidence),
		sb.Assign("reviewed_by", match.ReviewedBy),
		sb.Assign("review_note", match.ReviewNote),
		sb.Assign("reviewed_at", now),
		sb.Assign("version", expectedVersion+1),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", match.ID),
		sb.Equal("tenant_id", match.TenantID),
		sb.Equal("version", expectedVersion),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"match_id": match.ID}).Error("Failed to apply review")
		return sageerrors.NewTransientIO(err, "failed to apply review")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sageerrors.NewTransientIO(err, "failed to apply review")
	}
	if rows == 0 {
		return sageerrors.NewConcurrentModification("match %s was modified concurrently (expected version %d)", match.ID, expectedVersion)
	}

	match.Version = expectedVersion + 1
	match.ReviewedAt = &now
	return nil
}
