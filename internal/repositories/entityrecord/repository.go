package entityrecord

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var recordColumns = []string{
	"id", "tenant_id", "dataset", "external_ref", "entity_type", "data",
	"is_golden_record", "cluster_id", "merged_into_id", "version", "created_at", "updated_at",
}

// Repository handles entity record persistence and candidate search
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new entity record
func (r *Repository) Create(ctx context.Context, record *models.EntityRecord) (*models.EntityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "entityrecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Version == 0 {
		record.Version = 1
	}
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("entity_records")
	sb.Cols(recordColumns...)
	sb.Values(record.ID, record.TenantID, record.Dataset, record.ExternalRef, record.EntityType, record.Data,
		record.IsGoldenRecord, record.ClusterID, record.MergedIntoID, record.Version, record.CreatedAt, record.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": record.ID}).Error("Failed to create entity record")
		return nil, sageerrors.NewTransientIO(err, "failed to create entity record")
	}

	return record, nil
}

// Get retrieves an entity record by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.EntityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "entityrecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("entity_records")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var record models.EntityRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, sageerrors.NewNotFound("entity record %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": id}).Error("Failed to get entity record")
		return nil, sageerrors.NewTransientIO(err, "failed to get entity record")
	}

	return &record, nil
}

// FindByExternalRef finds active golden records with an exact external ref
func (r *Repository) FindByExternalRef(ctx context.Context, tenantID, entityType, externalRef string) ([]models.EntityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "entityrecord.Repository.FindByExternalRef")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("entity_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("external_ref", externalRef),
		sb.IsNull("merged_into_id"),
	)

	query, args := sb.Build()
	var records []models.EntityRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find entity records by external ref")
		return nil, sageerrors.NewTransientIO(err, "failed to find entity records")
	}

	return records, nil
}

// SearchSimilar finds active records whose indexed name is trigram-similar
// to the given value, best matches first
func (r *Repository) SearchSimilar(ctx context.Context, tenantID, entityType, name string, minSimilarity float64, limit int) ([]models.EntityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "entityrecord.Repository.SearchSimilar")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM entity_records
		WHERE tenant_id = $1
		  AND entity_type = $2
		  AND merged_into_id IS NULL
		  AND similarity(data->>'name', $3) > $4
		ORDER BY similarity(data->>'name', $3) DESC
		LIMIT %d
	`, strings.Join(recordColumns, ", "), limit)

	var records []models.EntityRecord
	if err := r.db.SelectContext(ctx, &records, query, tenantID, entityType, name, minSimilarity); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search similar entity records")
		return nil, sageerrors.NewTransientIO(err, "failed to search similar entity records")
	}

	return records, nil
}

// MergeCluster applies a dedup decision in one transaction: the golden
// record keeps serving, members point at it, and everything joins the
// cluster. A failure rolls the whole transfer back.
func (r *Repository) MergeCluster(ctx context.Context, tenantID string, cluster models.DuplicateCluster, goldenData []byte) error {
	ctx, span := tracing.StartSpan(ctx, "entityrecord.Repository.MergeCluster")
	defer span.End()

	// Keep the pre-transaction ctx: Commit and Rollback are the opener's,
	// nested calls joining via txCtx must not close it.
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return sageerrors.NewTransientIO(err, "failed to begin merge transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	golden := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	golden.Update("entity_records")
	assignments := []string{
		golden.Assign("is_golden_record", true),
		golden.Assign("cluster_id", cluster.ClusterID),
		golden.Incr("version"),
		golden.Assign("updated_at", now),
	}
	if len(goldenData) > 0 {
		assignments = append(assignments, golden.Assign("data", goldenData))
	}
	golden.Set(assignments...)
	golden.Where(
		golden.Equal("id", cluster.GoldenID),
		golden.Equal("tenant_id", tenantID),
	)

	query, args := golden.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		return sageerrors.NewTransientIO(err, "failed to update golden record")
	}
	if rows, err := result.RowsAffected(); err != nil || rows == 0 {
		return sageerrors.NewNotFound("golden record %s not found", cluster.GoldenID)
	}

	members := make([]interface{}, 0, len(cluster.MemberIDs))
	for _, id := range cluster.MemberIDs {
		if id != cluster.GoldenID {
			members = append(members, id)
		}
	}
	if len(members) > 0 {
		member := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		member.Update("entity_records")
		member.Set(
			member.Assign("is_golden_record", false),
			member.Assign("cluster_id", cluster.ClusterID),
			member.Assign("merged_into_id", cluster.GoldenID),
			member.Incr("version"),
			member.Assign("updated_at", now),
		)
		member.Where(
			member.In("id", members...),
			member.Equal("tenant_id", tenantID),
		)

		query, args = member.Build()
		if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
			return sageerrors.NewTransientIO(err, "failed to merge cluster members")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return sageerrors.NewTransientIO(err, "failed to commit merge transaction")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"cluster_id": cluster.ClusterID,
		"golden_id":  cluster.GoldenID,
		"members":    len(members),
	}).Debug("Merged entity cluster")
	return nil
}

// ListByDataset returns the active records of a dataset as pipeline records
func (r *Repository) ListByDataset(ctx context.Context, tenantID, dataset string) ([]models.EntityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "entityrecord.Repository.ListByDataset")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("entity_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("dataset", dataset),
		sb.IsNull("merged_into_id"),
	)
	sb.OrderBy("created_at")

	query, args := sb.Build()
	var records []models.EntityRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list entity records")
		return nil, sageerrors.NewTransientIO(err, "failed to list entity records")
	}

	return records, nil
}
