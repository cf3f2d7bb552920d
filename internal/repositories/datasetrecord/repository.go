package datasetrecord

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var datasetColumns = []string{"id", "tenant_id", "dataset", "record_ref", "data", "received_at"}

// Repository handles ingested dataset record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new dataset record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores an ingested record, replacing any earlier version of the
// same ref so re-delivered Kafka messages stay idempotent
func (r *Repository) Upsert(ctx context.Context, record *models.DatasetRecord) error {
	ctx, span := tracing.StartSpan(ctx, "datasetrecord.Repository.Upsert")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("dataset_records")
	sb.Cols(datasetColumns...)
	sb.Values(record.ID, record.TenantID, record.Dataset, record.RecordRef, record.Data, record.ReceivedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, dataset, record_ref) DO UPDATE SET data = EXCLUDED.data, received_at = EXCLUDED.received_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"dataset": record.Dataset, "record_ref": record.RecordRef}).Error("Failed to upsert dataset record")
		return sageerrors.NewTransientIO(err, "failed to upsert dataset record")
	}

	return nil
}

// ListByDataset returns every record of a dataset as pipeline records
func (r *Repository) ListByDataset(ctx context.Context, tenantID, dataset string) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "datasetrecord.Repository.ListByDataset")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(datasetColumns...)
	sb.From("dataset_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("dataset", dataset),
	)
	sb.OrderBy("record_ref")

	query, args := sb.Build()
	var rows []models.DatasetRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list dataset records")
		return nil, sageerrors.NewTransientIO(err, "failed to list dataset records")
	}

	records := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toPipelineRecord(row)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_ref": row.RecordRef}).Warnf("Skipping malformed dataset record")
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Count returns the number of records in a dataset
func (r *Repository) Count(ctx context.Context, tenantID, dataset string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "datasetrecord.Repository.Count")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("dataset_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("dataset", dataset),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, sageerrors.NewTransientIO(err, "failed to count dataset records")
	}

	return count, nil
}
