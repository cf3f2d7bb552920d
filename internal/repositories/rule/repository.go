package rule

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

var ruleColumns = []string{
	"id", "tenant_id", "name", "description", "type", "priority", "is_active",
	"conditions", "created_at", "updated_at", "deleted_at",
}

// Repository handles reconciliation rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new rule
func (r *Repository) Create(ctx context.Context, rule *models.ReconciliationRule) (*models.ReconciliationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Create")
	defer span.End()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("reconciliation_rules")
	sb.Cols(ruleColumns...)
	sb.Values(rule.ID, rule.TenantID, rule.Name, rule.Description, rule.Type, rule.Priority, rule.IsActive,
		rule.Conditions, rule.CreatedAt, rule.UpdatedAt, rule.DeletedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": rule.ID}).Error("Failed to create rule")
		return nil, sageerrors.NewTransientIO(err, "failed to create rule")
	}

	return rule, nil
}

// Get retrieves a rule by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ReconciliationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("reconciliation_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rule models.ReconciliationRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, sageerrors.NewNotFound("rule %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": id}).Error("Failed to get rule")
		return nil, sageerrors.NewTransientIO(err, "failed to get rule")
	}

	return &rule, nil
}

// ListActive returns the tenant's active rules ordered by priority
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]models.ReconciliationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("reconciliation_rules")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority").Desc()

	query, args := sb.Build()
	var rules []models.ReconciliationRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active rules")
		return nil, sageerrors.NewTransientIO(err, "failed to list active rules")
	}

	return rules, nil
}

// List returns all non-deleted rules for a tenant
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.ReconciliationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("reconciliation_rules")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority").Desc()

	query, args := sb.Build()
	var rules []models.ReconciliationRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list rules")
		return nil, sageerrors.NewTransientIO(err, "failed to list rules")
	}

	return rules, nil
}

// Update applies a partial update to a rule
func (r *Repository) Update(ctx context.Context, tenantID, id string, req *models.UpdateRuleRequest) (*models.ReconciliationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Update")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("reconciliation_rules")
	assignments := []string{sb.Assign("updated_at", time.Now().UTC())}
	if req.Name != nil {
		assignments = append(assignments, sb.Assign("name", *req.Name))
	}
	if req.Description != nil {
		assignments = append(assignments, sb.Assign("description", *req.Description))
	}
	if req.Priority != nil {
		assignments = append(assignments, sb.Assign("priority", *req.Priority))
	}
	if req.IsActive != nil {
		assignments = append(assignments, sb.Assign("is_active", *req.IsActive))
	}
	if len(req.Conditions) > 0 {
		assignments = append(assignments, sb.Assign("conditions", req.Conditions))
	}
	sb.Set(assignments...)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": id}).Error("Failed to update rule")
		return nil, sageerrors.NewTransientIO(err, "failed to update rule")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, sageerrors.NewTransientIO(err, "failed to update rule")
	}
	if rows == 0 {
		return nil, sageerrors.NewNotFound("rule %s not found", id)
	}

	return r.Get(ctx, tenantID, id)
}

// Delete soft deletes a rule
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("reconciliation_rules")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": id}).Error("Failed to delete rule")
		return sageerrors.NewTransientIO(err, "failed to delete rule")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sageerrors.NewTransientIO(err, "failed to delete rule")
	}
	if rows == 0 {
		return sageerrors.NewNotFound("rule %s not found", id)
	}

	return nil
}
