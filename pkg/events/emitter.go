// Package events handles event emission for job, match and entity
// lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	sagecontext "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Emitter publishes reconciliation events
type Emitter interface {
	EmitJobEvent(ctx context.Context, eventType EventType, job *models.ReconciliationJob) error
	EmitMatchReviewed(ctx context.Context, match *models.MatchResult, decision models.ReviewDecision) error
	EmitEntityMerged(ctx context.Context, tenantID, entityType string, cluster models.DuplicateCluster, confidence float64) error
}

// KafkaEmitter emits events through a Kafka producer
type KafkaEmitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewKafkaEmitter creates a new event emitter
func NewKafkaEmitter(producer *kafka.Producer, logger ectologger.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *KafkaEmitter) base(ctx context.Context, eventType EventType, tenantID string) BaseEvent {
	correlationID := sagecontext.GetRequestID(ctx)
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// EmitJobEvent emits a job lifecycle event
func (e *KafkaEmitter) EmitJobEvent(ctx context.Context, eventType EventType, job *models.ReconciliationJob) error {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaEmitter.EmitJobEvent")
	defer span.End()

	event := JobEvent{
		BaseEvent:        e.base(ctx, eventType, job.TenantID),
		JobID:            job.ID,
		JobName:          job.Name,
		Status:           string(job.Status),
		TotalRecords:     job.TotalRecords,
		MatchedRecords:   job.MatchedRecords,
		UnmatchedRecords: job.UnmatchedRecords,
		ReviewRecords:    job.ReviewRecords,
		ErrorMessage:     job.ErrorMessage,
	}

	return e.publish(ctx, job.ID, eventType, job.TenantID, event)
}

// EmitMatchReviewed emits a match reviewed event
func (e *KafkaEmitter) EmitMatchReviewed(ctx context.Context, match *models.MatchResult, decision models.ReviewDecision) error {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaEmitter.EmitMatchReviewed")
	defer span.End()

	reviewedBy := ""
	if match.ReviewedBy != nil {
		reviewedBy = *match.ReviewedBy
	}

	event := MatchReviewedEvent{
		BaseEvent:  e.base(ctx, EventTypeMatchReviewed, match.TenantID),
		MatchID:    match.ID,
		JobID:      match.JobID,
		Decision:   string(decision),
		Status:     string(match.Status),
		Confidence: match.Confidence,
		ReviewedBy: reviewedBy,
	}

	return e.publish(ctx, match.ID, EventTypeMatchReviewed, match.TenantID, event)
}

// EmitEntityMerged emits an entity merged event
func (e *KafkaEmitter) EmitEntityMerged(ctx context.Context, tenantID, entityType string, cluster models.DuplicateCluster, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaEmitter.EmitEntityMerged")
	defer span.End()

	event := EntityMergedEvent{
		BaseEvent:  e.base(ctx, EventTypeEntityMerged, tenantID),
		GoldenID:   cluster.GoldenID,
		ClusterID:  cluster.ClusterID,
		MergedFrom: cluster.MemberIDs,
		EntityType: entityType,
		Confidence: confidence,
	}

	return e.publish(ctx, cluster.GoldenID, EventTypeEntityMerged, tenantID, event)
}

func (e *KafkaEmitter) publish(ctx context.Context, key string, eventType EventType, tenantID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"event_type": string(eventType),
		"tenant_id":  tenantID,
	}

	if err := e.producer.Publish(ctx, key, data, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
