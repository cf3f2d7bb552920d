package intake

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// RecordStore persists ingested dataset rows.
type RecordStore interface {
	Upsert(ctx context.Context, record *models.DatasetRecord) error
}

// message is the intake payload. Tenant and dataset can also arrive as
// Kafka headers, which take precedence over the body.
type message struct {
	TenantID  string          `json:"tenant_id"`
	Dataset   string          `json:"dataset"`
	RecordRef string          `json:"record_ref"`
	Data      json.RawMessage `json:"data"`
}

// Processor consumes dataset records off Kafka and upserts them so a
// redelivered message lands on the same row instead of duplicating it.
type Processor struct {
	store  RecordStore
	logger ectologger.Logger
}

func NewProcessor(store RecordStore, logger ectologger.Logger) *Processor {
	return &Processor{store: store, logger: logger}
}

// Handler returns the message handler to register on a Kafka consumer.
// Malformed messages are logged and dropped; storage failures are returned
// so the offset is not committed and the message is redelivered.
func (p *Processor) Handler() kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		ctx, span := tracing.StartSpan(ctx, "intake.Processor.Handle")
		defer span.End()

		record, err := p.parse(msg)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("Dropping malformed intake message")
			metrics.IntakeRecordsTotal.WithLabelValues("unknown", "malformed").Inc()
			return nil
		}

		if err := p.store.Upsert(ctx, record); err != nil {
			metrics.IntakeRecordsTotal.WithLabelValues(record.TenantID, "error").Inc()
			return err
		}

		metrics.IntakeRecordsTotal.WithLabelValues(record.TenantID, "stored").Inc()
		return nil
	}
}

func (p *Processor) parse(msg *kafka.IncomingMessage) (*models.DatasetRecord, error) {
	var body message
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return nil, sageerrors.NewValidation("invalid intake payload: %v", err)
	}

	tenantID := body.TenantID
	if h := msg.Headers["tenant_id"]; h != "" {
		tenantID = h
	}
	dataset := body.Dataset
	if h := msg.Headers["dataset"]; h != "" {
		dataset = h
	}

	recordRef := body.RecordRef
	if recordRef == "" {
		recordRef = msg.Key
	}

	if tenantID == "" || dataset == "" || recordRef == "" {
		return nil, sageerrors.NewValidation(
			"intake message missing tenant_id, dataset or record_ref (topic %s offset %d)", msg.Topic, msg.Offset)
	}
	if len(body.Data) == 0 {
		return nil, sageerrors.NewValidation("intake message for %s has no data", recordRef)
	}

	return &models.DatasetRecord{
		TenantID:  tenantID,
		Dataset:   dataset,
		RecordRef: recordRef,
		Data:      body.Data,
	}, nil
}
