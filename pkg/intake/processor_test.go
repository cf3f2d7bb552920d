package intake

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
)

type fakeRecordStore struct {
	records []*models.DatasetRecord
	err     error
}

func (f *fakeRecordStore) Upsert(_ context.Context, record *models.DatasetRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func intakeMessage(t *testing.T, body map[string]any) *kafka.IncomingMessage {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return &kafka.IncomingMessage{Value: raw, Topic: "dataset-intake", Headers: map[string]string{}}
}

func TestHandler_StoresRecord(t *testing.T) {
	store := &fakeRecordStore{}
	handler := NewProcessor(store, testLogger()).Handler()

	msg := intakeMessage(t, map[string]any{
		"tenant_id":  "t1",
		"dataset":    "crm",
		"record_ref": "A1",
		"data":       map[string]any{"name": "Acme Corp"},
	})

	require.NoError(t, handler(context.Background(), msg))
	require.Len(t, store.records, 1)
	assert.Equal(t, "t1", store.records[0].TenantID)
	assert.Equal(t, "crm", store.records[0].Dataset)
	assert.Equal(t, "A1", store.records[0].RecordRef)
}

func TestHandler_HeadersOverrideBody(t *testing.T) {
	store := &fakeRecordStore{}
	handler := NewProcessor(store, testLogger()).Handler()

	msg := intakeMessage(t, map[string]any{
		"tenant_id": "body-tenant",
		"dataset":   "body-dataset",
		"data":      map[string]any{"name": "Acme Corp"},
	})
	msg.Headers["tenant_id"] = "t1"
	msg.Headers["dataset"] = "crm"
	msg.Key = "A1"

	require.NoError(t, handler(context.Background(), msg))
	require.Len(t, store.records, 1)
	assert.Equal(t, "t1", store.records[0].TenantID)
	assert.Equal(t, "crm", store.records[0].Dataset)
	assert.Equal(t, "A1", store.records[0].RecordRef)
}

func TestHandler_MalformedMessageDropped(t *testing.T) {
	store := &fakeRecordStore{}
	handler := NewProcessor(store, testLogger()).Handler()

	msg := &kafka.IncomingMessage{Value: []byte("{not json"), Topic: "dataset-intake"}

	// Returning nil commits the offset so the bad message is not redelivered
	require.NoError(t, handler(context.Background(), msg))
	assert.Empty(t, store.records)
}

func TestHandler_MissingFieldsDropped(t *testing.T) {
	store := &fakeRecordStore{}
	handler := NewProcessor(store, testLogger()).Handler()

	msg := intakeMessage(t, map[string]any{"dataset": "crm", "data": map[string]any{"x": 1}})

	require.NoError(t, handler(context.Background(), msg))
	assert.Empty(t, store.records)
}

func TestHandler_StorageErrorPropagates(t *testing.T) {
	store := &fakeRecordStore{err: sageerrors.NewTransientIO(nil, "db down")}
	handler := NewProcessor(store, testLogger()).Handler()

	msg := intakeMessage(t, map[string]any{
		"tenant_id":  "t1",
		"dataset":    "crm",
		"record_ref": "A1",
		"data":       map[string]any{"name": "Acme Corp"},
	})

	err := handler(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, sageerrors.IsTransient(err))
}
