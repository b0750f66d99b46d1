package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"commerce-sync/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishSyncCompleted(t *testing.T) {
	w := &fakeWriter{}
	pub := NewEventPublisher(newProducer(w))

	event := &models.SyncCompletedEvent{
		BaseEvent:        models.BaseEvent{EventID: "e1", EventType: models.EventTypeSyncCompleted, Timestamp: time.Now()},
		SyncLogID:        "log-1",
		TenantID:         "t1",
		EntityType:       models.EntityOrders,
		Status:           models.SyncStatusPartial,
		RecordsProcessed: 3,
		RecordsFailed:    1,
	}
	require.NoError(t, pub.PublishSyncCompleted(context.Background(), event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "tenant-t1", string(w.msgs[0].Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "SYNC_COMPLETED", decoded["event_type"])
	assert.Equal(t, "partial", decoded["status"])
	assert.NotContains(t, decoded, "error_message")
}

func TestPublishEventWriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("no brokers")})

	err := p.PublishEvent(context.Background(), "k", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

func TestHandleMessageRoutesSyncRequested(t *testing.T) {
	h := NewEventHandler()
	var got *models.SyncRequestedEvent
	h.OnSyncRequested(func(ctx context.Context, e *models.SyncRequestedEvent) error {
		got = e
		return nil
	})

	err := h.HandleMessage(context.Background(), kafka.Message{
		Value: []byte(`{"event_id":"e1","event_type":"SYNC_REQUESTED","tenant_id":"t1","source":"admin"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "admin", got.Source)
}

func TestHandleMessageRejectsBadPayloads(t *testing.T) {
	h := NewEventHandler()
	h.OnSyncRequested(func(ctx context.Context, e *models.SyncRequestedEvent) error { return nil })

	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{
		Value: []byte(`{"event_type":"SYNC_REQUESTED"}`),
	}))
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{
		Value: []byte(`{"event_type":"SOMETHING_ELSE"}`),
	}))
}
