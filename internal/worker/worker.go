package worker

import (
	"context"

	"commerce-sync/internal/broker"
	"commerce-sync/internal/models"
	"commerce-sync/internal/scheduler"
	"commerce-sync/internal/util"

	"go.uber.org/zap"
)

// TenantSyncer runs an on-demand tenant sync
type TenantSyncer interface {
	SyncTenantByID(ctx context.Context, tenantID string) scheduler.Outcome
}

// SyncRequestWorker consumes SyncRequested events and runs the requested tenant syncs
type SyncRequestWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	syncer       TenantSyncer
	logger       *zap.Logger
}

// NewSyncRequestWorker creates a new sync request worker
func NewSyncRequestWorker(consumer *broker.Consumer, syncer TenantSyncer) *SyncRequestWorker {
	w := &SyncRequestWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		syncer:       syncer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnSyncRequested(w.handleSyncRequested)
	return w
}

// Start starts the worker and blocks until ctx is cancelled
func (w *SyncRequestWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync request worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SyncRequestWorker) Stop() error {
	w.logger.Info("Stopping sync request worker")
	return w.consumer.Close()
}

func (w *SyncRequestWorker) handleSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	logger := w.logger.With(
		zap.String("tenant_id", event.TenantID),
		zap.String("event_id", event.EventID),
		zap.String("source", event.Source))

	logger.Info("Processing sync request")
	outcome := w.syncer.SyncTenantByID(ctx, event.TenantID)
	if !outcome.Success {
		logger.Warn("Requested sync did not succeed", zap.String("message", outcome.Message))
		return nil
	}

	logger.Info("Requested sync completed", zap.String("message", outcome.Message))
	return nil
}
