package service

import (
	"context"
	"sync"

	"commerce-sync/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.SyncCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}
