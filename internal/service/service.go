package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/shopify"
	"commerce-sync/internal/util"

	"go.uber.org/zap"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant is not active")
	ErrUnknownEntity  = errors.New("unknown entity type")
)

// Store is the persistence the sync engine needs
type Store interface {
	ListActiveTenants(ctx context.Context) ([]models.Tenant, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CountEntities(ctx context.Context, tenantID string) (*models.EntityCounts, error)

	UpsertCustomer(ctx context.Context, c *models.Customer) error
	FindCustomerID(ctx context.Context, tenantID, externalID string) (*int64, error)
	UpsertOrderWithLineItems(ctx context.Context, o *models.Order, items []models.OrderLineItem) error
	UpsertProduct(ctx context.Context, p *models.Product) error

	CreateSyncLog(ctx context.Context, l *models.SyncLog) error
	ListSyncLogs(ctx context.Context, tenantID string, filter models.SyncLogFilter) ([]models.SyncLog, int, error)
	LastSuccessfulSyncs(ctx context.Context, tenantID string) (map[string]time.Time, error)
}

// Fetcher reads full entity collections from a tenant's storefront
type Fetcher interface {
	FetchCustomers(ctx context.Context) ([]json.RawMessage, error)
	FetchOrders(ctx context.Context) ([]json.RawMessage, error)
	FetchProducts(ctx context.Context) ([]json.RawMessage, error)
	FetchShop(ctx context.Context) (*shopify.Shop, error)
}

// FetcherFactory returns a fetcher bound to the tenant's credentials
type FetcherFactory func(tenant *models.Tenant) Fetcher

// ShopifyFetchers adapts a storefront client factory
func ShopifyFetchers(f *shopify.Factory) FetcherFactory {
	return func(tenant *models.Tenant) Fetcher {
		return f.ForTenant(tenant)
	}
}

// EventPublisher announces finished sync runs
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
}

// SyncService synchronizes tenant storefront data into the local store
type SyncService struct {
	store     Store
	fetchers  FetcherFactory
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSyncService creates a new sync service. publisher may be nil.
func NewSyncService(store Store, fetchers FetcherFactory, publisher EventPublisher) *SyncService {
	return &SyncService{
		store:     store,
		fetchers:  fetchers,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// ActiveTenants lists every tenant eligible for scheduled syncs
func (s *SyncService) ActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	return tenants, nil
}

// ActiveTenant loads a tenant and checks that it may be synced
func (s *SyncService) ActiveTenant(ctx context.Context, id string) (*models.Tenant, error) {
	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	if !tenant.IsActive {
		return nil, ErrTenantInactive
	}
	return tenant, nil
}

// ValidEntity reports whether entityType names a synchronized entity
func ValidEntity(entityType string) bool {
	switch entityType {
	case models.EntityCustomers, models.EntityOrders, models.EntityProducts:
		return true
	}
	return false
}
