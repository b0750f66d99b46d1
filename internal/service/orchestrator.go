package service

import (
	"context"
	"fmt"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/shopify"
	"commerce-sync/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	recentLogsLimit     = 10
	defaultLogsPageSize = 20
	maxLogsPageSize     = 100
)

// SyncResults holds the per-entity outcome of a tenant run. Entities that did not run are nil.
type SyncResults struct {
	Customers *models.SyncResult `json:"customers,omitempty"`
	Orders    *models.SyncResult `json:"orders,omitempty"`
	Products  *models.SyncResult `json:"products,omitempty"`
}

// QuickSync syncs customers and orders concurrently. Both branches always finish and the
// first error is returned alongside whatever results were produced.
//
// Orders resolve their customer link against rows present at lookup time, so an order
// whose customer is first seen in this same run may be stored without a customer. The
// next run links it.
func (s *SyncService) QuickSync(ctx context.Context, tenant *models.Tenant) (*SyncResults, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.QuickSync", attribute.String("tenant_id", tenant.ID))
	defer span.End()

	results := &SyncResults{}
	var g errgroup.Group
	g.Go(func() error {
		r, err := s.SyncCustomers(ctx, tenant)
		results.Customers = r
		return err
	})
	g.Go(func() error {
		r, err := s.SyncOrders(ctx, tenant)
		results.Orders = r
		return err
	})

	if err := g.Wait(); err != nil {
		util.RecordSpanError(span, err)
		return results, fmt.Errorf("quick sync failed for tenant %s: %w", tenant.ID, err)
	}
	return results, nil
}

// FullSync syncs customers, then orders, then products. A failed stage stops the run.
func (s *SyncService) FullSync(ctx context.Context, tenant *models.Tenant) (*SyncResults, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.FullSync", attribute.String("tenant_id", tenant.ID))
	defer span.End()

	results := &SyncResults{}
	stages := []struct {
		run  func(context.Context, *models.Tenant) (*models.SyncResult, error)
		into **models.SyncResult
	}{
		{s.SyncCustomers, &results.Customers},
		{s.SyncOrders, &results.Orders},
		{s.SyncProducts, &results.Products},
	}

	for _, stage := range stages {
		r, err := stage.run(ctx, tenant)
		*stage.into = r
		if err != nil {
			util.RecordSpanError(span, err)
			return results, fmt.Errorf("full sync failed for tenant %s: %w", tenant.ID, err)
		}
	}
	return results, nil
}

// SyncEntity runs an on-demand sync of one entity type. "all" or "" runs a full sync.
func (s *SyncService) SyncEntity(ctx context.Context, tenant *models.Tenant, entityType string) (*SyncResults, error) {
	var (
		r   *models.SyncResult
		err error
	)
	results := &SyncResults{}

	switch entityType {
	case "", "all":
		return s.FullSync(ctx, tenant)
	case models.EntityCustomers:
		r, err = s.SyncCustomers(ctx, tenant)
		results.Customers = r
	case models.EntityOrders:
		r, err = s.SyncOrders(ctx, tenant)
		results.Orders = r
	case models.EntityProducts:
		r, err = s.SyncProducts(ctx, tenant)
		results.Products = r
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	return results, err
}

// SyncStatus summarizes what is stored for a tenant and how recent syncs went
type SyncStatus struct {
	TenantID   string                `json:"tenantId"`
	Counts     models.EntityCounts   `json:"counts"`
	LastSyncs  map[string]*time.Time `json:"lastSyncs"`
	RecentLogs []models.SyncLog      `json:"recentLogs"`
}

// Status returns entity counts, the last successful sync per entity and the latest log rows
func (s *SyncService) Status(ctx context.Context, tenantID string) (*SyncStatus, error) {
	counts, err := s.store.CountEntities(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	last, err := s.store.LastSuccessfulSyncs(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	recent, _, err := s.store.ListSyncLogs(ctx, tenantID, models.SyncLogFilter{Limit: recentLogsLimit})
	if err != nil {
		return nil, err
	}

	lastSyncs := make(map[string]*time.Time, 3)
	for _, entity := range []string{models.EntityCustomers, models.EntityOrders, models.EntityProducts} {
		if t, ok := last[entity]; ok {
			lastSyncs[entity] = &t
		} else {
			lastSyncs[entity] = nil
		}
	}

	return &SyncStatus{
		TenantID:   tenantID,
		Counts:     *counts,
		LastSyncs:  lastSyncs,
		RecentLogs: recent,
	}, nil
}

// LatestSyncLog returns the most recent sync log of the tenant, or nil when it never synced
func (s *SyncService) LatestSyncLog(ctx context.Context, tenantID string) (*models.SyncLog, error) {
	logs, _, err := s.store.ListSyncLogs(ctx, tenantID, models.SyncLogFilter{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// TestConnection reads the store profile with the tenant's credentials
func (s *SyncService) TestConnection(ctx context.Context, tenant *models.Tenant) (*shopify.Shop, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.TestConnection", attribute.String("tenant_id", tenant.ID))
	defer span.End()

	shop, err := s.fetchers(tenant).FetchShop(ctx)
	if err != nil {
		util.RecordSpanError(span, err)
		s.logger.Warn("Storefront connection test failed", zap.String("tenant_id", tenant.ID), zap.Error(err))
		return nil, err
	}
	return shop, nil
}

// Pagination describes one page of a listing
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// SyncLogPage is one page of a tenant's sync history, newest first
type SyncLogPage struct {
	Logs       []models.SyncLog `json:"logs"`
	Pagination Pagination       `json:"pagination"`
}

// Logs pages through a tenant's sync history. page is 1-based; entityType may be empty.
func (s *SyncService) Logs(ctx context.Context, tenantID string, page, limit int, entityType string) (*SyncLogPage, error) {
	if entityType != "" && !ValidEntity(entityType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLogsPageSize
	}
	if limit > maxLogsPageSize {
		limit = maxLogsPageSize
	}

	logs, total, err := s.store.ListSyncLogs(ctx, tenantID, models.SyncLogFilter{
		EntityType: entityType,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.SyncLog{}
	}

	return &SyncLogPage{
		Logs: logs,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}
