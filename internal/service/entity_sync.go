package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/shopify"
	"commerce-sync/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultCurrency      = "USD"
	defaultProductStatus = "active"
	logWriteTimeout      = 10 * time.Second
)

type fetchFunc func(ctx context.Context) ([]json.RawMessage, error)

// applyFunc persists one raw record and returns its external id
type applyFunc func(ctx context.Context, raw json.RawMessage) (string, error)

// SyncCustomers fetches all customers of the tenant and upserts them
func (s *SyncService) SyncCustomers(ctx context.Context, tenant *models.Tenant) (*models.SyncResult, error) {
	fetcher := s.fetchers(tenant)
	return s.runEntitySync(ctx, tenant, models.EntityCustomers, fetcher.FetchCustomers,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			rec, err := shopify.DecodeCustomer(raw)
			if err != nil {
				return "", err
			}
			return rec.ID.String(), s.store.UpsertCustomer(ctx, mapCustomer(tenant.ID, rec))
		})
}

// SyncOrders fetches all orders of the tenant, links them to synced customers and replaces
// their line items
func (s *SyncService) SyncOrders(ctx context.Context, tenant *models.Tenant) (*models.SyncResult, error) {
	fetcher := s.fetchers(tenant)
	return s.runEntitySync(ctx, tenant, models.EntityOrders, fetcher.FetchOrders,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			rec, err := shopify.DecodeOrder(raw)
			if err != nil {
				return "", err
			}

			var customerID *int64
			if rec.Customer != nil && rec.Customer.ID != "" {
				customerID, err = s.store.FindCustomerID(ctx, tenant.ID, rec.Customer.ID.String())
				if err != nil {
					return rec.ID.String(), err
				}
			}

			order, items := mapOrder(tenant.ID, rec, customerID)
			return rec.ID.String(), s.store.UpsertOrderWithLineItems(ctx, order, items)
		})
}

// SyncProducts fetches all products of the tenant and upserts them
func (s *SyncService) SyncProducts(ctx context.Context, tenant *models.Tenant) (*models.SyncResult, error) {
	fetcher := s.fetchers(tenant)
	return s.runEntitySync(ctx, tenant, models.EntityProducts, fetcher.FetchProducts,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			rec, err := shopify.DecodeProduct(raw)
			if err != nil {
				return "", err
			}
			return rec.ID.String(), s.store.UpsertProduct(ctx, mapProduct(tenant.ID, rec))
		})
}

// runEntitySync fetches the full collection, applies every record and writes exactly one sync log row.
// Record failures are counted and never abort the run.
func (s *SyncService) runEntitySync(ctx context.Context, tenant *models.Tenant, entity string, fetch fetchFunc, apply applyFunc) (*models.SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.Sync",
		attribute.String("tenant_id", tenant.ID),
		attribute.String("entity_type", entity))
	defer span.End()

	logger := s.logger.With(zap.String("tenant_id", tenant.ID), zap.String("entity_type", entity))
	startedAt := s.now()
	defer func() {
		util.SyncDuration.WithLabelValues(entity).Observe(time.Since(startedAt).Seconds())
	}()

	records, err := fetch(ctx)
	if err != nil {
		util.RecordSpanError(span, err)
		logger.Error("Fetch failed", zap.Error(err))
		s.recordRun(ctx, &models.SyncLog{
			TenantID:     tenant.ID,
			EntityType:   entity,
			Status:       models.SyncStatusError,
			FetchFailed:  true,
			ErrorMessage: errorMessage(err),
			StartedAt:    startedAt,
		})
		return nil, fmt.Errorf("failed to sync %s: %w", entity, err)
	}

	result := &models.SyncResult{}
	var runErr error
	for _, raw := range records {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		result.RecordsProcessed++
		externalID, err := apply(ctx, raw)
		if err != nil {
			result.RecordsFailed++
			logger.Warn("Failed to sync record",
				zap.String("external_id", externalID),
				zap.Error(err))
		}
	}

	util.SyncRecordsTotal.WithLabelValues(entity, "synced").Add(float64(result.RecordsProcessed - result.RecordsFailed))
	util.SyncRecordsTotal.WithLabelValues(entity, "failed").Add(float64(result.RecordsFailed))

	entry := &models.SyncLog{
		TenantID:         tenant.ID,
		EntityType:       entity,
		Status:           models.SyncStatusSuccess,
		RecordsProcessed: result.RecordsProcessed,
		RecordsFailed:    result.RecordsFailed,
		StartedAt:        startedAt,
	}
	if result.RecordsFailed > 0 {
		entry.Status = models.SyncStatusPartial
	}
	if runErr != nil {
		entry.Status = models.SyncStatusError
		entry.ErrorMessage = errorMessage(fmt.Errorf("sync interrupted after %d of %d records: %w",
			result.RecordsProcessed, len(records), runErr))
	}
	s.recordRun(ctx, entry)

	if runErr != nil {
		util.RecordSpanError(span, runErr)
		logger.Error("Sync interrupted", zap.Error(runErr))
		return result, fmt.Errorf("failed to sync %s: %w", entity, runErr)
	}

	logger.Info("Sync completed",
		zap.String("status", entry.Status),
		zap.Int("records_processed", result.RecordsProcessed),
		zap.Int("records_failed", result.RecordsFailed))
	return result, nil
}

// recordRun appends the sync log row and announces it. Neither failure changes the run outcome.
func (s *SyncService) recordRun(ctx context.Context, entry *models.SyncLog) {
	entry.CompletedAt = s.now()
	util.SyncRunsTotal.WithLabelValues(entry.EntityType, entry.Status).Inc()

	// the run context may already be cancelled by the tenant timeout
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()

	logger := s.logger.With(zap.String("tenant_id", entry.TenantID), zap.String("entity_type", entry.EntityType))
	if err := s.store.CreateSyncLog(writeCtx, entry); err != nil {
		logger.Error("Failed to write sync log", zap.Error(err))
		return
	}

	if s.publisher == nil {
		return
	}

	event := &models.SyncCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSyncCompleted,
			Timestamp: entry.CompletedAt,
		},
		SyncLogID:        entry.ID,
		TenantID:         entry.TenantID,
		EntityType:       entry.EntityType,
		Status:           entry.Status,
		RecordsProcessed: entry.RecordsProcessed,
		RecordsFailed:    entry.RecordsFailed,
		ErrorMessage:     entry.ErrorMessage,
	}
	if err := s.publisher.PublishSyncCompleted(writeCtx, event); err != nil {
		logger.Error("Failed to publish SyncCompleted event", zap.Error(err))
	}
}

func mapCustomer(tenantID string, c *shopify.Customer) *models.Customer {
	return &models.Customer{
		TenantID:    tenantID,
		ExternalID:  c.ID.String(),
		Email:       nullable(c.Email),
		FirstName:   nullable(c.FirstName),
		LastName:    nullable(c.LastName),
		Phone:       nullable(c.Phone),
		TotalSpent:  c.TotalSpent.Float64(),
		OrdersCount: c.OrdersCount.Int(),
	}
}

func mapOrder(tenantID string, o *shopify.Order, customerID *int64) (*models.Order, []models.OrderLineItem) {
	orderNumber := o.Name
	if orderNumber == "" {
		orderNumber = string(o.OrderNumber)
	}

	currency := o.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	order := &models.Order{
		TenantID:          tenantID,
		ExternalID:        o.ID.String(),
		CustomerID:        customerID,
		OrderNumber:       orderNumber,
		TotalPrice:        o.TotalPrice.Float64(),
		SubtotalPrice:     o.SubtotalPrice.Float64(),
		TotalTax:          o.TotalTax.Float64(),
		Currency:          currency,
		FinancialStatus:   nullable(o.FinancialStatus),
		FulfillmentStatus: nullable(o.FulfillmentStatus),
		ProcessedAt:       parseTime(o.ProcessedAt),
	}

	items := make([]models.OrderLineItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		items = append(items, models.OrderLineItem{
			Title:     li.Title,
			Quantity:  li.Quantity.Int(),
			Price:     li.Price.Float64(),
			VariantID: nullable(li.VariantID.String()),
		})
	}
	return order, items
}

func mapProduct(tenantID string, p *shopify.Product) *models.Product {
	status := p.Status
	if status == "" {
		status = defaultProductStatus
	}
	return &models.Product{
		TenantID:    tenantID,
		ExternalID:  p.ID.String(),
		Title:       p.Title,
		Handle:      p.Handle,
		Description: nullable(p.BodyHTML),
		Vendor:      nullable(p.Vendor),
		ProductType: nullable(p.ProductType),
		Status:      status,
	}
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func errorMessage(err error) *string {
	msg := err.Error()
	return &msg
}
