// Package synctest provides in-memory stand-ins for the sync engine's store and
// storefront fetchers.
package synctest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"commerce-sync/internal/models"
)

// Key indexes tenant-scoped records by (tenant, external id)
func Key(tenantID, externalID string) string { return tenantID + "|" + externalID }

// Store keeps tenants, synced entities and sync logs in memory. Fields may be read
// directly once no sync is running.
type Store struct {
	mu sync.Mutex

	nextID    int64
	Tenants   map[string]*models.Tenant
	Customers map[string]*models.Customer
	Orders    map[string]*models.Order
	LineItems map[int64][]models.OrderLineItem
	Products  map[string]*models.Product
	Logs      []models.SyncLog

	// FailCustomers rejects upserts of the listed external ids
	FailCustomers map[string]bool
	FailLogWrites bool
}

func NewStore() *Store {
	return &Store{
		Tenants:       make(map[string]*models.Tenant),
		Customers:     make(map[string]*models.Customer),
		Orders:        make(map[string]*models.Order),
		LineItems:     make(map[int64][]models.OrderLineItem),
		Products:      make(map[string]*models.Product),
		FailCustomers: make(map[string]bool),
	}
}

// AddTenant registers a tenant
func (m *Store) AddTenant(t models.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tenants[t.ID] = &t
}

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Store) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Tenant
	for _, t := range m.Tenants {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *Store) CountEntities(ctx context.Context, tenantID string) (*models.EntityCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := &models.EntityCounts{}
	for _, c := range m.Customers {
		if c.TenantID == tenantID {
			counts.Customers++
		}
	}
	for _, o := range m.Orders {
		if o.TenantID == tenantID {
			counts.Orders++
		}
	}
	for _, p := range m.Products {
		if p.TenantID == tenantID {
			counts.Products++
		}
	}
	return counts, nil
}

func (m *Store) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCustomers[c.ExternalID] {
		return errors.New("constraint violation")
	}
	k := Key(c.TenantID, c.ExternalID)
	if existing, ok := m.Customers[k]; ok {
		c.ID = existing.ID
	} else {
		c.ID = m.id()
	}
	cp := *c
	m.Customers[k] = &cp
	return nil
}

func (m *Store) FindCustomerID(ctx context.Context, tenantID, externalID string) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Customers[Key(tenantID, externalID)]
	if !ok {
		return nil, nil
	}
	id := c.ID
	return &id, nil
}

func (m *Store) UpsertOrderWithLineItems(ctx context.Context, o *models.Order, items []models.OrderLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(o.TenantID, o.ExternalID)
	if existing, ok := m.Orders[k]; ok {
		o.ID = existing.ID
	} else {
		o.ID = m.id()
	}
	cp := *o
	m.Orders[k] = &cp

	replaced := make([]models.OrderLineItem, 0, len(items))
	for i := range items {
		items[i].OrderID = o.ID
		items[i].ID = m.id()
		replaced = append(replaced, items[i])
	}
	m.LineItems[o.ID] = replaced
	return nil
}

func (m *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(p.TenantID, p.ExternalID)
	if existing, ok := m.Products[k]; ok {
		p.ID = existing.ID
	} else {
		p.ID = m.id()
	}
	cp := *p
	m.Products[k] = &cp
	return nil
}

func (m *Store) CreateSyncLog(ctx context.Context, l *models.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLogWrites {
		return errors.New("database unavailable")
	}
	if l.ID == "" {
		l.ID = fmt.Sprintf("log-%d", len(m.Logs)+1)
	}
	m.Logs = append(m.Logs, *l)
	return nil
}

func (m *Store) ListSyncLogs(ctx context.Context, tenantID string, filter models.SyncLogFilter) ([]models.SyncLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.SyncLog
	for _, l := range m.Logs {
		if l.TenantID == tenantID && (filter.EntityType == "" || l.EntityType == filter.EntityType) {
			matched = append(matched, l)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].StartedAt.After(matched[j].StartedAt) })

	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (m *Store) LastSuccessfulSyncs(ctx context.Context, tenantID string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time)
	for _, l := range m.Logs {
		if l.TenantID != tenantID || l.Status != models.SyncStatusSuccess {
			continue
		}
		if l.CompletedAt.After(out[l.EntityType]) {
			out[l.EntityType] = l.CompletedAt
		}
	}
	return out, nil
}

// LogsFor returns the sync logs written for entity, in insertion order
func (m *Store) LogsFor(entity string) []models.SyncLog {
	return m.TenantLogsFor("", entity)
}

// TenantLogsFor is LogsFor restricted to one tenant. An empty tenantID matches all.
func (m *Store) TenantLogsFor(tenantID, entity string) []models.SyncLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SyncLog
	for _, l := range m.Logs {
		if l.EntityType == entity && (tenantID == "" || l.TenantID == tenantID) {
			out = append(out, l)
		}
	}
	return out
}
