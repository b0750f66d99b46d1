package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"commerce-sync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStoreFromDB(sqlx.NewDb(db, "postgres")), mock
}

func strPtr(s string) *string { return &s }

func TestUpsertCustomer(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	c := &models.Customer{
		TenantID:    "tenant-1",
		ExternalID:  "1",
		Email:       strPtr("a@x.com"),
		TotalSpent:  10,
		OrdersCount: 0,
	}

	mock.ExpectQuery("INSERT INTO customers .* ON CONFLICT \\(tenant_id, external_id\\) DO UPDATE").
		WithArgs(c.TenantID, c.ExternalID, c.Email, c.FirstName, c.LastName, c.Phone, c.TotalSpent, c.OrdersCount).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	require.NoError(t, s.UpsertCustomer(context.Background(), c))
	assert.Equal(t, int64(7), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCustomerError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO customers").WillReturnError(errors.New("constraint violation"))

	err := s.UpsertCustomer(context.Background(), &models.Customer{TenantID: "t", ExternalID: "9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert customer 9")
}

func TestFindCustomerID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM customers WHERE tenant_id = \\$1 AND external_id = \\$2").
		WithArgs("tenant-1", "42").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	id, err := s.FindCustomerID(context.Background(), "tenant-1", "42")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(3), *id)
}

func TestFindCustomerIDMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM customers").
		WithArgs("tenant-1", "404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err := s.FindCustomerID(context.Background(), "tenant-1", "404")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestUpsertOrderWithLineItems(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	order := &models.Order{TenantID: "tenant-1", ExternalID: "1001", OrderNumber: "#1001", Currency: "USD"}
	items := []models.OrderLineItem{
		{Title: "A", Quantity: 1, Price: 5},
		{Title: "C", Quantity: 2, Price: 7.5},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))
	mock.ExpectExec("DELETE FROM order_line_items WHERE order_id = \\$1").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("INSERT INTO order_line_items").
		WithArgs(int64(11), "A", 1, 5.0, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectQuery("INSERT INTO order_line_items").
		WithArgs(int64(11), "C", 2, 7.5, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertOrderWithLineItems(context.Background(), order, items))
	assert.Equal(t, int64(11), order.ID)
	assert.Equal(t, int64(100), items[0].ID)
	assert.Equal(t, int64(11), items[1].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertOrderRollsBackOnLineItemFailure(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))
	mock.ExpectExec("DELETE FROM order_line_items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO order_line_items").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.UpsertOrderWithLineItems(context.Background(),
		&models.Order{TenantID: "t", ExternalID: "1"},
		[]models.OrderLineItem{{Title: "A"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProduct(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	p := &models.Product{TenantID: "tenant-1", ExternalID: "55", Title: "Hat", Handle: "hat", Status: "active"}

	mock.ExpectQuery("INSERT INTO products .* ON CONFLICT \\(tenant_id, external_id\\) DO UPDATE").
		WithArgs(p.TenantID, p.ExternalID, p.Title, p.Handle, p.Description, p.Vendor, p.ProductType, p.Status).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(2, now, now))

	require.NoError(t, s.UpsertProduct(context.Background(), p))
	assert.Equal(t, int64(2), p.ID)
}

func TestCreateSyncLogAssignsID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	l := &models.SyncLog{
		TenantID:         "tenant-1",
		EntityType:       models.EntityCustomers,
		Status:           models.SyncStatusSuccess,
		RecordsProcessed: 1,
		StartedAt:        now,
		CompletedAt:      now,
	}

	mock.ExpectExec("INSERT INTO sync_logs").
		WithArgs(sqlmock.AnyArg(), "tenant-1", "customers", "success", 1, 0, false, nil, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.CreateSyncLog(context.Background(), l))
	assert.NotEmpty(t, l.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSyncLogsWithEntityFilter(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM sync_logs WHERE tenant_id = \\$1 AND entity_type = \\$2").
		WithArgs("tenant-1", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT \\* FROM sync_logs WHERE tenant_id = \\$1 AND entity_type = \\$2 ORDER BY started_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("tenant-1", "orders", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "entity_type", "status", "records_processed", "records_failed",
			"fetch_failed", "error_message", "started_at", "completed_at",
		}).
			AddRow("a", "tenant-1", "orders", "success", 4, 0, false, nil, now, now).
			AddRow("b", "tenant-1", "orders", "error", 0, 0, true, "timeout", now, now))

	logs, total, err := s.ListSyncLogs(context.Background(), "tenant-1",
		models.SyncLogFilter{EntityType: "orders", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, logs, 2)
	assert.True(t, logs[1].FetchFailed)
	require.NotNil(t, logs[1].ErrorMessage)
	assert.Equal(t, "timeout", *logs[1].ErrorMessage)
}

func TestLastSuccessfulSyncs(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT entity_type, MAX\\(completed_at\\)").
		WithArgs("tenant-1", "success").
		WillReturnRows(sqlmock.NewRows([]string{"entity_type", "completed_at"}).
			AddRow("customers", now))

	last, err := s.LastSuccessfulSyncs(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, now, last["customers"])
	_, ok := last["orders"]
	assert.False(t, ok)
}

func TestGetTenantNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM tenants WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tenant, err := s.GetTenant(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tenant)
}

func TestListActiveTenants(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT \\* FROM tenants WHERE is_active = TRUE").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "shop_domain", "access_token", "is_active", "created_at", "updated_at",
		}).AddRow("t1", "Shop", "shop.myshopify.com", "tok", true, now, now))

	tenants, err := s.ListActiveTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "tok", tenants[0].AccessToken)
}

func TestCountEntities(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"customers", "orders", "products"}).AddRow(1, 2, 3))

	counts, err := s.CountEntities(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntityCounts{Customers: 1, Orders: 2, Products: 3}, *counts)
}
