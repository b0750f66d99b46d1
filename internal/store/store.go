package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"commerce-sync/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListActiveTenants retrieves all tenants eligible for scheduled sync
func (s *Store) ListActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.db.SelectContext(ctx, &tenants,
		"SELECT * FROM tenants WHERE is_active = TRUE ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	return tenants, nil
}

// GetTenant retrieves a tenant by ID. It returns nil when the tenant does not exist.
func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.GetContext(ctx, &tenant, "SELECT * FROM tenants WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", id, err)
	}
	return &tenant, nil
}

// CountEntities returns the number of stored rows per entity type for a tenant
func (s *Store) CountEntities(ctx context.Context, tenantID string) (*models.EntityCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM customers WHERE tenant_id = $1) AS customers,
			(SELECT COUNT(*) FROM orders WHERE tenant_id = $1) AS orders,
			(SELECT COUNT(*) FROM products WHERE tenant_id = $1) AS products`

	var counts models.EntityCounts
	if err := s.db.GetContext(ctx, &counts, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	return &counts, nil
}
