package models

import (
	"strings"
	"time"
)

// Tenant represents one connected storefront
type Tenant struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ShopDomain  string    `db:"shop_domain" json:"shop_domain"`
	AccessToken string    `db:"access_token" json:"-"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizedDomain returns the shop domain lower-cased with any scheme and path removed.
func (t *Tenant) NormalizedDomain() string {
	return NormalizeDomain(t.ShopDomain)
}

// NormalizeDomain turns "HTTPS://Shop.myshopify.com/admin" into "shop.myshopify.com".
func NormalizeDomain(raw string) string {
	d := strings.TrimSpace(raw)
	lower := strings.ToLower(d)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			d = d[len(scheme):]
			break
		}
	}
	if i := strings.Index(d, "/"); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}

// Customer represents a storefront customer owned by a tenant
type Customer struct {
	ID          int64     `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	ExternalID  string    `db:"external_id" json:"external_id"`
	Email       *string   `db:"email" json:"email"`
	FirstName   *string   `db:"first_name" json:"first_name"`
	LastName    *string   `db:"last_name" json:"last_name"`
	Phone       *string   `db:"phone" json:"phone"`
	TotalSpent  float64   `db:"total_spent" json:"total_spent"`
	OrdersCount int       `db:"orders_count" json:"orders_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Order represents a storefront order owned by a tenant
type Order struct {
	ID                int64      `db:"id" json:"id"`
	TenantID          string     `db:"tenant_id" json:"tenant_id"`
	ExternalID        string     `db:"external_id" json:"external_id"`
	CustomerID        *int64     `db:"customer_id" json:"customer_id"`
	OrderNumber       string     `db:"order_number" json:"order_number"`
	TotalPrice        float64    `db:"total_price" json:"total_price"`
	SubtotalPrice     float64    `db:"subtotal_price" json:"subtotal_price"`
	TotalTax          float64    `db:"total_tax" json:"total_tax"`
	Currency          string     `db:"currency" json:"currency"`
	FinancialStatus   *string    `db:"financial_status" json:"financial_status"`
	FulfillmentStatus *string    `db:"fulfillment_status" json:"fulfillment_status"`
	ProcessedAt       *time.Time `db:"processed_at" json:"processed_at"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderLineItem represents one line of an order. Line items are replaced wholesale on every order sync.
type OrderLineItem struct {
	ID        int64   `db:"id" json:"id"`
	OrderID   int64   `db:"order_id" json:"order_id"`
	Title     string  `db:"title" json:"title"`
	Quantity  int     `db:"quantity" json:"quantity"`
	Price     float64 `db:"price" json:"price"`
	VariantID *string `db:"variant_id" json:"variant_id"`
}

// Product represents a storefront catalog product owned by a tenant
type Product struct {
	ID          int64     `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	ExternalID  string    `db:"external_id" json:"external_id"`
	Title       string    `db:"title" json:"title"`
	Handle      string    `db:"handle" json:"handle"`
	Description *string   `db:"description" json:"description"`
	Vendor      *string   `db:"vendor" json:"vendor"`
	ProductType *string   `db:"product_type" json:"product_type"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Entity types
const (
	EntityCustomers = "customers"
	EntityOrders    = "orders"
	EntityProducts  = "products"
)

// Sync statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
)

// SyncLog is the immutable record of one synchronization attempt
type SyncLog struct {
	ID               string    `db:"id" json:"id"`
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	EntityType       string    `db:"entity_type" json:"entity_type"`
	Status           string    `db:"status" json:"status"`
	RecordsProcessed int       `db:"records_processed" json:"records_processed"`
	RecordsFailed    int       `db:"records_failed" json:"records_failed"`
	FetchFailed      bool      `db:"fetch_failed" json:"fetch_failed"`
	ErrorMessage     *string   `db:"error_message" json:"error_message"`
	StartedAt        time.Time `db:"started_at" json:"started_at"`
	CompletedAt      time.Time `db:"completed_at" json:"completed_at"`
}

// SyncResult is the per-entity outcome of one run
type SyncResult struct {
	RecordsProcessed int `json:"recordsProcessed"`
	RecordsFailed    int `json:"recordsFailed"`
}

// EntityCounts holds the number of stored rows per entity for a tenant
type EntityCounts struct {
	Customers int `db:"customers" json:"customers"`
	Orders    int `db:"orders" json:"orders"`
	Products  int `db:"products" json:"products"`
}

// SyncLogFilter narrows a sync log listing
type SyncLogFilter struct {
	EntityType string
	Limit      int
	Offset     int
}
