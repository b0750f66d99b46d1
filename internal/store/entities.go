package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-sync/internal/models"
)

// UpsertCustomer inserts the customer or updates the row matching (tenant_id, external_id)
func (s *Store) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (tenant_id, external_id, email, first_name, last_name, phone, total_spent, orders_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			total_spent = EXCLUDED.total_spent,
			orders_count = EXCLUDED.orders_count,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	if err := s.db.GetContext(ctx, c, query,
		c.TenantID, c.ExternalID, c.Email, c.FirstName, c.LastName, c.Phone, c.TotalSpent, c.OrdersCount); err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", c.ExternalID, err)
	}
	return nil
}

// FindCustomerID resolves the internal ID of a customer. It returns nil when the customer
// has not been synced yet.
func (s *Store) FindCustomerID(ctx context.Context, tenantID, externalID string) (*int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM customers WHERE tenant_id = $1 AND external_id = $2", tenantID, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer %s: %w", externalID, err)
	}
	return &id, nil
}

// UpsertOrderWithLineItems upserts the order and replaces all of its line items in one transaction
func (s *Store) UpsertOrderWithLineItems(ctx context.Context, o *models.Order, items []models.OrderLineItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (tenant_id, external_id, customer_id, order_number, total_price, subtotal_price,
			total_tax, currency, financial_status, fulfillment_status, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			order_number = EXCLUDED.order_number,
			total_price = EXCLUDED.total_price,
			subtotal_price = EXCLUDED.subtotal_price,
			total_tax = EXCLUDED.total_tax,
			currency = EXCLUDED.currency,
			financial_status = EXCLUDED.financial_status,
			fulfillment_status = EXCLUDED.fulfillment_status,
			processed_at = EXCLUDED.processed_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, o, query,
		o.TenantID, o.ExternalID, o.CustomerID, o.OrderNumber, o.TotalPrice, o.SubtotalPrice,
		o.TotalTax, o.Currency, o.FinancialStatus, o.FulfillmentStatus, o.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.ExternalID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_line_items WHERE order_id = $1", o.ID); err != nil {
		return fmt.Errorf("failed to clear line items for order %d: %w", o.ID, err)
	}

	for i := range items {
		item := &items[i]
		item.OrderID = o.ID
		err := tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_line_items (order_id, title, quantity, price, variant_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			item.OrderID, item.Title, item.Quantity, item.Price, item.VariantID)
		if err != nil {
			return fmt.Errorf("failed to insert line item for order %d: %w", o.ID, err)
		}
	}

	return tx.Commit()
}

// UpsertProduct inserts the product or updates the row matching (tenant_id, external_id)
func (s *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (tenant_id, external_id, title, handle, description, vendor, product_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			handle = EXCLUDED.handle,
			description = EXCLUDED.description,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	if err := s.db.GetContext(ctx, p, query,
		p.TenantID, p.ExternalID, p.Title, p.Handle, p.Description, p.Vendor, p.ProductType, p.Status); err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ExternalID, err)
	}
	return nil
}
