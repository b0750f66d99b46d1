package shopify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingID is returned when a record carries no usable identifier
var ErrMissingID = errors.New("record has no id")

// ID is an upstream identifier. The API sends numbers, some proxies send strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", string(data))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Numeric is a loosely typed number. Missing or non-numeric values read as zero.
type Numeric string

func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Numeric(strings.TrimSpace(s))
		return nil
	}
	*n = Numeric(data)
	return nil
}

// Float64 returns the value or zero. NaN and infinities read as zero.
func (n Numeric) Float64() float64 {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Int returns the value truncated to an integer, or zero when it is not a number or
// does not fit an int32
func (n Numeric) Int() int {
	if i, err := strconv.ParseInt(string(n), 10, 32); err == nil {
		return int(i)
	}
	f := math.Trunc(n.Float64())
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// Customer is a customer record as served by the storefront API
type Customer struct {
	ID          ID      `json:"id"`
	Email       string  `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Phone       string  `json:"phone"`
	TotalSpent  Numeric `json:"total_spent"`
	OrdersCount Numeric `json:"orders_count"`
}

// CustomerRef is the customer stub embedded in an order
type CustomerRef struct {
	ID ID `json:"id"`
}

// LineItem is one line of an upstream order
type LineItem struct {
	Title     string  `json:"title"`
	Quantity  Numeric `json:"quantity"`
	Price     Numeric `json:"price"`
	VariantID ID      `json:"variant_id"`
}

// Order is an order record as served by the storefront API
type Order struct {
	ID                ID           `json:"id"`
	Name              string       `json:"name"`
	OrderNumber       Numeric      `json:"order_number"`
	TotalPrice        Numeric      `json:"total_price"`
	SubtotalPrice     Numeric      `json:"subtotal_price"`
	TotalTax          Numeric      `json:"total_tax"`
	Currency          string       `json:"currency"`
	FinancialStatus   string       `json:"financial_status"`
	FulfillmentStatus string       `json:"fulfillment_status"`
	ProcessedAt       string       `json:"processed_at"`
	Customer          *CustomerRef `json:"customer"`
	LineItems         []LineItem   `json:"line_items"`
}

// Product is a catalog product as served by the storefront API
type Product struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	BodyHTML    string `json:"body_html"`
	Vendor      string `json:"vendor"`
	ProductType string `json:"product_type"`
	Status      string `json:"status"`
}

// Shop is the store profile served by /shop.json
type Shop struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

// DecodeCustomer decodes one raw customer record
func DecodeCustomer(raw json.RawMessage) (*Customer, error) {
	var c Customer
	if err := decode(raw, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, ErrMissingID
	}
	return &c, nil
}

// DecodeOrder decodes one raw order record
func DecodeOrder(raw json.RawMessage) (*Order, error) {
	var o Order
	if err := decode(raw, &o); err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, ErrMissingID
	}
	return &o, nil
}

// DecodeProduct decodes one raw product record
func DecodeProduct(raw json.RawMessage) (*Product, error) {
	var p Product
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, ErrMissingID
	}
	return &p, nil
}

func decode(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed record: %w", err)
	}
	return nil
}
