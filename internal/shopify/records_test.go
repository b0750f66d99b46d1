package shopify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCustomerAcceptsNumericAndStringIDs(t *testing.T) {
	c, err := DecodeCustomer(json.RawMessage(`{"id":6012345678901,"email":"a@x.com","total_spent":"12.50","orders_count":3}`))
	require.NoError(t, err)
	assert.Equal(t, ID("6012345678901"), c.ID)
	assert.Equal(t, 12.5, c.TotalSpent.Float64())
	assert.Equal(t, 3, c.OrdersCount.Int())

	c, err = DecodeCustomer(json.RawMessage(`{"id":"42"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", c.ID.String())
}

func TestDecodeRejectsMissingID(t *testing.T) {
	_, err := DecodeCustomer(json.RawMessage(`{"email":"a@x.com"}`))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = DecodeProduct(json.RawMessage(`{"id":null,"title":"Hat"}`))
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestDecodeRejectsMalformedRecord(t *testing.T) {
	_, err := DecodeOrder(json.RawMessage(`{"id":[1,2]}`))
	require.Error(t, err)

	_, err = DecodeCustomer(json.RawMessage(`[]`))
	require.Error(t, err)
}

func TestNumericFallsBackToZero(t *testing.T) {
	o, err := DecodeOrder(json.RawMessage(`{"id":1,"total_price":"abc","subtotal_price":null,"total_tax":{"x":1},"line_items":[{"title":"A","quantity":"2","price":5}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, o.TotalPrice.Float64())
	assert.Equal(t, 0.0, o.SubtotalPrice.Float64())
	assert.Equal(t, 0.0, o.TotalTax.Float64())
	require.Len(t, o.LineItems, 1)
	assert.Equal(t, 2, o.LineItems[0].Quantity.Int())
	assert.Equal(t, 5.0, o.LineItems[0].Price.Float64())
	assert.Equal(t, ID(""), o.LineItems[0].VariantID)
}

func TestNumericRejectsNonFiniteAndOutOfRange(t *testing.T) {
	tests := []struct {
		in    Numeric
		wantF float64
		wantI int
	}{
		{in: "NaN", wantF: 0, wantI: 0},
		{in: "Inf", wantF: 0, wantI: 0},
		{in: "-Infinity", wantF: 0, wantI: 0},
		{in: "1e300", wantF: 1e300, wantI: 0},
		{in: "99999999999", wantF: 99999999999, wantI: 0},
		{in: "3.9", wantF: 3.9, wantI: 3},
		{in: "-7", wantF: -7, wantI: -7},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.wantF, tt.in.Float64())
			assert.Equal(t, tt.wantI, tt.in.Int())
		})
	}
}
