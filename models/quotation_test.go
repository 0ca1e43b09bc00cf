package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineTotal(t *testing.T) {
	cases := []struct {
		qty, price, want string
	}{
		{"3", "10", "30"},
		{"1.5", "3.33", "5"},
		{"0.5", "9.99", "5"},
		{"2", "0", "0"},
		{"0.333", "1", "0.33"},
	}
	for _, tc := range cases {
		got := LineTotal(dec(tc.qty), dec(tc.price))
		assert.True(t, dec(tc.want).Equal(got), "%s x %s = %s", tc.qty, tc.price, got)
	}
}

func TestQuotationTotals(t *testing.T) {
	q := Quotation{
		TaxRate: dec("18"),
		LineItems: []QuotationLineItem{
			{LineTotal: dec("30.00")},
			{LineTotal: dec("5.00")},
		},
	}
	assert.True(t, dec("35").Equal(q.Subtotal()))
	assert.True(t, dec("6.30").Equal(q.TaxAmount()))
	assert.True(t, dec("41.30").Equal(q.GrandTotal()))

	empty := Quotation{TaxRate: dec("10")}
	assert.True(t, empty.Subtotal().IsZero())
	assert.True(t, empty.GrandTotal().IsZero())
}

func TestNameKey(t *testing.T) {
	assert.Equal(t, "widget", NameKey("  Widget "))
	assert.Equal(t, NameKey("WIDGET"), NameKey("widget"))
}
