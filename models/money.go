package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale of every persisted money column.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// LineTotal is quantity × unit price at money scale.
func LineTotal(qty, price decimal.Decimal) decimal.Decimal {
	return RoundMoney(qty.Mul(price))
}

// NameKey normalizes a catalog item name for case-insensitive uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
