package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quotation is a quote document. It exclusively owns its line items: deleting the
// quotation deletes them (ON DELETE CASCADE).
type Quotation struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	QuoteNumber   string              `gorm:"column:quote_no;size:64;not null;uniqueIndex" json:"quote_no"`
	CustomerName  string              `gorm:"size:255;not null" json:"customer_name"`
	CustomerPhone *string             `gorm:"size:64" json:"customer_phone"`
	SalesmanName  string              `gorm:"size:255;not null" json:"salesman_name"`
	TaxRate       decimal.Decimal     `gorm:"column:tax;type:decimal(7,3);not null;default:0" json:"tax"`
	CreatedAt     time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	LineItems     []QuotationLineItem `gorm:"foreignKey:QuotationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
}

func (Quotation) TableName() string { return "quotations" }

// Subtotal sums the line totals.
func (q *Quotation) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range q.LineItems {
		sum = sum.Add(li.LineTotal)
	}
	return sum
}

// TaxAmount applies TaxRate (a percentage) to the subtotal.
func (q *Quotation) TaxAmount() decimal.Decimal {
	return RoundMoney(q.Subtotal().Mul(q.TaxRate).Div(hundred))
}

// GrandTotal is subtotal plus tax.
func (q *Quotation) GrandTotal() decimal.Decimal {
	return q.Subtotal().Add(q.TaxAmount())
}

// QuotationLineItem links a quotation to a catalog item. UnitPrice and LineTotal are
// snapshots taken when the line was written; later catalog price changes do not touch them.
type QuotationLineItem struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	QuotationID   uint            `gorm:"index;not null" json:"quotation_id"`
	CatalogItemID uint            `gorm:"column:item_id;index;not null" json:"item_id"`
	CatalogItem   *CatalogItem    `gorm:"foreignKey:CatalogItemID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"item,omitempty"`
	Position      int             `gorm:"not null;default:0" json:"position"`
	Quantity      decimal.Decimal `gorm:"column:qty;type:decimal(12,3);not null" json:"qty"`
	UnitPrice     decimal.Decimal `gorm:"column:price;type:decimal(14,2);not null" json:"price"`
	LineTotal     decimal.Decimal `gorm:"column:total;type:decimal(14,2);not null" json:"total"`
}

func (QuotationLineItem) TableName() string { return "quotation_items" }
