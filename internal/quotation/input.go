package quotation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"quotations/internal/apperr"
	"quotations/internal/patch"
	"quotations/models"
)

const qtyPlaces = 3

var maxTax = decimal.NewFromInt(100)

// LineItemDescriptor is one requested line. It names an existing catalog item by
// ItemID, or an item by ItemName that is looked up and created when missing.
type LineItemDescriptor struct {
	ItemID   *uint            `json:"item_id,omitempty"`
	ItemName string           `json:"item_name,omitempty"`
	Qty      decimal.Decimal  `json:"qty"`
	Price    *decimal.Decimal `json:"price"`
	// Total overrides qty × price when supplied.
	Total *decimal.Decimal `json:"total,omitempty"`
	// ReplaceImage, on update, overwrites the image and unit price of the
	// catalog item named by ItemID with the uploaded image for this line.
	ReplaceImage bool `json:"replace_image,omitempty"`
	// ImageIndex picks an uploaded file explicitly instead of by upload order.
	ImageIndex *int `json:"image_index,omitempty"`
}

func (d LineItemDescriptor) validate(pos int) error {
	fail := func(format string, args ...any) error {
		return apperr.Validation(fmt.Sprintf("items[%d]: ", pos) + fmt.Sprintf(format, args...))
	}
	switch {
	case d.ItemID == nil && strings.TrimSpace(d.ItemName) == "":
		return fail("item_id or item_name is required")
	case d.ItemID != nil && *d.ItemID == 0:
		return fail("item_id must be positive")
	case !d.Qty.IsPositive():
		return fail("qty must be greater than zero")
	case d.Price == nil:
		return fail("price is required")
	case d.Price.IsNegative():
		return fail("price must not be negative")
	case d.Total != nil && d.Total.IsNegative():
		return fail("total must not be negative")
	case d.ImageIndex != nil && *d.ImageIndex < 0:
		return fail("image_index must not be negative")
	}
	return nil
}

// unitPrice is the price snapshot stored on the line.
func (d LineItemDescriptor) unitPrice() decimal.Decimal {
	return models.RoundMoney(*d.Price)
}

func (d LineItemDescriptor) quantity() decimal.Decimal {
	return d.Qty.Round(qtyPlaces)
}

// lineTotal is the explicit total when supplied, otherwise qty × price.
func (d LineItemDescriptor) lineTotal() decimal.Decimal {
	if d.Total != nil {
		return models.RoundMoney(*d.Total)
	}
	return models.LineTotal(d.quantity(), d.unitPrice())
}

// canTakeImage reports whether an implicitly assigned upload can be used by
// this line: new catalog items always, existing items only when replacing.
func (d LineItemDescriptor) canTakeImage(update bool) bool {
	return d.ItemID == nil || (update && d.ReplaceImage)
}

func validateItems(items []LineItemDescriptor) error {
	for i, d := range items {
		if err := d.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func validateTax(tax decimal.Decimal) error {
	if tax.IsNegative() || tax.GreaterThan(maxTax) {
		return apperr.Validation("tax must be between 0 and 100")
	}
	return nil
}

// Input is the payload of a new quotation.
type Input struct {
	CustomerName  string               `json:"customer_name"`
	CustomerPhone *string              `json:"customer_phone"`
	SalesmanName  string               `json:"salesman_name"`
	Tax           decimal.Decimal      `json:"tax"`
	Items         []LineItemDescriptor `json:"items"`
}

func (in Input) Validate() error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return apperr.Validation("customer_name is required")
	}
	if strings.TrimSpace(in.SalesmanName) == "" {
		return apperr.Validation("salesman_name is required")
	}
	if err := validateTax(in.Tax); err != nil {
		return err
	}
	return validateItems(in.Items)
}

// Patch is a partial quotation update. Header fields that are not Set stay as
// they are. When Items is Set the whole line item list is replaced.
type Patch struct {
	CustomerName  patch.Field[string]               `json:"customer_name"`
	CustomerPhone patch.Field[string]               `json:"customer_phone"`
	SalesmanName  patch.Field[string]               `json:"salesman_name"`
	Tax           patch.Field[decimal.Decimal]      `json:"tax"`
	Items         patch.Field[[]LineItemDescriptor] `json:"items"`
}

func (p Patch) Validate() error {
	if p.CustomerName.Set && (p.CustomerName.Null || strings.TrimSpace(p.CustomerName.Value) == "") {
		return apperr.Validation("customer_name must not be blank")
	}
	if p.SalesmanName.Set && (p.SalesmanName.Null || strings.TrimSpace(p.SalesmanName.Value) == "") {
		return apperr.Validation("salesman_name must not be blank")
	}
	if p.Tax.Set {
		if p.Tax.Null {
			return apperr.Validation("tax must not be null")
		}
		if err := validateTax(p.Tax.Value); err != nil {
			return err
		}
	}
	if p.Items.Set {
		if p.Items.Null {
			return apperr.Validation("items must be a list")
		}
		return validateItems(p.Items.Value)
	}
	return nil
}

// apply merges the header fields into q.
func (p Patch) apply(q *models.Quotation) {
	if p.CustomerName.Apply(&q.CustomerName) {
		q.CustomerName = strings.TrimSpace(q.CustomerName)
	}
	if p.SalesmanName.Apply(&q.SalesmanName) {
		q.SalesmanName = strings.TrimSpace(q.SalesmanName)
	}
	if p.CustomerPhone.ApplyPtr(&q.CustomerPhone) {
		q.CustomerPhone = normalizePhone(q.CustomerPhone)
	}
	p.Tax.Apply(&q.TaxRate)
}

func normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	s := strings.TrimSpace(*phone)
	if s == "" {
		return nil
	}
	return &s
}
