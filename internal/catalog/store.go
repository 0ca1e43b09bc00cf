// Package catalog owns the item master: reusable catalog items that quotation
// line items reference.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/ansel1/merry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"quotations/internal/apperr"
	"quotations/internal/db"
	"quotations/internal/patch"
	"quotations/models"
)

// ItemPatch is a partial catalog item update; only fields that are Set change.
// A null Image clears the image reference.
type ItemPatch struct {
	Name      patch.Field[string]          `json:"name"`
	UnitPrice patch.Field[decimal.Decimal] `json:"unit_price"`
	Image     patch.Field[string]          `json:"image"`
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return !p.Name.Set && !p.UnitPrice.Set && !p.Image.Set
}

// Validate rejects values that could never be stored.
func (p ItemPatch) Validate() error {
	if p.Name.Set && (p.Name.Null || strings.TrimSpace(p.Name.Value) == "") {
		return apperr.Validation("name must not be blank")
	}
	if p.UnitPrice.Set {
		if p.UnitPrice.Null {
			return apperr.Validation("unit_price must not be null")
		}
		if p.UnitPrice.Value.IsNegative() {
			return apperr.Validation("unit_price must not be negative")
		}
	}
	return nil
}

// ValidateNew checks the fields of an item about to be created.
func ValidateNew(name string, unitPrice decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("name is required")
	}
	if unitPrice.IsNegative() {
		return apperr.Validation("unit_price must not be negative")
	}
	return nil
}

// Store reads and writes catalog items through a *gorm.DB, which may be the pool
// or a transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

func (s *Store) LookupByID(ctx context.Context, id uint) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := s.db.WithContext(ctx).First(&item, id).Error
	if db.IsNotFound(err) {
		return nil, apperr.NotFound(fmt.Sprintf("catalog item %d not found", id))
	}
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return &item, nil
}

// LookupByName matches name exactly, ignoring case and surrounding spaces.
func (s *Store) LookupByName(ctx context.Context, name string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	err := s.db.WithContext(ctx).Where("name_key = ?", models.NameKey(name)).First(&item).Error
	if db.IsNotFound(err) {
		return nil, apperr.NotFound(fmt.Sprintf("catalog item %q not found", strings.TrimSpace(name)))
	}
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return &item, nil
}

func (s *Store) ListAll(ctx context.Context) ([]models.CatalogItem, error) {
	items := []models.CatalogItem{}
	if err := s.db.WithContext(ctx).Order("name_key").Order("id").Find(&items).Error; err != nil {
		return nil, merry.Wrap(err)
	}
	return items, nil
}

// Create inserts a new item. A name that is already taken, including by a
// concurrent request that won the race, is a retryable conflict.
func (s *Store) Create(ctx context.Context, name string, unitPrice decimal.Decimal, image *string) (*models.CatalogItem, error) {
	if err := ValidateNew(name, unitPrice); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	item := models.CatalogItem{
		Name:      name,
		NameKey:   models.NameKey(name),
		UnitPrice: models.RoundMoney(unitPrice),
		Image:     image,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.RetryableConflict(fmt.Sprintf("catalog item %q already exists", name), err)
		}
		return nil, merry.Wrap(err)
	}
	return &item, nil
}

// Update merges p into the item and returns the stored result.
func (s *Store) Update(ctx context.Context, id uint, p ItemPatch) (*models.CatalogItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	item, err := s.LookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Empty() {
		return item, nil
	}
	if p.Name.Apply(&item.Name) {
		item.Name = strings.TrimSpace(item.Name)
		item.NameKey = models.NameKey(item.Name)
	}
	if p.UnitPrice.Apply(&item.UnitPrice) {
		item.UnitPrice = models.RoundMoney(item.UnitPrice)
	}
	p.Image.ApplyPtr(&item.Image)
	err = s.db.WithContext(ctx).Model(item).
		Select("name", "name_key", "unit_price", "image", "updated_at").
		Updates(item).Error
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict(fmt.Sprintf("catalog item %q already exists", item.Name))
		}
		return nil, merry.Wrap(err)
	}
	return item, nil
}

// ReplaceImageAndPrice overwrites the image reference and unit price of an
// existing item. Quotation edits reach the catalog only through this call.
func (s *Store) ReplaceImageAndPrice(ctx context.Context, id uint, image string, unitPrice decimal.Decimal) (*models.CatalogItem, error) {
	return s.Update(ctx, id, ItemPatch{
		Image:     patch.Of(image),
		UnitPrice: patch.Of(unitPrice),
	})
}

// CountReferences is the number of quotation line items pointing at the item.
func (s *Store) CountReferences(ctx context.Context, id uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.QuotationLineItem{}).Where("item_id = ?", id).Count(&n).Error
	return n, merry.Wrap(err)
}

// Delete removes an unreferenced item. Items still used by a quotation line are
// never removed; the foreign key backs this up if a line is inserted concurrently.
func (s *Store) Delete(ctx context.Context, id uint) error {
	n, err := s.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict(fmt.Sprintf("catalog item %d is in use by %d quotation line(s)", id, n))
	}
	res := s.db.WithContext(ctx).Delete(&models.CatalogItem{}, id)
	switch {
	case db.IsForeignKeyViolation(res.Error):
		return apperr.Conflict(fmt.Sprintf("catalog item %d is in use", id))
	case res.Error != nil:
		return merry.Wrap(res.Error)
	case res.RowsAffected == 0:
		return apperr.NotFound(fmt.Sprintf("catalog item %d not found", id))
	}
	return nil
}
