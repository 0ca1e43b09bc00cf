// Package quotation creates and edits quotations, reconciling their line items
// against the catalog inside one transaction.
package quotation

import (
	"context"
	"fmt"

	"github.com/ansel1/merry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quotations/internal/apperr"
	"quotations/internal/db"
	"quotations/models"
)

// Store reads and writes quotation headers and line items through a *gorm.DB,
// which may be the pool or a transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

func withLines(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB { return tx.Order("position").Order("id") }).
		Preload("LineItems.CatalogItem")
}

// Create inserts the header only; lines are written with ReplaceLineItems.
func (s *Store) Create(ctx context.Context, q *models.Quotation) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(q).Error
	if db.IsUniqueViolation(err) {
		return apperr.RetryableConflict(fmt.Sprintf("quote number %s already exists", q.QuoteNumber), err)
	}
	return merry.Wrap(err)
}

// Get loads a quotation with its lines in position order and their catalog items.
func (s *Store) Get(ctx context.Context, id uint) (*models.Quotation, error) {
	var q models.Quotation
	err := withLines(s.db.WithContext(ctx)).First(&q, id).Error
	if db.IsNotFound(err) {
		return nil, apperr.NotFound(fmt.Sprintf("quotation %d not found", id))
	}
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return &q, nil
}

// Header loads a quotation without its lines.
func (s *Store) Header(ctx context.Context, id uint) (*models.Quotation, error) {
	var q models.Quotation
	err := s.db.WithContext(ctx).First(&q, id).Error
	if db.IsNotFound(err) {
		return nil, apperr.NotFound(fmt.Sprintf("quotation %d not found", id))
	}
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return &q, nil
}

// List returns every quotation, newest first.
func (s *Store) List(ctx context.Context) ([]models.Quotation, error) {
	out := []models.Quotation{}
	err := withLines(s.db.WithContext(ctx)).Order("created_at DESC").Order("id DESC").Find(&out).Error
	if err != nil {
		return nil, merry.Wrap(err)
	}
	return out, nil
}

// ApplyHeader merges p into q and saves the header columns.
func (s *Store) ApplyHeader(ctx context.Context, q *models.Quotation, p Patch) error {
	p.apply(q)
	err := s.db.WithContext(ctx).Model(q).
		Select("customer_name", "customer_phone", "salesman_name", "tax", "updated_at").
		Updates(q).Error
	return merry.Wrap(err)
}

// ReplaceLineItems deletes every line of the quotation and inserts lines in
// order. Run it inside a transaction so readers never see a partial list.
func (s *Store) ReplaceLineItems(ctx context.Context, quotationID uint, lines []models.QuotationLineItem) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Where("quotation_id = ?", quotationID).Delete(&models.QuotationLineItem{}).Error; err != nil {
		return merry.Wrap(err)
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].QuotationID = quotationID
		lines[i].Position = i
	}
	if err := tx.Omit(clause.Associations).Create(&lines).Error; err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("a referenced catalog item no longer exists")
		}
		return merry.Wrap(err)
	}
	return nil
}

// Delete removes the quotation; its lines go with it through ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Quotation{}, id)
	if res.Error != nil {
		return merry.Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(fmt.Sprintf("quotation %d not found", id))
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Quotation{}).Count(&n).Error
	return n, merry.Wrap(err)
}
