package catalog

import (
	"context"

	"github.com/powerman/structlog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"quotations/internal/patch"
	"quotations/models"
	"quotations/pkg/imagestore"
)

// Images stores and discards uploaded item images.
type Images interface {
	Store(ctx context.Context, a imagestore.Attachment) (string, error)
	Discard(ctx context.Context, refs []string)
}

// Service is the catalog entry point for the HTTP layer. It stores an optional
// uploaded image before touching the database and removes it again when the
// write fails.
type Service struct {
	db     *gorm.DB
	images Images
	log    *structlog.Logger
}

func NewService(gdb *gorm.DB, images Images, log *structlog.Logger) *Service {
	return &Service{db: gdb, images: images, log: log}
}

func (s *Service) store() *Store { return NewStore(s.db) }

func (s *Service) Get(ctx context.Context, id uint) (*models.CatalogItem, error) {
	return s.store().LookupByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.CatalogItem, error) {
	return s.store().ListAll(ctx)
}

func (s *Service) Create(ctx context.Context, name string, unitPrice decimal.Decimal, img *imagestore.Attachment) (*models.CatalogItem, error) {
	if err := ValidateNew(name, unitPrice); err != nil {
		return nil, err
	}
	var ref *string
	if img != nil {
		stored, err := s.images.Store(ctx, *img)
		if err != nil {
			return nil, err
		}
		ref = &stored
	}
	item, err := s.store().Create(ctx, name, unitPrice, ref)
	if err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	s.log.Info("catalog item created", "id", item.ID, "name", item.Name)
	return item, nil
}

// Update applies p and, when img is given, replaces the item image. The previous
// image is removed once the new reference is saved.
func (s *Service) Update(ctx context.Context, id uint, p ItemPatch, img *imagestore.Attachment) (*models.CatalogItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	current, err := s.store().LookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var ref *string
	if img != nil {
		stored, err := s.images.Store(ctx, *img)
		if err != nil {
			return nil, err
		}
		ref = &stored
		p.Image = patch.Of(stored)
	}
	item, err := s.store().Update(ctx, id, p)
	if err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	if p.Image.Set && current.Image != nil && (item.Image == nil || *item.Image != *current.Image) {
		s.discard(ctx, current.Image)
	}
	s.log.Info("catalog item updated", "id", item.ID)
	return item, nil
}

// Delete removes an unreferenced item together with its image.
func (s *Service) Delete(ctx context.Context, id uint) error {
	current, err := s.store().LookupByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store().Delete(ctx, id); err != nil {
		return err
	}
	s.discard(ctx, current.Image)
	s.log.Info("catalog item deleted", "id", id)
	return nil
}

func (s *Service) discard(ctx context.Context, ref *string) {
	if ref != nil && s.images != nil {
		s.images.Discard(ctx, []string{*ref})
	}
}
