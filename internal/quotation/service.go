package quotation

import (
	"context"
	"strings"
	"time"

	"github.com/powerman/structlog"
	"gorm.io/gorm"

	"quotations/internal/apperr"
	"quotations/internal/catalog"
	"quotations/models"
	"quotations/pkg/imagestore"
)

// maxAttempts bounds how often a transaction is re-run after a retryable conflict.
const maxAttempts = 3

// Images persists the uploads of one request and removes them again when the
// request does not commit.
type Images interface {
	Resolve(ctx context.Context, atts map[int]imagestore.Attachment) (map[int]string, error)
	Discard(ctx context.Context, refs []string)
}

type Service struct {
	db     *gorm.DB
	images Images
	log    *structlog.Logger
	now    func() time.Time
}

func NewService(gdb *gorm.DB, images Images, log *structlog.Logger) *Service {
	return &Service{db: gdb, images: images, log: log, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Quotation, error) {
	return NewStore(s.db).Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Quotation, error) {
	return NewStore(s.db).List(ctx)
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	if err := NewStore(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("quotation deleted", "id", id)
	return nil
}

// Create validates in, stores the uploaded images, then writes the header and
// every line in one transaction.
func (s *Service) Create(ctx context.Context, in Input, files []imagestore.Attachment) (*models.Quotation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	refs, err := s.resolveImages(ctx, in.Items, files, false)
	if err != nil {
		return nil, err
	}

	var (
		id  uint
		rec *reconciler
	)
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		rec = newReconciler(tx, refs, false)
		quotes := NewStore(tx)
		q := &models.Quotation{
			QuoteNumber:   NewQuoteNumber(s.now()),
			CustomerName:  strings.TrimSpace(in.CustomerName),
			CustomerPhone: normalizePhone(in.CustomerPhone),
			SalesmanName:  strings.TrimSpace(in.SalesmanName),
			TaxRate:       in.Tax,
		}
		if err := quotes.Create(ctx, q); err != nil {
			return err
		}
		lines, err := rec.lines(ctx, in.Items)
		if err != nil {
			return err
		}
		if err := quotes.ReplaceLineItems(ctx, q.ID, lines); err != nil {
			return err
		}
		id = q.ID
		return nil
	})
	if err != nil {
		s.images.Discard(ctx, imagestore.Refs(refs))
		return nil, err
	}
	s.images.Discard(ctx, rec.leftovers())
	s.log.Info("quotation created", "id", id, "lines", len(in.Items), "images", len(refs))
	return s.Get(ctx, id)
}

// Update merges the header fields present in p and, when p.Items is set,
// replaces every line. A missing quotation is reported before any image is stored.
func (s *Service) Update(ctx context.Context, id uint, p Patch, files []imagestore.Attachment) (*models.Quotation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := NewStore(s.db).Header(ctx, id); err != nil {
		return nil, err
	}
	replace := p.Items.Present()
	var items []LineItemDescriptor
	if replace {
		items = p.Items.Value
	}
	refs, err := s.resolveImages(ctx, items, files, true)
	if err != nil {
		return nil, err
	}

	var rec *reconciler
	err = s.inTx(ctx, func(tx *gorm.DB) error {
		rec = newReconciler(tx, refs, true)
		quotes := NewStore(tx)
		q, err := quotes.Header(ctx, id)
		if err != nil {
			return err
		}
		if err := quotes.ApplyHeader(ctx, q, p); err != nil {
			return err
		}
		if !replace {
			return nil
		}
		lines, err := rec.lines(ctx, items)
		if err != nil {
			return err
		}
		return quotes.ReplaceLineItems(ctx, id, lines)
	})
	if err != nil {
		s.images.Discard(ctx, imagestore.Refs(refs))
		return nil, err
	}
	s.images.Discard(ctx, rec.leftovers())
	s.log.Info("quotation updated", "id", id, "replaced_lines", replace, "images", len(refs))
	return s.Get(ctx, id)
}

func (s *Service) resolveImages(ctx context.Context, items []LineItemDescriptor, files []imagestore.Attachment, update bool) (map[int]string, error) {
	assigned, unused, err := AssignImages(items, files, update)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		s.log.Info("ignoring uploaded files no line item can use", "files", unused)
	}
	if len(assigned) == 0 {
		return map[int]string{}, nil
	}
	return s.images.Resolve(ctx, assigned)
}

// inTx runs fn in a transaction, re-running it when it fails with a retryable
// conflict such as a catalog name inserted concurrently by another request.
func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !apperr.IsRetryable(err) {
			return err
		}
		s.log.Debug("transaction conflict, retrying", "attempt", attempt, "err", err)
	}
	return err
}

// reconciler resolves line descriptors to catalog items within one transaction.
type reconciler struct {
	catalog  *catalog.Store
	refs     map[int]string
	update   bool
	used     map[string]bool
	replaced []string
}

func newReconciler(tx *gorm.DB, refs map[int]string, update bool) *reconciler {
	return &reconciler{
		catalog: catalog.NewStore(tx),
		refs:    refs,
		update:  update,
		used:    make(map[string]bool),
	}
}

func (r *reconciler) lines(ctx context.Context, items []LineItemDescriptor) ([]models.QuotationLineItem, error) {
	lines := make([]models.QuotationLineItem, 0, len(items))
	for pos, d := range items {
		item, err := r.resolve(ctx, pos, d)
		if err != nil {
			return nil, err
		}
		lines = append(lines, models.QuotationLineItem{
			CatalogItemID: item.ID,
			Position:      pos,
			Quantity:      d.quantity(),
			UnitPrice:     d.unitPrice(),
			LineTotal:     d.lineTotal(),
		})
	}
	return lines, nil
}

// resolve finds the catalog item for the line at pos: by id, else by name,
// else by creating it with the line's price and image.
func (r *reconciler) resolve(ctx context.Context, pos int, d LineItemDescriptor) (*models.CatalogItem, error) {
	ref, hasImage := r.refs[pos]
	if d.ItemID != nil {
		item, err := r.catalog.LookupByID(ctx, *d.ItemID)
		if err != nil {
			return nil, err
		}
		if !(r.update && d.ReplaceImage && hasImage) {
			return item, nil
		}
		previous := item.Image
		item, err = r.catalog.ReplaceImageAndPrice(ctx, item.ID, ref, d.unitPrice())
		if err != nil {
			return nil, err
		}
		r.used[ref] = true
		if previous != nil && *previous != ref {
			r.replaced = append(r.replaced, *previous)
		}
		return item, nil
	}

	item, err := r.catalog.LookupByName(ctx, d.ItemName)
	if err == nil {
		return item, nil
	}
	if !apperr.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	var image *string
	if hasImage {
		image = &ref
		r.used[ref] = true
	}
	return r.catalog.Create(ctx, d.ItemName, d.unitPrice(), image)
}

// leftovers are the images a committed transaction no longer references:
// uploads for lines that matched an existing item and images that were replaced.
func (r *reconciler) leftovers() []string {
	out := append([]string(nil), r.replaced...)
	for _, ref := range r.refs {
		if !r.used[ref] {
			out = append(out, ref)
		}
	}
	return out
}
