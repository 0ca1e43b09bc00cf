// Package imagestore persists uploaded images and hands back references the
// catalog can store: a public path for the local backend, a URL for Cloudinary.
package imagestore

import (
	"context"
	"fmt"
	"sort"

	"github.com/powerman/structlog"

	"quotations/internal/apperr"
	"quotations/internal/config"
)

// Attachment is one uploaded file as received from the client.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Object is a validated, normalized image ready to be stored.
type Object struct {
	Name        string
	Ext         string
	ContentType string
	Data        []byte
}

// Storage is a backend able to keep image bytes and return a retrievable reference.
type Storage interface {
	Store(ctx context.Context, obj Object) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Resolver validates attachments and stores them through a Storage backend.
type Resolver struct {
	storage Storage
	limits  Limits
	log     *structlog.Logger
}

func NewResolver(storage Storage, limits Limits, log *structlog.Logger) *Resolver {
	return &Resolver{storage: storage, limits: limits, log: log}
}

// FromConfig builds the backend selected by cfg.Backend.
func FromConfig(ctx context.Context, cfg config.ImageConfig, log *structlog.Logger) (*Resolver, error) {
	var (
		storage Storage
		err     error
	)
	switch cfg.Backend {
	case config.BackendLocal:
		storage, err = NewLocalStorage(cfg.UploadDir, cfg.PublicPath)
	case config.BackendCloudinary:
		storage, err = NewCloudinaryStorage(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	default:
		err = fmt.Errorf("unknown image backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	log.Info("image backend ready", "backend", cfg.Backend)
	return NewResolver(storage, Limits{MaxBytes: cfg.MaxUploadBytes, MaxDimension: cfg.MaxDimension}, log), nil
}

// Store validates and persists a single attachment.
func (r *Resolver) Store(ctx context.Context, a Attachment) (string, error) {
	obj, err := Prepare(a, r.limits)
	if err != nil {
		return "", err
	}
	ref, err := r.storage.Store(ctx, obj)
	if err != nil {
		if apperr.Kind(err) != "internal" {
			return "", err
		}
		return "", apperr.Upstream("store "+a.Filename, err)
	}
	r.log.Debug("image stored", "file", a.Filename, "ref", ref, "bytes", len(obj.Data))
	return ref, nil
}

// Resolve stores every attachment keyed by line-item position. Either all of them
// are stored or none: on the first failure the ones already stored are removed.
func (r *Resolver) Resolve(ctx context.Context, atts map[int]Attachment) (map[int]string, error) {
	refs := make(map[int]string, len(atts))
	if len(atts) == 0 {
		return refs, nil
	}
	positions := make([]int, 0, len(atts))
	for pos := range atts {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		ref, err := r.Store(ctx, atts[pos])
		if err != nil {
			r.Discard(ctx, Refs(refs))
			return nil, err
		}
		refs[pos] = ref
	}
	return refs, nil
}

// Discard removes stored images whose database write did not commit.
func (r *Resolver) Discard(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := r.storage.Delete(ctx, ref); err != nil {
			r.log.Warn("discard stored image", "ref", ref, "err", err)
		}
	}
}

// Refs lists the values of a position→reference map.
func Refs(m map[int]string) []string {
	out := make([]string, 0, len(m))
	for _, ref := range m {
		out = append(out, ref)
	}
	return out
}
