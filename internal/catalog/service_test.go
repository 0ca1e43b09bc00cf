package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/powerman/structlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotations/internal/apperr"
	"quotations/internal/db/dbtest"
	"quotations/internal/patch"
	"quotations/pkg/imagestore"
)

type fakeImages struct {
	next      []string
	err       error
	discarded []string
}

func (f *fakeImages) Store(context.Context, imagestore.Attachment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	ref := f.next[0]
	f.next = f.next[1:]
	return ref, nil
}

func (f *fakeImages) Discard(_ context.Context, refs []string) {
	f.discarded = append(f.discarded, refs...)
}

func TestServiceCreateWithImage(t *testing.T) {
	images := &fakeImages{next: []string{"/uploads/items/a.png"}}
	svc := NewService(dbtest.New(t), images, structlog.New())

	item, err := svc.Create(ctx, "Widget", dec("3"), &imagestore.Attachment{Filename: "a.png"})
	require.NoError(t, err)
	require.NotNil(t, item.Image)
	assert.Equal(t, "/uploads/items/a.png", *item.Image)
	assert.Empty(t, images.discarded)
}

func TestServiceCreateDiscardsImageOnConflict(t *testing.T) {
	images := &fakeImages{next: []string{"/uploads/items/b.png"}}
	svc := NewService(dbtest.New(t), images, structlog.New())
	_, err := svc.Create(ctx, "Widget", dec("3"), nil)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "widget", dec("3"), &imagestore.Attachment{Filename: "b.png"})
	assert.True(t, apperr.Is(err, apperr.ErrConflict))
	assert.Equal(t, []string{"/uploads/items/b.png"}, images.discarded)
}

func TestServiceCreateValidatesBeforeStoringImage(t *testing.T) {
	images := &fakeImages{err: errors.New("must not be called")}
	svc := NewService(dbtest.New(t), images, structlog.New())

	_, err := svc.Create(ctx, "", dec("3"), &imagestore.Attachment{Filename: "a.png"})
	assert.True(t, apperr.Is(err, apperr.ErrValidation))
}

func TestServiceUpdateReplacesImage(t *testing.T) {
	images := &fakeImages{next: []string{"/uploads/items/old.png", "/uploads/items/new.png"}}
	svc := NewService(dbtest.New(t), images, structlog.New())
	item, err := svc.Create(ctx, "Widget", dec("3"), &imagestore.Attachment{Filename: "old.png"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, item.ID, ItemPatch{UnitPrice: patch.Of(dec("4"))}, &imagestore.Attachment{Filename: "new.png"})
	require.NoError(t, err)
	require.NotNil(t, updated.Image)
	assert.Equal(t, "/uploads/items/new.png", *updated.Image)
	assert.Equal(t, []string{"/uploads/items/old.png"}, images.discarded)
}

func TestServiceUpdateMissingItemStoresNothing(t *testing.T) {
	images := &fakeImages{err: errors.New("must not be called")}
	svc := NewService(dbtest.New(t), images, structlog.New())

	_, err := svc.Update(ctx, 42, ItemPatch{}, &imagestore.Attachment{Filename: "a.png"})
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestServiceDeleteRemovesImage(t *testing.T) {
	images := &fakeImages{next: []string{"/uploads/items/a.png"}}
	svc := NewService(dbtest.New(t), images, structlog.New())
	item, err := svc.Create(ctx, "Widget", dec("3"), &imagestore.Attachment{Filename: "a.png"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, item.ID))
	assert.Equal(t, []string{"/uploads/items/a.png"}, images.discarded)
}
