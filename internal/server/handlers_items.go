package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"quotations/internal/apperr"
	"quotations/internal/catalog"
	"quotations/internal/patch"
	"quotations/pkg/imagestore"
)

type createItemRequest struct {
	Name      string           `json:"name"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

func parsePrice(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperr.Validation(field + " must be a decimal number")
	}
	return d, nil
}

func (s *Server) createItem(c *gin.Context) {
	var (
		req createItemRequest
		img *imagestore.Attachment
		err error
	)
	if isMultipart(c) {
		req.Name = c.PostForm("name")
		raw, ok := c.GetPostForm("unit_price")
		if !ok {
			s.fail(c, apperr.Validation("unit_price is required"))
			return
		}
		price, err := parsePrice("unit_price", raw)
		if err != nil {
			s.fail(c, err)
			return
		}
		req.UnitPrice = &price
		if img, err = s.optionalImage(c); err != nil {
			s.fail(c, err)
			return
		}
	} else if err := decodeJSON(c.Request.Body, &req); err != nil {
		s.fail(c, err)
		return
	}
	if req.UnitPrice == nil {
		s.fail(c, apperr.Validation("unit_price is required"))
		return
	}

	item, err := s.catalog.Create(c.Request.Context(), req.Name, *req.UnitPrice, img)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) listItems(c *gin.Context) {
	items, err := s.catalog.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) getItem(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.catalog.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// itemPatchFromForm maps multipart fields onto a patch: only fields that were
// sent are set, and remove_image=true clears the image.
func itemPatchFromForm(c *gin.Context) (catalog.ItemPatch, error) {
	var p catalog.ItemPatch
	if v, ok := c.GetPostForm("name"); ok {
		p.Name = patch.Of(v)
	}
	if v, ok := c.GetPostForm("unit_price"); ok {
		d, err := parsePrice("unit_price", v)
		if err != nil {
			return p, err
		}
		p.UnitPrice = patch.Of(d)
	}
	if v, ok := c.GetPostForm("remove_image"); ok {
		remove, err := strconv.ParseBool(v)
		if err != nil {
			return p, apperr.Validation("remove_image must be a boolean")
		}
		if remove {
			p.Image = patch.Null[string]()
		}
	}
	return p, nil
}

func (s *Server) updateItem(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var (
		p   catalog.ItemPatch
		img *imagestore.Attachment
	)
	if isMultipart(c) {
		if p, err = itemPatchFromForm(c); err != nil {
			s.fail(c, err)
			return
		}
		if img, err = s.optionalImage(c); err != nil {
			s.fail(c, err)
			return
		}
	} else if err := decodeJSON(c.Request.Body, &p); err != nil {
		s.fail(c, err)
		return
	}
	item, err := s.catalog.Update(c.Request.Context(), id, p, img)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) deleteItem(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.catalog.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
