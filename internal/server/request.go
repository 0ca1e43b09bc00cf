package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"quotations/internal/apperr"
	"quotations/pkg/imagestore"
)

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation(fmt.Sprintf("invalid id %q", c.Param("id")))
	}
	return uint(id), nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

func decodeJSON(r io.Reader, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}

// readAttachment loads one uploaded file, refusing files above the upload limit.
func (s *Server) readAttachment(fh *multipart.FileHeader) (imagestore.Attachment, error) {
	limit := s.cfg.Images.MaxUploadBytes
	if limit > 0 && fh.Size > limit {
		return imagestore.Attachment{}, apperr.Validation(fmt.Sprintf("file %q is larger than %d bytes", fh.Filename, limit))
	}
	f, err := fh.Open()
	if err != nil {
		return imagestore.Attachment{}, apperr.Validation(fmt.Sprintf("read file %q: %v", fh.Filename, err))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return imagestore.Attachment{}, apperr.Validation(fmt.Sprintf("read file %q: %v", fh.Filename, err))
	}
	return imagestore.Attachment{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) readAttachments(fhs []*multipart.FileHeader) ([]imagestore.Attachment, error) {
	out := make([]imagestore.Attachment, 0, len(fhs))
	for _, fh := range fhs {
		a, err := s.readAttachment(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// decodeQuotationRequest accepts either multipart with a JSON "data" field plus
// "images" files in upload order, or a plain JSON body without images.
func (s *Server) decodeQuotationRequest(c *gin.Context, dst any) ([]imagestore.Attachment, error) {
	if !isMultipart(c) {
		return nil, decodeJSON(c.Request.Body, dst)
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.Validation("invalid multipart form: " + err.Error())
	}
	data := form.Value["data"]
	if len(data) == 0 {
		return nil, apperr.Validation("multipart field data is required")
	}
	if err := decodeJSON(strings.NewReader(data[0]), dst); err != nil {
		return nil, err
	}
	files := append(form.File["images"], form.File["images[]"]...)
	return s.readAttachments(files)
}

// optionalImage returns the "image" form file when one was sent.
func (s *Server) optionalImage(c *gin.Context) (*imagestore.Attachment, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Validation("malformed multipart image: " + err.Error())
	}
	a, err := s.readAttachment(fh)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
