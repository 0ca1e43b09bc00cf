package imagestore

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"quotations/internal/apperr"
)

// maxPixels guards against decompression bombs before the full decode.
const maxPixels = 50_000_000

// Limits bound what Prepare accepts.
type Limits struct {
	MaxBytes int64
	// MaxDimension is the longest side kept; larger images are downscaled. 0 disables.
	MaxDimension int
}

var extByFormat = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"tiff": ".tiff",
}

// Prepare checks that a is a decodable image within limits and downscales it if
// its longest side exceeds MaxDimension.
func Prepare(a Attachment, limits Limits) (Object, error) {
	if len(a.Data) == 0 {
		return Object{}, apperr.Validation(fmt.Sprintf("image %q is empty", a.Filename))
	}
	if limits.MaxBytes > 0 && int64(len(a.Data)) > limits.MaxBytes {
		return Object{}, apperr.Validation(fmt.Sprintf("image %q is larger than %d bytes", a.Filename, limits.MaxBytes))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil {
		return Object{}, apperr.Validation(fmt.Sprintf("image %q is not a supported image: %v", a.Filename, err))
	}
	ext, ok := extByFormat[format]
	if !ok {
		return Object{}, apperr.Validation(fmt.Sprintf("image %q has unsupported format %s", a.Filename, format))
	}
	if cfg.Width*cfg.Height > maxPixels {
		return Object{}, apperr.Validation(fmt.Sprintf("image %q is %dx%d pixels, too large", a.Filename, cfg.Width, cfg.Height))
	}
	obj := Object{
		Name:        baseName(a.Filename),
		Ext:         ext,
		ContentType: "image/" + format,
		Data:        a.Data,
	}
	if limits.MaxDimension <= 0 || (cfg.Width <= limits.MaxDimension && cfg.Height <= limits.MaxDimension) {
		return obj, nil
	}
	img, err := imaging.Decode(bytes.NewReader(a.Data), imaging.AutoOrientation(true))
	if err != nil {
		return Object{}, apperr.Validation(fmt.Sprintf("image %q could not be decoded: %v", a.Filename, err))
	}
	resized := imaging.Fit(img, limits.MaxDimension, limits.MaxDimension, imaging.Lanczos)
	f, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return Object{}, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, f, imaging.JPEGQuality(85)); err != nil {
		return Object{}, fmt.Errorf("re-encode %s: %w", a.Filename, err)
	}
	obj.Data = buf.Bytes()
	return obj, nil
}

func baseName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
