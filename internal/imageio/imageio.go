// Package imageio decodes captures and encodes page buffers.
package imageio

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/geometry"
)

// Bounds reads only the header and validates the size before any pixel
// buffer is allocated.
func Bounds(data []byte, limits geometry.Limits) (geometry.Size, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return geometry.Size{}, "", apperrors.ErrImageDecode.With(err)
	}
	if err := limits.Validate(cfg.Width, cfg.Height); err != nil {
		return geometry.Size{}, format, err
	}
	return geometry.Size{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// Decode validates and decodes a capture, applying EXIF orientation so the
// operator's clicks match what the camera showed.
func Decode(data []byte, limits geometry.Limits) (image.Image, error) {
	if _, _, err := Bounds(data, limits); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.ErrImageDecode.With(err)
	}
	return img, nil
}

// Encode writes a page buffer in the requested format.
func Encode(img image.Image, format domain.PageFormat, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case domain.FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, apperrors.ErrInternal.With(err)
	}
	return buf.Bytes(), nil
}

// EncodePage encodes img and wraps it as a page with derived metadata.
func EncodePage(img image.Image, format domain.PageFormat, jpegQuality int) (domain.Page, error) {
	data, err := Encode(img, format, jpegQuality)
	if err != nil {
		return domain.Page{}, err
	}
	b := img.Bounds()
	return domain.NewPage(data, format, b.Dx(), b.Dy()), nil
}
