package assemble

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

func pngPage(t *testing.T, shade uint8) domain.Page {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 210, 297))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return domain.NewPage(buf.Bytes(), domain.FormatPNG, 210, 297)
}

func jpegPage(t *testing.T) domain.Page {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 210, 297))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 180, 160, 255
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return domain.NewPage(buf.Bytes(), domain.FormatJPEG, 210, 297)
}

func TestAssemble(t *testing.T) {
	a := New(nil)
	pages := domain.PageSet{pngPage(t, 255), jpegPage(t), pngPage(t, 0)}

	out, err := a.Assemble(t.Context(), pages, Meta{Title: "DDT 42", CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(out), "/Count 3")
	assert.Contains(t, string(out), "595.28 841.89", "A4 media box")
	assert.Contains(t, string(out), "/Title")
}

func TestAssembleIsReproducible(t *testing.T) {
	a := New(nil)
	pages := domain.PageSet{pngPage(t, 128), jpegPage(t)}
	meta := Meta{CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

	first, err := a.Assemble(t.Context(), pages, meta)
	require.NoError(t, err)
	second, err := a.Assemble(t.Context(), pages, meta)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssembleErrors(t *testing.T) {
	a := New(nil)

	_, err := a.Assemble(t.Context(), nil, Meta{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyPageSet)

	_, err = a.Assemble(t.Context(), domain.PageSet{{Format: domain.FormatPNG}}, Meta{})
	assert.ErrorIs(t, err, apperrors.ErrImageDecode)

	_, err = a.Assemble(t.Context(), domain.PageSet{{Data: []byte("garbage"), Format: domain.FormatPNG}}, Meta{})
	assert.ErrorIs(t, err, apperrors.ErrImageDecode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Assemble(ctx, domain.PageSet{pngPage(t, 1)}, Meta{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImageType(t *testing.T) {
	assert.Equal(t, "PNG", imageType(domain.FormatPNG))
	assert.Equal(t, "JPG", imageType(domain.FormatJPEG))
	assert.Equal(t, "PNG", imageType(""))
}
