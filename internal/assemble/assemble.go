// Package assemble writes page images into a single A4 PDF.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// Meta is written to the PDF info dictionary. CreatedAt makes the output
// reproducible; a zero value means now.
type Meta struct {
	Title     string
	Subject   string
	Author    string
	Creator   string
	CreatedAt time.Time
}

type Assembler struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// Assemble places each page full-bleed on its own A4 portrait page in
// capture order.
func (a *Assembler) Assemble(ctx context.Context, pages domain.PageSet, meta Meta) ([]byte, error) {
	if len(pages) == 0 {
		return nil, apperrors.ErrEmptyPageSet
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	if meta.Creator == "" {
		meta.Creator = "ddtscan"
	}

	pdf := fpdf.New(fpdf.OrientationPortrait, fpdf.UnitMillimeter, fpdf.PageSizeA4, "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(meta.CreatedAt)
	pdf.SetCreator(meta.Creator, true)
	if meta.Title != "" {
		pdf.SetTitle(meta.Title, true)
	}
	if meta.Subject != "" {
		pdf.SetSubject(meta.Subject, true)
	}
	if meta.Author != "" {
		pdf.SetAuthor(meta.Author, true)
	}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(page.Data) == 0 {
			return nil, apperrors.ErrImageDecode.Withf("page %d is empty", i)
		}

		opts := fpdf.ImageOptions{ImageType: imageType(page.Format)}
		name := fmt.Sprintf("page-%03d", i)
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.Data))
		pdf.ImageOptions(name, 0, 0, domain.PageWidthMm, domain.PageHeightMm, false, opts, 0, "")
		if pdf.Err() {
			return nil, apperrors.ErrImageDecode.With(fmt.Errorf("page %d: %w", i, pdf.Error()))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperrors.ErrInternal.With(err)
	}

	a.logger.Debug("PDF assembled",
		zap.Int("pages", len(pages)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func imageType(f domain.PageFormat) string {
	if f == domain.FormatJPEG {
		return "JPG"
	}
	return "PNG"
}
