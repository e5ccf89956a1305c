// Package stamp places the signature and the seal/carrier text on the first
// page of a document. Placement is computed once here and shared with the
// preview renderer.
package stamp

import (
	"image"
	"math"
	"strings"

	"github.com/gmsas95/ddtscan/internal/domain"
)

// Placement, in millimetres of the A4 page unless noted.
const (
	SignatureWidthMm  = 60.0
	SignatureHeightMm = 30.0
	SignatureMarginMm = 10.0
	SignatureFill     = 0.9

	TextMarginMm     = 12.0
	FontSizeMm       = 3.5
	MinFontPx        = 12.0
	LineGapPx        = 2.0
	TextZoneWidthMm  = 80.0
	TextZoneHeightMm = 25.0

	GuideTopMm    = 18.0
	GuideRightMm  = 15.0
	GuideBottomMm = 20.0
	GuideLeftMm   = 15.0
)

// Frame maps millimetres onto a page image assumed to be A4 wide.
type Frame struct {
	Width  int
	Height int
	DPI    float64
}

func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height, DPI: domain.AssumedDPI(width)}
}

func (f Frame) MmToPx(mm float64) float64 {
	return mm * f.DPI / domain.MmPerInch
}

// FontPx is the text height used for stamp lines on this frame.
func (f Frame) FontPx() float64 {
	return math.Max(MinFontPx, math.Round(f.MmToPx(FontSizeMm)))
}

// Rect is a placement rectangle in fractional pixels.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) MaxX() float64 { return r.X + r.W }
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Image rounds the rectangle to the pixel grid.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)), int(math.Round(r.Y)),
		int(math.Round(r.MaxX())), int(math.Round(r.MaxY())),
	)
}

// TextLine is one left-aligned line whose glyph bottoms sit on Bottom.
type TextLine struct {
	Text   string
	X      float64
	Bottom float64
}

type Labels struct {
	Seal    string
	Carrier string
}

func DefaultLabels() Labels {
	return Labels{Seal: "Sigillo", Carrier: "Trasportatore"}
}

type Layout struct {
	Frame     Frame
	Signature Rect
	TextZone  Rect
	Guide     Rect
	FontPx    float64
	Lines     []TextLine
}

// ComputeLayout places every stamp element for a page. The seal line sits
// on the bottom margin and the carrier line stacks above it; a missing seal
// lets the carrier line take the bottom position.
func ComputeLayout(f Frame, spec domain.StampSpec, labels Labels) Layout {
	w, h := float64(f.Width), float64(f.Height)
	sigW, sigH := f.MmToPx(SignatureWidthMm), f.MmToPx(SignatureHeightMm)
	margin := f.MmToPx(SignatureMarginMm)
	textMargin := f.MmToPx(TextMarginMm)
	fontPx := f.FontPx()

	l := Layout{
		Frame:  f,
		FontPx: fontPx,
		Signature: Rect{
			X: w - margin - sigW,
			Y: h - margin - sigH,
			W: sigW,
			H: sigH,
		},
		TextZone: Rect{
			X: textMargin,
			Y: h - textMargin - f.MmToPx(TextZoneHeightMm),
			W: f.MmToPx(TextZoneWidthMm),
			H: f.MmToPx(TextZoneHeightMm),
		},
		Guide: Rect{
			X: f.MmToPx(GuideLeftMm),
			Y: f.MmToPx(GuideTopMm),
			W: w - f.MmToPx(GuideLeftMm) - f.MmToPx(GuideRightMm),
			H: h - f.MmToPx(GuideTopMm) - f.MmToPx(GuideBottomMm),
		},
	}

	bottom := h - textMargin
	if seal := strings.TrimSpace(spec.SealNumber); seal != "" {
		l.Lines = append(l.Lines, TextLine{Text: labels.Seal + ": " + seal, X: textMargin, Bottom: bottom})
		bottom -= fontPx + LineGapPx
	}
	if name := strings.TrimSpace(spec.CarrierName); name != "" {
		l.Lines = append(l.Lines, TextLine{Text: labels.Carrier + ": " + name, X: textMargin, Bottom: bottom})
	}
	return l
}

// FitSignature scales a w×h signature to at most SignatureFill of the box,
// preserving its aspect ratio, and centers it.
func FitSignature(box Rect, w, h int) Rect {
	if w <= 0 || h <= 0 {
		return Rect{X: box.X + box.W/2, Y: box.Y + box.H/2}
	}
	aspect := float64(w) / float64(h)
	dw := box.W * SignatureFill
	dh := dw / aspect
	if dh > box.H*SignatureFill {
		dh = box.H * SignatureFill
		dw = dh * aspect
	}
	return Rect{
		X: box.X + (box.W-dw)/2,
		Y: box.Y + (box.H-dh)/2,
		W: dw,
		H: dh,
	}
}
