// Package preview renders the confirmation view of a first page: placement
// guides plus the true stamp as it will appear in the artifact.
package preview

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
	"github.com/gmsas95/ddtscan/internal/stamp"
)

var (
	GuideColor     = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	SignatureColor = color.NRGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff}
	TextZoneColor  = color.NRGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}

	signatureFill = color.NRGBA{R: 251, G: 191, B: 36, A: 77}
	textZoneFill  = color.NRGBA{R: 239, G: 68, B: 68, A: 77}
)

const lineWidth = 2

type Result struct {
	PNG           []byte
	Width         int
	Height        int
	Layout        stamp.Layout
	Warnings      []error
	AspectWarning bool
}

// Renderer shares the stamp engine so guides and stamp use one layout.
type Renderer struct {
	engine *stamp.Engine
	limits geometry.Limits
	logger *zap.Logger
}

func NewRenderer(engine *stamp.Engine, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{engine: engine, limits: geometry.DefaultLimits(), logger: logger}
}

// Render draws the guides on a copy of page and, when spec is not empty,
// the stamp itself. A sign preview without a signature is still rendered
// and carries the missing signature as a warning.
func (r *Renderer) Render(ctx context.Context, page domain.Page, spec domain.StampSpec, wf domain.Workflow) (*Result, error) {
	src, err := imageio.Decode(page.Data, r.limits)
	if err != nil {
		return nil, err
	}
	canvas := imaging.Clone(src)
	b := canvas.Bounds()

	layout := stamp.ComputeLayout(stamp.NewFrame(b.Dx(), b.Dy()), spec, r.engine.Labels())
	res := &Result{
		Width:         b.Dx(),
		Height:        b.Dy(),
		Layout:        layout,
		AspectWarning: domain.AspectDiverges(b.Dx(), b.Dy()),
	}
	if wf == domain.WorkflowSign && !spec.HasSignature() {
		res.Warnings = append(res.Warnings, apperrors.ErrSignatureRequired)
	}

	drawGuides(canvas, layout)

	if !spec.IsEmpty() {
		sig, warn := r.engine.Signature(spec)
		if warn != nil {
			res.Warnings = append(res.Warnings, warn)
		}
		if _, err := r.engine.Draw(ctx, canvas, spec, sig); err != nil {
			return nil, err
		}
	}

	data, err := imageio.Encode(canvas, domain.FormatPNG, 0)
	if err != nil {
		return nil, err
	}
	res.PNG = data
	return res, nil
}

func drawGuides(dst *image.NRGBA, l stamp.Layout) {
	sig := l.Signature.Image()
	draw.Draw(dst, sig, image.NewUniform(signatureFill), image.Point{}, draw.Over)

	zone := l.TextZone.Image()
	draw.Draw(dst, zone, image.NewUniform(textZoneFill), image.Point{}, draw.Over)

	dashedRect(dst, l.Guide.Image(), GuideColor, 5)
	dashedRect(dst, sig, SignatureColor, 3)
	dashedRect(dst, zone, TextZoneColor, 3)
}

// dashedRect strokes r inward with lineWidth-thick dashes of length dash.
func dashedRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA, dash int) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	on := func(i int) bool { return (i/dash)%2 == 0 }

	for x := r.Min.X; x < r.Max.X; x++ {
		if !on(x - r.Min.X) {
			continue
		}
		for t := 0; t < lineWidth; t++ {
			dst.SetNRGBA(x, r.Min.Y+t, c)
			dst.SetNRGBA(x, r.Max.Y-1-t, c)
		}
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		if !on(y - r.Min.Y) {
			continue
		}
		for t := 0; t < lineWidth; t++ {
			dst.SetNRGBA(r.Min.X+t, y, c)
			dst.SetNRGBA(r.Max.X-1-t, y, c)
		}
	}
}
