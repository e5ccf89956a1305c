package stamp

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
	"github.com/gmsas95/ddtscan/internal/metrics"
)

// Report describes what a stamp run actually applied.
type Report struct {
	Layout           Layout
	SignatureApplied bool
	TextApplied      bool
	Warnings         []error
}

type Engine struct {
	renderer *Renderer
	labels   Labels
	limits   geometry.Limits
	logger   *zap.Logger
}

func NewEngine(labels Labels, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if labels.Seal == "" {
		labels.Seal = DefaultLabels().Seal
	}
	if labels.Carrier == "" {
		labels.Carrier = DefaultLabels().Carrier
	}
	return &Engine{
		renderer: NewRenderer(),
		labels:   labels,
		limits:   geometry.DefaultLimits(),
		logger:   logger,
	}
}

func FromConfig(cfg config.StampConfig, logger *zap.Logger) *Engine {
	return NewEngine(Labels{Seal: cfg.SealLabel, Carrier: cfg.CarrierLabel}, logger)
}

func (e *Engine) Labels() Labels      { return e.labels }
func (e *Engine) Renderer() *Renderer { return e.renderer }

// Stamp applies spec to the first page. Later pages are returned as the
// same byte slices. An empty spec returns the pages untouched.
func (e *Engine) Stamp(ctx context.Context, pages domain.PageSet, spec domain.StampSpec, wf domain.Workflow) (domain.PageSet, *Report, error) {
	if len(pages) == 0 {
		return nil, nil, apperrors.ErrEmptyPageSet
	}
	if wf == domain.WorkflowSign && !spec.HasSignature() {
		return nil, nil, apperrors.ErrSignatureRequired
	}

	out := make(domain.PageSet, len(pages))
	copy(out, pages)
	if spec.IsEmpty() {
		return out, &Report{}, nil
	}

	first, err := imageio.Decode(pages[0].Data, e.limits)
	if err != nil {
		return nil, nil, err
	}
	canvas := imaging.Clone(first)

	sig, warn := e.Signature(spec)
	layout, err := e.Draw(ctx, canvas, spec, sig)
	if err != nil {
		return nil, nil, err
	}

	page, err := imageio.EncodePage(canvas, domain.FormatPNG, 0)
	if err != nil {
		return nil, nil, err
	}
	out[0] = page

	report := &Report{
		Layout:           layout,
		SignatureApplied: sig != nil,
		TextApplied:      len(layout.Lines) > 0,
	}
	if warn != nil {
		report.Warnings = append(report.Warnings, warn)
	}
	metrics.RecordStamp(string(wf))
	e.logger.Debug("First page stamped",
		zap.String("workflow", string(wf)),
		zap.Bool("signature", report.SignatureApplied),
		zap.Int("lines", len(layout.Lines)))
	return out, report, nil
}

// Draw computes the layout for canvas and renders spec onto it.
func (e *Engine) Draw(ctx context.Context, canvas *image.NRGBA, spec domain.StampSpec, sig image.Image) (Layout, error) {
	b := canvas.Bounds()
	layout := ComputeLayout(NewFrame(b.Dx(), b.Dy()), spec, e.labels)
	if err := e.renderer.Draw(ctx, canvas, layout, sig); err != nil {
		return layout, apperrors.ErrInternal.With(err)
	}
	return layout, nil
}

// Signature decodes the signature image of spec. An undecodable image is
// reported as a warning and the stamp continues with text only.
func (e *Engine) Signature(spec domain.StampSpec) (image.Image, error) {
	if !spec.HasSignature() {
		return nil, nil
	}
	img, _, err := image.Decode(bytes.NewReader(spec.Signature))
	if err != nil {
		metrics.RecordSignatureSkipped()
		e.logger.Warn("Signature image undecodable, stamping text only", zap.Error(err))
		return nil, apperrors.ErrSignatureDecode.With(err)
	}
	return img, nil
}
