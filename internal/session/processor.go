package session

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/filter"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
	"github.com/gmsas95/ddtscan/internal/metrics"
)

// Processor is the correction chain shared by every session: perspective
// correction, filtering and encoding, run on the worker pool.
type Processor struct {
	engine      *geometry.Engine
	pipeline    *filter.Pipeline
	pool        *Pool
	limits      geometry.Limits
	format      domain.PageFormat
	jpegQuality int
	logger      *zap.Logger
}

type ProcessorConfig struct {
	Limits      geometry.Limits
	Format      domain.PageFormat
	JPEGQuality int
	Workers     int
}

func NewProcessor(cfg ProcessorConfig, pipeline *filter.Pipeline, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Format == "" {
		cfg.Format = domain.FormatPNG
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 95
	}
	return &Processor{
		engine:      geometry.NewEngine(cfg.Limits, logger),
		pipeline:    pipeline,
		pool:        NewPool(cfg.Workers),
		limits:      cfg.Limits,
		format:      cfg.Format,
		jpegQuality: cfg.JPEGQuality,
		logger:      logger,
	}
}

func (p *Processor) Limits() geometry.Limits {
	return p.limits
}

// Outcome of one correction. Warnings are non-fatal degradations.
type Outcome struct {
	Page     domain.Page
	Rung     filter.Rung
	Warnings []error
	Duration time.Duration
}

// Correct runs geometry, filter and encoding for one capture on the pool.
func (p *Processor) Correct(ctx context.Context, img image.Image, corners []geometry.Point) (*Outcome, error) {
	start := time.Now()
	var out *Outcome
	var runErr error

	err := p.pool.Do(ctx, func() {
		out, runErr = p.correct(ctx, img, corners)
	})
	if err == nil {
		err = runErr
	}

	metrics.RecordCorrection(outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	out.Duration = time.Since(start)
	return out, nil
}

func (p *Processor) correct(ctx context.Context, img image.Image, corners []geometry.Point) (*Outcome, error) {
	corr, err := p.engine.Correct(ctx, img, corners)
	if err != nil {
		return nil, err
	}

	res, err := p.pipeline.Run(ctx, corr.Image)
	if err != nil {
		return nil, err
	}
	corr.Image = nil

	var encoded image.Image = res.Image
	if res.Binary() {
		encoded = filter.ToGray(res.Image)
	}
	page, err := imageio.EncodePage(encoded, p.format, p.jpegQuality)
	if err != nil {
		return nil, err
	}

	if page.AspectWarning {
		p.logger.Info("Corrected page diverges from A4 proportions",
			zap.Int("width", page.Width),
			zap.Int("height", page.Height))
	}
	return &Outcome{Page: page, Rung: res.Rung, Warnings: res.Warnings}, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ctxErr(err):
		return "cancelled"
	case apperrors.IsGeometry(err):
		return "geometry_error"
	case apperrors.IsInput(err):
		return "input_error"
	}
	return "error"
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
