package geometry

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// Correction is an upright page cut out of a photo.
type Correction struct {
	Image    *image.NRGBA
	Quad     Quad
	Size     Size
	Duration time.Duration
}

// Engine performs perspective correction.
type Engine struct {
	limits Limits
	logger *zap.Logger
}

func NewEngine(limits Limits, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{limits: limits, logger: logger}
}

// Correct warps the quadrilateral delimited by points (native pixels) into
// an axis-aligned image. The source image is never modified, so a failed
// correction can be retried with other corners.
func (e *Engine) Correct(ctx context.Context, img image.Image, points []Point) (*Correction, error) {
	start := time.Now()

	b := img.Bounds()
	if err := CheckCorners(points, Size{Width: b.Dx(), Height: b.Dy()}); err != nil {
		return nil, err
	}

	quad, err := Order(points)
	if err != nil {
		return nil, err
	}

	size := quad.OutputSize()
	if size.Width < MinEdgePx || size.Height < MinEdgePx {
		return nil, apperrors.ErrDegenerateQuad.Withf("output size %dx%d", size.Width, size.Height)
	}
	if err := e.limits.Validate(size.Width, size.Height); err != nil {
		return nil, apperrors.ErrDegenerateQuad.With(err)
	}

	dst := [4]Point{
		{0, 0},
		{float64(size.Width), 0},
		{float64(size.Width), float64(size.Height)},
		{0, float64(size.Height)},
	}
	inv, err := SolveHomography(dst, quad.Points())
	if err != nil {
		return nil, err
	}

	out, err := Warp(ctx, img, inv, size.Width, size.Height)
	if err != nil {
		return nil, err
	}

	c := &Correction{Image: out, Quad: quad, Size: size, Duration: time.Since(start)}
	e.logger.Debug("Page corrected",
		zap.Int("width", size.Width),
		zap.Int("height", size.Height),
		zap.Duration("duration", c.Duration))
	return c, nil
}
