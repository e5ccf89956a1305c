// Package filter turns a corrected page photo into a scanner-like,
// black-on-white page.
package filter

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/metrics"
)

// Rung names the level of the degradation ladder that produced a result.
type Rung string

const (
	RungFull        Rung = "full"
	RungReduced     Rung = "reduced"
	RungPassthrough Rung = "passthrough"
)

// Params tunes the stages. The defaults err on the side of legibility.
type Params struct {
	ContrastGain     float64
	BrightnessOffset float64
	BlurSigma        float64
	ThresholdBlock   int
	ThresholdOffset  int
	CloseKernel      int
}

func DefaultParams() Params {
	return Params{
		ContrastGain:     1.1,
		BrightnessOffset: 5,
		BlurSigma:        0.6,
		ThresholdBlock:   31,
		ThresholdOffset:  10,
		CloseKernel:      2,
	}
}

func ParamsFromConfig(cfg config.FilterConfig) Params {
	return Params{
		ContrastGain:     cfg.ContrastGain,
		BrightnessOffset: cfg.BrightnessOffset,
		BlurSigma:        cfg.BlurSigma,
		ThresholdBlock:   cfg.ThresholdBlock,
		ThresholdOffset:  cfg.ThresholdOffset,
		CloseKernel:      cfg.CloseKernel,
	}
}

// Stage is one image transform. Stages must not modify their input.
type Stage struct {
	Name  string
	Apply func(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error)
}

type Result struct {
	Image    *image.NRGBA
	Rung     Rung
	Warnings []error
	Duration time.Duration
}

// Binary reports whether the output is a thresholded page that can be
// stored as a single gray channel.
func (r *Result) Binary() bool {
	return r.Rung != RungPassthrough
}

type Pipeline struct {
	mu       sync.RWMutex
	params   Params
	disabled bool
	logger   *zap.Logger

	// ladder overrides the stage lists built from params.
	ladder [][]Stage
}

func New(params Params, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{params: params, logger: logger}
}

// FromConfig builds a pipeline from the filter section; a disabled filter
// passes corrected pages through untouched.
func FromConfig(cfg config.FilterConfig, logger *zap.Logger) *Pipeline {
	p := New(ParamsFromConfig(cfg), logger)
	p.disabled = !cfg.Enabled
	return p
}

func (p *Pipeline) Params() Params {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// SetParams swaps the tuning for subsequent runs.
func (p *Pipeline) SetParams(params Params) {
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
	p.logger.Info("Filter parameters updated",
		zap.Int("threshold_block", params.ThresholdBlock),
		zap.Int("threshold_offset", params.ThresholdOffset))
}

// Run applies the full chain, falling back to grayscale plus sharpen and
// then to the untouched input. Every fallback adds a PipelineDegraded
// warning. The only error returned is a cancelled context.
func (p *Pipeline) Run(ctx context.Context, img *image.NRGBA) (*Result, error) {
	start := time.Now()
	p.mu.RLock()
	params, disabled, ladder := p.params, p.disabled, p.ladder
	p.mu.RUnlock()

	res := &Result{}
	if disabled {
		res.Image, res.Rung = img, RungPassthrough
		res.Duration = time.Since(start)
		return res, nil
	}

	if ladder == nil {
		ladder = [][]Stage{FullStages(params), ReducedStages(params)}
	}
	rungs := []Rung{RungFull, RungReduced}

	for i, stages := range ladder {
		out, err := runStages(ctx, img, stages)
		if err == nil {
			res.Image, res.Rung = out, rungs[min(i, len(rungs)-1)]
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		warn := apperrors.ErrPipelineDegraded.With(err)
		res.Warnings = append(res.Warnings, warn)
		p.logger.Warn("Filter pipeline degraded", zap.Int("rung", i), zap.Error(err))
	}

	if res.Image == nil {
		res.Image, res.Rung = img, RungPassthrough
	}
	res.Duration = time.Since(start)
	metrics.RecordFilterRun(string(res.Rung))
	return res, nil
}

func runStages(ctx context.Context, img *image.NRGBA, stages []Stage) (*image.NRGBA, error) {
	cur := img
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := applyStage(ctx, s, cur)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
		cur = next
	}
	return cur, nil
}

func applyStage(ctx context.Context, s Stage, img *image.NRGBA) (out *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = s.Apply(ctx, img)
	if err == nil && out == nil {
		err = fmt.Errorf("stage returned no image")
	}
	return out, err
}

// ToGray collapses a thresholded page to one channel for compact storage.
func ToGray(img *image.NRGBA) *image.Gray {
	b := img.Rect
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}
