package geometry

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

func patterned(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 7), uint8(y * 3), uint8((x + y) % 251), 255})
		}
	}
	return img
}

func TestCorrectAxisAlignedIsIdentity(t *testing.T) {
	src := patterned(1000, 1400)
	e := NewEngine(DefaultLimits(), nil)

	c, err := e.Correct(context.Background(), src, []Point{{0, 0}, {1000, 0}, {1000, 1400}, {0, 1400}})
	require.NoError(t, err)

	assert.Equal(t, Size{Width: 1000, Height: 1400}, c.Size)
	assert.Equal(t, image.Rect(0, 0, 1000, 1400), c.Image.Bounds())
	for _, p := range []image.Point{{0, 0}, {999, 0}, {0, 1399}, {999, 1399}, {500, 700}, {123, 456}} {
		assert.Equal(t, src.NRGBAAt(p.X, p.Y), c.Image.NRGBAAt(p.X, p.Y), "pixel %v", p)
	}
}

func TestCorrectSubRegion(t *testing.T) {
	src := patterned(400, 400)
	e := NewEngine(DefaultLimits(), nil)

	c, err := e.Correct(context.Background(), src, []Point{{300, 50}, {100, 50}, {100, 350}, {300, 350}})
	require.NoError(t, err)

	assert.Equal(t, Size{Width: 200, Height: 300}, c.Size)
	assert.Equal(t, src.NRGBAAt(100, 50), c.Image.NRGBAAt(0, 0))
	assert.Equal(t, src.NRGBAAt(150, 120), c.Image.NRGBAAt(50, 70))
}

func TestCorrectFillsOutsideWithWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for i := range src.Pix {
		src.Pix[i] = 0
	}
	e := NewEngine(DefaultLimits(), nil)

	c, err := e.Correct(context.Background(), src, []Point{{-20, -20}, {120, -20}, {120, 120}, {-20, 120}})
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, c.Image.NRGBAAt(5, 5))
	assert.Equal(t, color.NRGBA{0, 0, 0, 0}, c.Image.NRGBAAt(100, 100))
}

func TestCorrectRejectsDegenerate(t *testing.T) {
	e := NewEngine(DefaultLimits(), nil)
	src := patterned(50, 50)

	_, err := e.Correct(context.Background(), src, []Point{{10, 10}, {13, 10}, {13, 13}, {10, 13}})
	require.Error(t, err)
	assert.True(t, apperrors.IsGeometry(err))
}

func TestCorrectRejectsOversizedOutput(t *testing.T) {
	e := NewEngine(Limits{MaxDimension: 500, MaxPixels: DefaultMaxPixels}, nil)
	src := patterned(600, 600)

	_, err := e.Correct(context.Background(), src, []Point{{0, 0}, {600, 0}, {600, 600}, {0, 600}})
	require.Error(t, err)
	assert.True(t, apperrors.IsGeometry(err))
}

func TestCorrectRejectsCornersOutsideImage(t *testing.T) {
	e := NewEngine(DefaultLimits(), nil)
	src := patterned(300, 400)

	_, err := e.Correct(context.Background(), src, []Point{{0, 0}, {3000, 0}, {3000, 4000}, {0, 4000}})
	assert.ErrorIs(t, err, apperrors.ErrCornerOutOfBounds)
	assert.True(t, apperrors.IsInput(err))
}

func TestCheckCorners(t *testing.T) {
	size := Size{Width: 100, Height: 200}

	tests := []struct {
		name   string
		points []Point
		ok     bool
	}{
		{"inside", []Point{{0, 0}, {100, 200}}, true},
		{"within slack", []Point{{-25, -50}, {125, 250}}, true},
		{"left of slack", []Point{{-26, 0}}, false},
		{"below slack", []Point{{0, 251}}, false},
		{"nan", []Point{{math.NaN(), 0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCorners(tt.points, size)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrCornerOutOfBounds)
			}
		})
	}
}

func TestCorrectHonoursCancellation(t *testing.T) {
	e := NewEngine(DefaultLimits(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Correct(ctx, patterned(200, 200), []Point{{0, 0}, {200, 0}, {200, 200}, {0, 200}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolveHomographyRoundTrip(t *testing.T) {
	from := [4]Point{{0, 0}, {100, 0}, {100, 140}, {0, 140}}
	to := [4]Point{{12, 20}, {95, 8}, {110, 150}, {3, 133}}

	h, err := SolveHomography(from, to)
	require.NoError(t, err)

	for i := range from {
		p, ok := h.Apply(from[i])
		require.True(t, ok)
		assert.InDelta(t, to[i].X, p.X, 1e-6)
		assert.InDelta(t, to[i].Y, p.Y, 1e-6)
	}
}

func TestSolveHomographySingular(t *testing.T) {
	from := [4]Point{{0, 0}, {0, 0}, {0, 0}, {0, 0}}
	_, err := SolveHomography(from, from)
	assert.ErrorIs(t, err, apperrors.ErrSingularMatrix)
}
