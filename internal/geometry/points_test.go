package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

func TestOrderRejectsWrongCount(t *testing.T) {
	for _, n := range []int{0, 3, 5} {
		_, err := Order(make([]Point, n))
		require.Error(t, err)
		assert.True(t, apperrors.IsInput(err), "count %d should be an input error", n)
	}
}

func TestOrderShuffledRectangle(t *testing.T) {
	pts := []Point{{1000, 1400}, {0, 0}, {0, 1400}, {1000, 0}}

	q, err := Order(pts)
	require.NoError(t, err)

	assert.Equal(t, Pt(0, 0), q.TL)
	assert.Equal(t, Pt(1000, 0), q.TR)
	assert.Equal(t, Pt(1000, 1400), q.BR)
	assert.Equal(t, Pt(0, 1400), q.BL)
}

func TestOrderPicksMinimaOnTiltedQuads(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		cx, cy := 500+rng.Float64()*200, 700+rng.Float64()*200
		w, h := 300+rng.Float64()*400, 400+rng.Float64()*500
		angle := (rng.Float64() - 0.5) * 0.5

		corners := []Point{
			rotate(Pt(-w/2, -h/2), angle),
			rotate(Pt(w/2, -h/2), angle),
			rotate(Pt(w/2, h/2), angle),
			rotate(Pt(-w/2, h/2), angle),
		}
		for j := range corners {
			corners[j].X += cx + (rng.Float64()-0.5)*20
			corners[j].Y += cy + (rng.Float64()-0.5)*20
		}
		rng.Shuffle(len(corners), func(a, b int) { corners[a], corners[b] = corners[b], corners[a] })

		q, err := Order(corners)
		require.NoError(t, err)

		for _, p := range corners {
			assert.LessOrEqual(t, q.TL.X+q.TL.Y, p.X+p.Y)
			assert.LessOrEqual(t, q.TR.Y-q.TR.X, p.Y-p.X)
			assert.GreaterOrEqual(t, q.BR.X+q.BR.Y, p.X+p.Y)
			assert.GreaterOrEqual(t, q.BL.Y-q.BL.X, p.Y-p.X)
		}
	}
}

func TestOrderAmbiguousDiamond(t *testing.T) {
	// A square rotated by 45 degrees puts one vertex at both minima.
	pts := []Point{{100, 0}, {200, 100}, {100, 200}, {0, 100}}

	_, err := Order(pts)
	require.Error(t, err)
	assert.True(t, apperrors.IsGeometry(err))
}

func TestOrderRejectsCollinear(t *testing.T) {
	pts := []Point{{0, 0}, {100, 0}, {200, 0}, {0, 100}}

	_, err := Order(pts)
	require.Error(t, err)
	assert.True(t, apperrors.IsGeometry(err))
}

func TestOutputSizeUsesLongerEdges(t *testing.T) {
	q := Quad{TL: Pt(10, 10), TR: Pt(810, 30), BR: Pt(830, 1130), BL: Pt(0, 1100)}

	size := q.OutputSize()
	assert.Equal(t, int(math.Round(Pt(0, 1100).Dist(Pt(830, 1130)))), size.Width)
	assert.Equal(t, int(math.Round(Pt(810, 30).Dist(Pt(830, 1130)))), size.Height)
}

func TestScaleToNative(t *testing.T) {
	pts := []Point{{50, 100}, {375, 0}}

	got := ScaleToNative(pts, Size{Width: 375, Height: 500}, Size{Width: 3000, Height: 4000})
	assert.Equal(t, []Point{{400, 800}, {3000, 0}}, got)

	same := ScaleToNative(pts, Size{}, Size{Width: 3000, Height: 4000})
	assert.Equal(t, pts, same)
}

func rotate(p Point, a float64) Point {
	s, c := math.Sin(a), math.Cos(a)
	return Pt(p.X*c-p.Y*s, p.X*s+p.Y*c)
}
