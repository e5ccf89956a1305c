// Package geometry turns a photographed page quadrilateral into an upright
// rectangle.
package geometry

import (
	"math"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// MinEdgePx is the smallest output edge accepted as a real page.
const MinEdgePx = 8

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Quad is an ordered corner set.
type Quad struct {
	TL, TR, BR, BL Point
}

func (q Quad) Points() [4]Point {
	return [4]Point{q.TL, q.TR, q.BR, q.BL}
}

// Order assigns corners with the sum/difference heuristic: top-left has the
// smallest x+y, bottom-right the largest, top-right the smallest y-x and
// bottom-left the largest. Quads rotated near 45 degrees can map two corners
// to the same input point, which is reported as ErrAmbiguousCorners.
func Order(points []Point) (Quad, error) {
	if len(points) != 4 {
		return Quad{}, apperrors.ErrCornerCount.Withf("got %d", len(points))
	}

	tl, br, tr, bl := 0, 0, 0, 0
	for i, p := range points {
		sum, diff := p.X+p.Y, p.Y-p.X
		if sum < points[tl].X+points[tl].Y {
			tl = i
		}
		if sum > points[br].X+points[br].Y {
			br = i
		}
		if diff < points[tr].Y-points[tr].X {
			tr = i
		}
		if diff > points[bl].Y-points[bl].X {
			bl = i
		}
	}

	seen := map[int]bool{tl: true, tr: true, br: true, bl: true}
	if len(seen) != 4 {
		return Quad{}, apperrors.ErrAmbiguousCorners
	}

	q := Quad{TL: points[tl], TR: points[tr], BR: points[br], BL: points[bl]}
	if !q.Convex() {
		return Quad{}, apperrors.ErrDegenerateQuad.Withf("corners do not form a convex quadrilateral")
	}
	return q, nil
}

// Convex reports whether the corners wind consistently with a non-trivial
// turn at every vertex.
func (q Quad) Convex() bool {
	pts := q.Points()
	sign := 0
	for i := 0; i < 4; i++ {
		a := pts[(i+1)%4].Sub(pts[i])
		b := pts[(i+2)%4].Sub(pts[(i+1)%4])
		cross := a.X*b.Y - a.Y*b.X
		if math.Abs(cross) < 1e-6 {
			return false
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

// OutputSize keeps the longer edge of each parallel pair so skewed content
// is not cropped.
func (q Quad) OutputSize() Size {
	w := math.Max(q.TL.Dist(q.TR), q.BL.Dist(q.BR))
	h := math.Max(q.TL.Dist(q.BL), q.TR.Dist(q.BR))
	return Size{Width: int(math.Round(w)), Height: int(math.Round(h))}
}

// ScaleToNative converts points clicked on a scaled display surface into
// native image pixels. A zero display size means the points are native.
func ScaleToNative(points []Point, display, native Size) []Point {
	out := make([]Point, len(points))
	if display.Empty() || native.Empty() {
		copy(out, points)
		return out
	}

	sx := float64(native.Width) / float64(display.Width)
	sy := float64(native.Height) / float64(display.Height)
	for i, p := range points {
		out[i] = Point{X: math.Round(p.X * sx), Y: math.Round(p.Y * sy)}
	}
	return out
}
