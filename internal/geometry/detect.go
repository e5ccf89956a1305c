package geometry

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// Detector produces the four corner points for a capture. Manual detection
// returns the operator's clicks; automatic detection proposes a quad that
// the operator still confirms.
type Detector interface {
	Mode() Mode
	Detect(ctx context.Context, img image.Image, hint []Point) ([]Point, error)
}

// Manual passes operator-selected corners through after validation.
type Manual struct{}

func (Manual) Mode() Mode { return ModeManual }

func (Manual) Detect(_ context.Context, _ image.Image, hint []Point) ([]Point, error) {
	if _, err := Order(hint); err != nil {
		return nil, err
	}
	out := make([]Point, len(hint))
	copy(out, hint)
	return out, nil
}

// minDocumentFraction is the smallest share of the frame a page outline
// may cover before detection gives up.
const minDocumentFraction = 0.10

// ContourDetector finds the largest bright region of a downscaled
// luminance map and takes its extreme points as corners.
type ContourDetector struct {
	// WorkSize bounds the longer edge of the analysis image.
	WorkSize int
}

func NewContourDetector() *ContourDetector {
	return &ContourDetector{WorkSize: 400}
}

func (d *ContourDetector) Mode() Mode { return ModeAuto }

func (d *ContourDetector) Detect(ctx context.Context, img image.Image, _ []Point) ([]Point, error) {
	b := img.Bounds()
	small := imaging.Fit(img, d.WorkSize, d.WorkSize, imaging.Box)
	gray := imaging.Grayscale(small)
	sw, sh := gray.Rect.Dx(), gray.Rect.Dy()

	lum := make([]uint8, sw*sh)
	for y := 0; y < sh; y++ {
		for x := 0; x < sw; x++ {
			lum[y*sw+x] = gray.Pix[y*gray.Stride+x*4]
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	level := otsu(lum)
	comp := largestComponent(lum, sw, sh, level)
	if float64(len(comp)) < minDocumentFraction*float64(sw*sh) {
		return nil, apperrors.ErrNoDocumentFound
	}

	pts := extremes(comp, sw)
	sx := float64(b.Dx()) / float64(sw)
	sy := float64(b.Dy()) / float64(sh)
	out := make([]Point, 4)
	for i, p := range pts {
		out[i] = Point{X: math.Round(p.X * sx), Y: math.Round(p.Y * sy)}
	}
	if _, err := Order(out); err != nil {
		return nil, apperrors.ErrNoDocumentFound.With(err)
	}
	return out, nil
}

// otsu picks the threshold maximizing between-class variance.
func otsu(lum []uint8) uint8 {
	var hist [256]int
	for _, v := range lum {
		hist[v]++
	}

	total := float64(len(lum))
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var sumB, wB, best float64
	level := 127
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}

// largestComponent returns pixel indices of the biggest 4-connected region
// brighter than level.
func largestComponent(lum []uint8, w, h int, level uint8) []int {
	label := make([]int32, len(lum))
	var best []int
	var next int32
	queue := make([]int, 0, 1024)

	for start := range lum {
		if lum[start] <= level || label[start] != 0 {
			continue
		}
		next++
		label[start] = next
		queue = append(queue[:0], start)
		comp := make([]int, 0, 256)

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			comp = append(comp, i)

			x, y := i%w, i/w
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[1] < 0 || n[0] >= w || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if lum[j] > level && label[j] == 0 {
					label[j] = next
					queue = append(queue, j)
				}
			}
		}

		if len(comp) > len(best) {
			best = comp
		}
	}
	return best
}

func extremes(comp []int, w int) [4]Point {
	type scored struct {
		p        Point
		sum, dif float64
	}
	pts := make([]scored, len(comp))
	for i, idx := range comp {
		x, y := float64(idx%w), float64(idx/w)
		pts[i] = scored{p: Point{X: x, Y: y}, sum: x + y, dif: y - x}
	}

	sort.Slice(pts, func(i, j int) bool { return pts[i].sum < pts[j].sum })
	tl, br := pts[0].p, pts[len(pts)-1].p
	sort.Slice(pts, func(i, j int) bool { return pts[i].dif < pts[j].dif })
	tr, bl := pts[0].p, pts[len(pts)-1].p

	return [4]Point{tl, tr, br, bl}
}
