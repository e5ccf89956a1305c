package geometry

import (
	"context"
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// Warp resamples src into a width x height image. inv maps destination
// pixels back to source coordinates. Samples that fall outside the source
// are painted white, like the bed of a flatbed scanner.
func Warp(ctx context.Context, src image.Image, inv Homography, width, height int) (*image.NRGBA, error) {
	in, ok := src.(*image.NRGBA)
	if !ok || in.Rect.Min != (image.Point{}) {
		in = imaging.Clone(src)
	}
	out := image.NewNRGBA(image.Rect(0, 0, width, height))

	bands := runtime.NumCPU()
	if bands > height {
		bands = height
	}
	rowsPer := (height + bands - 1) / bands

	var wg sync.WaitGroup
	for b := 0; b < bands; b++ {
		y0 := b * rowsPer
		y1 := min(y0+rowsPer, height)
		if y0 >= y1 {
			break
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				if y%64 == 0 && ctx.Err() != nil {
					return
				}
				warpRow(in, out, inv, y)
			}
		}(y0, y1)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func warpRow(in, out *image.NRGBA, inv Homography, y int) {
	sw, sh := in.Rect.Dx(), in.Rect.Dy()
	row := out.Pix[y*out.Stride : y*out.Stride+out.Rect.Dx()*4]

	for x := 0; x < out.Rect.Dx(); x++ {
		px := row[x*4 : x*4+4 : x*4+4]
		s, ok := inv.Apply(Point{X: float64(x), Y: float64(y)})
		if !ok || s.X < -0.5 || s.Y < -0.5 || s.X > float64(sw)-0.5 || s.Y > float64(sh)-0.5 {
			px[0], px[1], px[2], px[3] = 0xff, 0xff, 0xff, 0xff
			continue
		}
		bilinear(in, clamp(s.X, float64(sw-1)), clamp(s.Y, float64(sh-1)), px)
	}
}

func bilinear(in *image.NRGBA, sx, sy float64, dst []uint8) {
	x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
	fx, fy := sx-float64(x0), sy-float64(y0)
	x1 := min(x0+1, in.Rect.Dx()-1)
	y1 := min(y0+1, in.Rect.Dy()-1)

	i00 := y0*in.Stride + x0*4
	i10 := y0*in.Stride + x1*4
	i01 := y1*in.Stride + x0*4
	i11 := y1*in.Stride + x1*4

	for c := 0; c < 4; c++ {
		top := float64(in.Pix[i00+c])*(1-fx) + float64(in.Pix[i10+c])*fx
		bot := float64(in.Pix[i01+c])*(1-fx) + float64(in.Pix[i11+c])*fx
		v := top*(1-fy) + bot*fy
		dst[c] = uint8(math.Round(math.Min(math.Max(v, 0), 255)))
	}
}

func clamp(v, hi float64) float64 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
