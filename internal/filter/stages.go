package filter

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// FullStages is the scanner chain: grayscale, contrast, denoise, sharpen,
// adaptive threshold, closing.
func FullStages(p Params) []Stage {
	return []Stage{
		Grayscale(),
		ContrastBrightness(p.ContrastGain, p.BrightnessOffset),
		Denoise(p.BlurSigma),
		Sharpen(),
		AdaptiveThreshold(p.ThresholdBlock, p.ThresholdOffset),
		Close(p.CloseKernel),
	}
}

// ReducedStages is the first fallback.
func ReducedStages(_ Params) []Stage {
	return []Stage{Grayscale(), Sharpen()}
}

func Grayscale() Stage {
	return Stage{Name: "grayscale", Apply: func(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
		return imaging.Grayscale(img), nil
	}}
}

// ContrastBrightness maps v to (v-128)*gain + 128 + offset.
func ContrastBrightness(gain, offset float64) Stage {
	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp8((float64(i)-128)*gain + 128 + offset)
	}
	return Stage{Name: "contrast", Apply: func(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{lut[c.R], lut[c.G], lut[c.B], c.A}
		}), nil
	}}
}

func Denoise(sigma float64) Stage {
	return Stage{Name: "denoise", Apply: func(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
		if sigma <= 0 {
			return img, nil
		}
		return imaging.Blur(img, sigma), nil
	}}
}

func Sharpen() Stage {
	return Stage{Name: "sharpen", Apply: func(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
		return imaging.Convolve3x3(img, sharpenKernel, nil), nil
	}}
}

// AdaptiveThreshold turns a pixel black when it is more than offset levels
// darker than the mean of its block x block neighbourhood. Means come from
// an integral image so the cost does not depend on the block size.
func AdaptiveThreshold(block, offset int) Stage {
	return Stage{Name: "threshold", Apply: func(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
		if block < 3 || block%2 == 0 {
			return nil, fmt.Errorf("block size must be odd and >= 3, got %d", block)
		}
		w, h := img.Rect.Dx(), img.Rect.Dy()
		integral := make([]int64, (w+1)*(h+1))
		for y := 0; y < h; y++ {
			var row int64
			for x := 0; x < w; x++ {
				row += int64(img.Pix[y*img.Stride+x*4])
				integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r := block / 2
		out := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			y0, y1 := max(y-r, 0), min(y+r+1, h)
			for x := 0; x < w; x++ {
				x0, x1 := max(x-r, 0), min(x+r+1, w)
				sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
				count := int64((x1 - x0) * (y1 - y0))
				v := int64(img.Pix[y*img.Stride+x*4])

				var level uint8 = 255
				if v*count < sum-int64(offset)*count {
					level = 0
				}
				i := y*out.Stride + x*4
				out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = level, level, level, 255
			}
		}
		return out, nil
	}}
}

// Close dilates then erodes the ink (black pixels) with a k x k square,
// bridging one-pixel stroke gaps while leaving letter spacing intact.
func Close(k int) Stage {
	return Stage{Name: "close", Apply: func(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
		if k < 1 {
			return nil, fmt.Errorf("kernel size must be positive, got %d", k)
		}
		if k == 1 {
			return img, nil
		}
		w, h := img.Rect.Dx(), img.Rect.Dy()
		ink := make([]bool, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				ink[y*w+x] = img.Pix[y*img.Stride+x*4] < 128
			}
		}

		// An even kernel has its anchor at (k/2, k/2), as in OpenCV, so
		// dilation reaches back and erosion reaches forward.
		a := k / 2
		dilated := morph(ink, w, h, -a, k-1-a, true)
		closed := morph(dilated, w, h, -(k - 1 - a), a, false)

		out := image.NewNRGBA(image.Rect(0, 0, w, h))
		for i, black := range closed {
			var v uint8 = 255
			if black {
				v = 0
			}
			out.Pix[i*4], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = v, v, v, 255
		}
		return out, nil
	}}
}

// morph applies dilation (any ink) or erosion (all ink) over offsets lo..hi in
// both axes. Out-of-image neighbours are ignored.
func morph(src []bool, w, h, lo, hi int, dilate bool) []bool {
	out := make([]bool, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hit := !dilate
			for dy := lo; dy <= hi; dy++ {
				for dx := lo; dx <= hi; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if src[ny*w+nx] == dilate {
						hit = dilate
					}
				}
			}
			out[y*w+x] = hit
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 255)))
}
