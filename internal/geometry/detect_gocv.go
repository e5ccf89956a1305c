//go:build gocv

package geometry

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/vision"
)

// cvBackend probes the OpenCV runtime once per process.
var cvBackend = vision.NewHandle("opencv", func(ctx context.Context) (string, error) {
	return gocv.OpenCVVersion(), nil
})

// NewAutoDetector returns the OpenCV contour detector, which falls back to
// the pure Go one when OpenCV cannot be initialized.
func NewAutoDetector() Detector {
	return &CVContourDetector{fallback: NewContourDetector()}
}

// CVContourDetector runs Canny edges and polygon approximation and keeps
// the largest four-sided contour.
type CVContourDetector struct {
	fallback *ContourDetector
}

func (d *CVContourDetector) Mode() Mode { return ModeAuto }

func (d *CVContourDetector) Detect(ctx context.Context, img image.Image, hint []Point) ([]Point, error) {
	if _, err := cvBackend.Get(ctx); err != nil {
		return d.fallback.Detect(ctx, img, hint)
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, apperrors.ErrImageDecode.With(err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	gocv.GaussianBlur(gray, &gray, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, 75, 200)

	contours := gocv.FindContours(edges, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	b := img.Bounds()
	minArea := minDocumentFraction * float64(b.Dx()*b.Dy())
	bestArea := 0.0
	var best []image.Point

	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < minArea || area <= bestArea {
			continue
		}
		approx := gocv.ApproxPolyDP(c, 0.02*gocv.ArcLength(c, true), true)
		if approx.Size() == 4 {
			best = approx.ToPoints()
			bestArea = area
		}
		approx.Close()
	}

	if best == nil {
		return nil, apperrors.ErrNoDocumentFound
	}

	out := make([]Point, 4)
	for i, p := range best {
		out[i] = Point{X: float64(p.X), Y: float64(p.Y)}
	}
	if _, err := Order(out); err != nil {
		return nil, apperrors.ErrNoDocumentFound.With(err)
	}
	return out, nil
}
