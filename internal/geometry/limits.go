package geometry

import (
	"math"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

const (
	// DefaultMaxDimension caps either edge of a decoded buffer.
	DefaultMaxDimension = 32768
	// DefaultMaxPixels bounds a single buffer to roughly 64MP, which keeps
	// an NRGBA copy under 256 MB.
	DefaultMaxPixels int64 = 64 * 1024 * 1024

	// CornerSlack is how far outside the photo, as a fraction of each edge,
	// a corner may lie. Pages cut at the photo border need a little room.
	CornerSlack = 0.25
)

type Limits struct {
	MaxDimension int
	MaxPixels    int64
}

func DefaultLimits() Limits {
	return Limits{MaxDimension: DefaultMaxDimension, MaxPixels: DefaultMaxPixels}
}

// Validate rejects buffers that are empty or exceed the limits.
func (l Limits) Validate(width, height int) error {
	if width <= 0 || height <= 0 {
		return apperrors.ErrImageDecode.Withf("image bounds invalid (%d x %d)", width, height)
	}
	if l.MaxDimension > 0 && (width > l.MaxDimension || height > l.MaxDimension) {
		return apperrors.ErrImageTooLarge.Withf("dimension exceeds limit (%d x %d)", width, height)
	}
	pixels := int64(width) * int64(height)
	if l.MaxPixels > 0 && pixels > l.MaxPixels {
		return apperrors.ErrImageTooLarge.Withf("pixel count %d exceeds limit %d", pixels, l.MaxPixels)
	}
	return nil
}

// BufferBytes is the memory an NRGBA buffer of this size holds.
func BufferBytes(width, height int) int64 {
	return int64(width) * int64(height) * 4
}

// CheckCorners rejects corners that lie further than CornerSlack outside an
// image of the given size.
func CheckCorners(points []Point, size Size) error {
	if size.Empty() {
		return nil
	}
	dx := float64(size.Width) * CornerSlack
	dy := float64(size.Height) * CornerSlack
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) ||
			p.X < -dx || p.X > float64(size.Width)+dx ||
			p.Y < -dy || p.Y > float64(size.Height)+dy {
			return apperrors.ErrCornerOutOfBounds.Withf("corner %d (%.0f, %.0f) outside %dx%d image", i+1, p.X, p.Y, size.Width, size.Height)
		}
	}
	return nil
}
