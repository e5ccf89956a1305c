package stamp

import (
	"context"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gmsas95/ddtscan/internal/vision"
)

// regularFont is parsed once per process and shared by every renderer.
var regularFont = vision.NewHandle("gofont-regular", func(context.Context) (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// Renderer draws a computed Layout onto a page. It is the only drawing
// routine for stamps, so previews and final pages cannot drift apart.
type Renderer struct {
	font *vision.Handle[*opentype.Font]
}

func NewRenderer() *Renderer {
	return &Renderer{font: regularFont}
}

// Draw renders the signature (when not nil) and the text lines into dst.
func (r *Renderer) Draw(ctx context.Context, dst draw.Image, l Layout, signature image.Image) error {
	if signature != nil {
		sb := signature.Bounds()
		fit := FitSignature(l.Signature, sb.Dx(), sb.Dy()).Image()
		if !fit.Empty() {
			xdraw.CatmullRom.Scale(dst, fit, signature, sb, xdraw.Over, nil)
		}
	}

	if len(l.Lines) == 0 {
		return nil
	}

	f, err := r.font.Get(ctx)
	if err != nil {
		return err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    l.FontPx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	descent := face.Metrics().Descent.Round()
	d := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	for _, line := range l.Lines {
		d.Dot = fixed.P(int(math.Round(line.X)), int(math.Round(line.Bottom))-descent)
		d.DrawString(line.Text)
	}
	return nil
}
