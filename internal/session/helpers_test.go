package session

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gmsas95/ddtscan/internal/domain"
	"github.com/gmsas95/ddtscan/internal/filter"
	"github.com/gmsas95/ddtscan/internal/geometry"
)

// photo renders a 300x400 gray desk with a white sheet from (50,50) to
// (250,333) carrying a dark bar of text.
func photo(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 300, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 300; x++ {
			c := color.NRGBA{90, 90, 90, 255}
			if x >= 50 && x < 250 && y >= 50 && y < 333 {
				c = color.NRGBA{245, 245, 245, 255}
				if y >= 100 && y < 106 && x >= 80 && x < 220 {
					c = color.NRGBA{20, 20, 20, 255}
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sheetCorners() []geometry.Point {
	return []geometry.Point{{X: 50, Y: 50}, {X: 250, Y: 50}, {X: 250, Y: 333}, {X: 50, Y: 333}}
}

func newTestProcessor() *Processor {
	return NewProcessor(ProcessorConfig{Limits: geometry.DefaultLimits(), Workers: 2}, filter.New(filter.DefaultParams(), nil), nil)
}

func newTestAccumulator(t *testing.T, budget Budget) (*Accumulator, *MemoryPageStore) {
	t.Helper()
	store := NewMemoryPageStore()
	acc := NewAccumulator(newTestProcessor(), store, Options{ID: "s1", Budget: budget})
	require.NoError(t, acc.Start())
	return acc, store
}

func capture(t *testing.T, acc *Accumulator) {
	t.Helper()
	require.NoError(t, acc.Capture(t.Context(), domain.RawCapture{
		Data:       photo(t),
		Source:     domain.SourceCamera,
		CapturedAt: time.Now(),
	}))
}

func scanPage(t *testing.T, acc *Accumulator) *Outcome {
	t.Helper()
	capture(t, acc)
	require.NoError(t, acc.SetCorners(sheetCorners(), false))
	out, err := acc.Process(t.Context())
	require.NoError(t, err)
	return out
}
