package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/filter"
	"github.com/gmsas95/ddtscan/internal/geometry"
)

func TestAccumulatorTwoPages(t *testing.T) {
	acc, store := newTestAccumulator(t, DefaultBudget())
	assert.Equal(t, StateCapturing, acc.State())

	out := scanPage(t, acc)
	assert.Equal(t, StatePageReady, acc.State())
	assert.Equal(t, filter.RungFull, out.Rung)
	assert.Equal(t, 200, out.Page.Width)
	assert.Equal(t, 283, out.Page.Height)

	require.NoError(t, acc.AddNextPage(t.Context()))
	assert.Equal(t, StateCapturing, acc.State())
	assert.Equal(t, 1, store.Len())

	scanPage(t, acc)
	require.NoError(t, acc.Finish(t.Context()))
	assert.Equal(t, StateFinalizing, acc.State())

	pages, err := acc.Pages(t.Context())
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.Equal(t, domain.FormatPNG, p.Format)
		assert.Equal(t, 200, p.Width)
		assert.NotEmpty(t, p.Data)
	}

	status := acc.Status()
	assert.Equal(t, 0, status.Pages[0].Index)
	assert.Equal(t, 1, status.Pages[1].Index)
	assert.Nil(t, status.Capture)
	assert.Nil(t, status.Ready)

	require.NoError(t, acc.Release(t.Context()))
	assert.Equal(t, 0, store.Len())
}

func TestAccumulatorCornerSelection(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())

	_, err := acc.AddCorner(geometry.Pt(1, 1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "no capture yet")

	capture(t, acc)
	for i, p := range sheetCorners() {
		n, err := acc.AddCorner(p)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	n, err := acc.AddCorner(geometry.Pt(10, 10))
	assert.ErrorIs(t, err, apperrors.ErrCornerCount)
	assert.Equal(t, 4, n)

	require.NoError(t, acc.ClearCorners())
	assert.Empty(t, acc.Status().Corners)

	_, err = acc.Process(t.Context())
	assert.ErrorIs(t, err, apperrors.ErrCornerCount)
	assert.Equal(t, StateAwaitingCorners, acc.State())
}

func TestAccumulatorDisplayScaling(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	require.NoError(t, acc.Capture(t.Context(), domain.RawCapture{
		Data:          photo(t),
		DisplayWidth:  150,
		DisplayHeight: 200,
	}))

	_, err := acc.AddCorner(geometry.Pt(25, 25))
	require.NoError(t, err)
	assert.Equal(t, []geometry.Point{{X: 50, Y: 50}}, acc.Status().Corners)
	assert.Equal(t, domain.SourceFile, acc.Status().Capture.Source)
}

func TestAccumulatorFailedCorrectionKeepsCapture(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	capture(t, acc)

	require.NoError(t, acc.SetCorners([]geometry.Point{{X: 10, Y: 10}, {X: 12, Y: 10}, {X: 12, Y: 12}, {X: 10, Y: 12}}, false))
	_, err := acc.Process(t.Context())
	require.Error(t, err)
	assert.True(t, apperrors.IsGeometry(err))

	assert.Equal(t, StateAwaitingCorners, acc.State())
	assert.Empty(t, acc.Status().Corners)
	assert.NotNil(t, acc.Status().Capture)

	require.NoError(t, acc.SetCorners(sheetCorners(), false))
	_, err = acc.Process(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatePageReady, acc.State())
}

func TestAccumulatorFinishEmpty(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())

	assert.ErrorIs(t, acc.Finish(t.Context()), apperrors.ErrEmptyPageSet)
	assert.Equal(t, StateCapturing, acc.State())

	capture(t, acc)
	assert.ErrorIs(t, acc.Finish(t.Context()), apperrors.ErrEmptyPageSet)
	assert.Equal(t, StateAwaitingCorners, acc.State())
}

func TestAccumulatorFinishFromPageReady(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	scanPage(t, acc)

	require.NoError(t, acc.Finish(t.Context()))
	pages, err := acc.Pages(t.Context())
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	assert.ErrorIs(t, acc.Capture(t.Context(), domain.RawCapture{Data: photo(t)}), apperrors.ErrInvalidState)
}

func TestAccumulatorFinishDropsUnprocessedCapture(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	scanPage(t, acc)
	require.NoError(t, acc.AddNextPage(t.Context()))

	capture(t, acc)
	require.NoError(t, acc.Finish(t.Context()))

	pages, err := acc.Pages(t.Context())
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestAccumulatorCancelPage(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	scanPage(t, acc)
	require.NoError(t, acc.AddNextPage(t.Context()))

	scanPage(t, acc)
	require.NoError(t, acc.CancelPage())
	assert.Equal(t, StateCapturing, acc.State())

	status := acc.Status()
	assert.Len(t, status.Pages, 1)
	assert.Nil(t, status.Ready)
}

func TestAccumulatorAbort(t *testing.T) {
	acc, store := newTestAccumulator(t, DefaultBudget())
	events, cancel := acc.Subscribe(16)
	defer cancel()

	scanPage(t, acc)
	require.NoError(t, acc.AddNextPage(t.Context()))
	require.Equal(t, 1, store.Len())

	require.NoError(t, acc.Abort(t.Context()))
	assert.Equal(t, StateAborted, acc.State())
	assert.Equal(t, 0, store.Len())
	require.NoError(t, acc.Abort(t.Context()))

	assert.ErrorIs(t, acc.Capture(t.Context(), domain.RawCapture{Data: photo(t)}), apperrors.ErrSessionAborted)
	_, err := acc.Pages(t.Context())
	assert.ErrorIs(t, err, apperrors.ErrSessionAborted)

	var last Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, EventAborted, last.Type)
}

func TestAccumulatorPageBudget(t *testing.T) {
	acc, _ := newTestAccumulator(t, Budget{MaxPages: 1, MaxBytes: 256 << 20})
	scanPage(t, acc)
	require.NoError(t, acc.AddNextPage(t.Context()))

	scanPage(t, acc)
	assert.ErrorIs(t, acc.AddNextPage(t.Context()), apperrors.ErrBudgetExceeded)
	assert.Equal(t, StatePageReady, acc.State())
}

func TestAccumulatorByteBudgetRejectsCapture(t *testing.T) {
	acc, _ := newTestAccumulator(t, Budget{MaxPages: 10, MaxBytes: 1024})

	err := acc.Capture(t.Context(), domain.RawCapture{Data: photo(t)})
	assert.ErrorIs(t, err, apperrors.ErrBudgetExceeded)
	assert.Equal(t, StateCapturing, acc.State())
}

func TestAccumulatorRejectsUndecodableCapture(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())

	err := acc.Capture(t.Context(), domain.RawCapture{Data: []byte("not an image")})
	assert.ErrorIs(t, err, apperrors.ErrImageDecode)
	assert.Equal(t, StateCapturing, acc.State())
}

func TestAccumulatorEvents(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	events, cancel := acc.Subscribe(16)
	defer cancel()

	scanPage(t, acc)

	var types []EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []EventType{EventCaptured, EventCornerAdded, EventStateChanged, EventPageReady}, types)
}

func TestAccumulatorSuggestCorners(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	capture(t, acc)

	pts, err := acc.SuggestCorners(t.Context(), geometry.NewContourDetector())
	require.NoError(t, err)
	require.Len(t, pts, 4)

	q, err := geometry.Order(pts)
	require.NoError(t, err)
	assert.InDelta(t, 50, q.TL.X, 6)
	assert.InDelta(t, 50, q.TL.Y, 6)
	assert.InDelta(t, 250, q.BR.X, 6)
	assert.InDelta(t, 333, q.BR.Y, 6)
}

func TestAccumulatorRejectsCornersOutsideCapture(t *testing.T) {
	acc, _ := newTestAccumulator(t, Budget{MaxPages: 10, MaxBytes: 2 << 20})
	capture(t, acc)

	require.NoError(t, acc.SetCorners([]geometry.Point{{X: 0, Y: 0}, {X: 3000, Y: 0}, {X: 3000, Y: 4000}, {X: 0, Y: 4000}}, false))
	_, err := acc.Process(t.Context())
	assert.ErrorIs(t, err, apperrors.ErrCornerOutOfBounds)
	assert.True(t, apperrors.IsInput(err))

	assert.Equal(t, StateAwaitingCorners, acc.State())
	assert.Empty(t, acc.Status().Corners)
	assert.NotNil(t, acc.Status().Capture, "capture kept for a retry")
}

func TestAccumulatorBudgetCoversCorrectedBuffer(t *testing.T) {
	// The 300x400 capture holds 480000 bytes; a full-photo correction needs
	// as much again.
	acc, _ := newTestAccumulator(t, Budget{MaxPages: 10, MaxBytes: 700_000})
	capture(t, acc)

	require.NoError(t, acc.SetCorners([]geometry.Point{{X: 0, Y: 0}, {X: 300, Y: 0}, {X: 300, Y: 400}, {X: 0, Y: 400}}, false))
	_, err := acc.Process(t.Context())
	assert.ErrorIs(t, err, apperrors.ErrBudgetExceeded)
	assert.Equal(t, StateAwaitingCorners, acc.State())

	require.NoError(t, acc.SetCorners([]geometry.Point{{X: 100, Y: 100}, {X: 250, Y: 100}, {X: 250, Y: 312}, {X: 100, Y: 312}}, false))
	_, err = acc.Process(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatePageReady, acc.State())
}

func TestAccumulatorSubscribeAfterAbort(t *testing.T) {
	acc, _ := newTestAccumulator(t, DefaultBudget())
	require.NoError(t, acc.Abort(t.Context()))

	events, cancel := acc.Subscribe(4)
	defer cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "late subscriber sees a closed stream")
	case <-time.After(time.Second):
		t.Fatal("event stream left open after the session ended")
	}
}
