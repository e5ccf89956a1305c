package session

import (
	"context"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/filter"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
	"github.com/gmsas95/ddtscan/internal/metrics"
)

// PageRef points at an accumulated page held in the PageStore.
type PageRef struct {
	Index         int               `json:"index"`
	Key           string            `json:"-"`
	Format        domain.PageFormat `json:"format"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	DPI           float64           `json:"dpi"`
	AspectWarning bool              `json:"aspect_warning"`
	Size          int64             `json:"size"`
}

type CaptureInfo struct {
	Source        domain.SourceKind `json:"source"`
	CapturedAt    time.Time         `json:"captured_at"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	DisplayWidth  int               `json:"display_width,omitempty"`
	DisplayHeight int               `json:"display_height,omitempty"`
}

type ReadyInfo struct {
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	DPI           float64     `json:"dpi"`
	AspectWarning bool        `json:"aspect_warning"`
	Rung          filter.Rung `json:"rung"`
	Warnings      []string    `json:"warnings,omitempty"`
}

type Status struct {
	ID            string           `json:"id"`
	FolderID      string           `json:"folder_id,omitempty"`
	State         State            `json:"state"`
	Pages         []PageRef        `json:"pages"`
	Corners       []geometry.Point `json:"corners"`
	Capture       *CaptureInfo     `json:"capture,omitempty"`
	Ready         *ReadyInfo       `json:"ready,omitempty"`
	RetainedBytes int64            `json:"retained_bytes"`
	CreatedAt     time.Time        `json:"created_at"`
	LastActivity  time.Time        `json:"last_activity"`
}

// Accumulator is the state machine of one capture session. Pages are only
// ever appended until the session finalizes; cancelling drops the page in
// flight and aborting drops everything.
type Accumulator struct {
	id       string
	folderID string
	proc     *Processor
	store    PageStore
	budget   Budget
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      State
	capture    *CaptureInfo
	captureImg image.Image
	corners    []geometry.Point
	ready      *Outcome
	pages      []PageRef
	retained   int64
	live       int64
	gen        uint64
	cancel     context.CancelFunc
	created    time.Time
	lastActive time.Time

	events broadcaster
}

type Options struct {
	ID       string
	FolderID string
	Budget   Budget
	Logger   *zap.Logger
}

func NewAccumulator(proc *Processor, store PageStore, opts Options) *Accumulator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Budget == (Budget{}) {
		opts.Budget = DefaultBudget()
	}
	now := time.Now()
	return &Accumulator{
		id:         opts.ID,
		folderID:   opts.FolderID,
		proc:       proc,
		store:      store,
		budget:     opts.Budget,
		logger:     opts.Logger.With(zap.String("session_id", opts.ID)),
		now:        time.Now,
		state:      StateIdle,
		created:    now,
		lastActive: now,
	}
}

func (a *Accumulator) ID() string       { return a.id }
func (a *Accumulator) FolderID() string { return a.folderID }

func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Accumulator) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActive
}

// Subscribe streams session events until the returned cancel is called or
// the session ends.
func (a *Accumulator) Subscribe(buffer int) (<-chan Event, func()) {
	return a.events.subscribe(buffer)
}

func (a *Accumulator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateIdle); err != nil {
		return err
	}
	a.transition(StateCapturing, EventStateChanged, "")
	return nil
}

// Capture decodes a photo and waits for corners. A new capture replaces an
// unprocessed one; accumulated pages are not affected.
func (a *Accumulator) Capture(ctx context.Context, raw domain.RawCapture) error {
	a.mu.Lock()
	if err := a.guard(StateIdle, StateCapturing, StateAwaitingCorners); err != nil {
		a.mu.Unlock()
		return err
	}
	retained := a.retained
	a.mu.Unlock()

	limits := a.proc.Limits()
	size, _, err := imageio.Bounds(raw.Data, limits)
	if err != nil {
		return err
	}
	live := geometry.BufferBytes(size.Width, size.Height)
	if err := a.budget.checkBytes(retained + live); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := imageio.Decode(raw.Data, limits)
	if err != nil {
		return err
	}
	b := img.Bounds()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateIdle, StateCapturing, StateAwaitingCorners); err != nil {
		return err
	}

	if raw.CapturedAt.IsZero() {
		raw.CapturedAt = a.now()
	}
	if raw.Source == "" {
		raw.Source = domain.SourceFile
	}
	a.discardInFlight()
	a.capture = &CaptureInfo{
		Source:        raw.Source,
		CapturedAt:    raw.CapturedAt,
		Width:         b.Dx(),
		Height:        b.Dy(),
		DisplayWidth:  raw.DisplayWidth,
		DisplayHeight: raw.DisplayHeight,
	}
	a.captureImg = img
	a.live = geometry.BufferBytes(b.Dx(), b.Dy())

	metrics.RecordCapture(string(raw.Source))
	a.logger.Debug("Capture accepted",
		zap.String("source", string(raw.Source)),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()))
	a.transition(StateAwaitingCorners, EventCaptured, "")
	return nil
}

// AddCorner records one click given in the capture's display space and
// returns the number of corners selected so far.
func (a *Accumulator) AddCorner(p geometry.Point) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateAwaitingCorners); err != nil {
		return len(a.corners), err
	}
	if len(a.corners) >= 4 {
		return len(a.corners), apperrors.ErrCornerCount.Withf("already have 4 corners")
	}
	a.corners = append(a.corners, a.toNative([]geometry.Point{p})...)
	a.touch()
	a.emit(EventCornerAdded, "")
	return len(a.corners), nil
}

// SetCorners replaces the selection. display selects whether the points are
// in display space or already in native pixels.
func (a *Accumulator) SetCorners(points []geometry.Point, display bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateAwaitingCorners); err != nil {
		return err
	}
	if len(points) != 4 {
		return apperrors.ErrCornerCount.Withf("got %d", len(points))
	}
	if display {
		points = a.toNative(points)
	}
	a.corners = append([]geometry.Point(nil), points...)
	a.touch()
	a.emit(EventCornerAdded, "")
	return nil
}

func (a *Accumulator) ClearCorners() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateAwaitingCorners); err != nil {
		return err
	}
	a.corners = nil
	a.touch()
	return nil
}

// SuggestCorners runs a detector over the current capture. The result is a
// proposal in native pixels; it is not selected.
func (a *Accumulator) SuggestCorners(ctx context.Context, det geometry.Detector) ([]geometry.Point, error) {
	a.mu.Lock()
	if err := a.guard(StateAwaitingCorners); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	img, hint := a.captureImg, append([]geometry.Point(nil), a.corners...)
	a.mu.Unlock()

	return det.Detect(ctx, img, hint)
}

// Process corrects and filters the capture with the selected corners. On
// failure the corners are cleared and the capture is kept for a retry.
func (a *Accumulator) Process(ctx context.Context) (*Outcome, error) {
	a.mu.Lock()
	if a.state == StateCorrecting {
		a.mu.Unlock()
		return nil, apperrors.ErrSessionBusy
	}
	if err := a.guard(StateAwaitingCorners); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if len(a.corners) != 4 {
		n := len(a.corners)
		a.mu.Unlock()
		return nil, apperrors.ErrCornerCount.Withf("got %d", n)
	}

	if err := a.checkCorrection(); err != nil {
		a.corners = nil
		a.touch()
		a.mu.Unlock()
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.gen++
	gen := a.gen
	img := a.captureImg
	corners := append([]geometry.Point(nil), a.corners...)
	a.transition(StateCorrecting, EventStateChanged, "")
	a.mu.Unlock()

	out, err := a.proc.Correct(pctx, img, corners)
	cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.state != StateCorrecting {
		if a.state == StateAborted {
			return nil, apperrors.ErrSessionAborted
		}
		return nil, apperrors.ErrInvalidState.Withf("page discarded during correction")
	}
	a.cancel = nil

	if err != nil {
		a.corners = nil
		a.logger.Info("Page correction failed", zap.Error(err))
		a.state = StateAwaitingCorners
		a.touch()
		a.emitCode(EventFailed, err.Error(), apperrors.GetCode(err))
		return nil, err
	}

	a.ready = out
	a.captureImg = nil
	a.live = 0
	a.transition(StatePageReady, EventPageReady, "")
	for _, w := range out.Warnings {
		a.emitCode(EventDegraded, w.Error(), apperrors.GetCode(w))
	}
	return out, nil
}

// checkCorrection rejects corners outside the capture and charges the
// corrected buffer to the budget before any of it is allocated. Corners that
// do not form a quadrilateral are left to the engine to report.
func (a *Accumulator) checkCorrection() error {
	b := a.captureImg.Bounds()
	if err := geometry.CheckCorners(a.corners, geometry.Size{Width: b.Dx(), Height: b.Dy()}); err != nil {
		return err
	}
	quad, err := geometry.Order(a.corners)
	if err != nil {
		return nil
	}
	size := quad.OutputSize()
	return a.budget.checkBytes(a.retained + a.live + geometry.BufferBytes(size.Width, size.Height))
}

// Ready returns the corrected page awaiting confirmation, if any.
func (a *Accumulator) Ready() (*domain.Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready == nil {
		return nil, false
	}
	p := a.ready.Page
	return &p, true
}

// AddNextPage commits the ready page and returns to capturing.
func (a *Accumulator) AddNextPage(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StatePageReady); err != nil {
		return err
	}
	if err := a.appendReady(ctx); err != nil {
		return err
	}
	a.transition(StateCapturing, EventPageAdded, "")
	return nil
}

// Finish commits the ready page, if any, and closes the page set. An
// unprocessed capture is dropped. With no pages the call fails and the
// state is left alone.
func (a *Accumulator) Finish(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateCapturing, StateAwaitingCorners, StatePageReady); err != nil {
		return err
	}
	if a.state != StatePageReady && len(a.pages) == 0 {
		return apperrors.ErrEmptyPageSet
	}
	if a.state == StatePageReady {
		if err := a.appendReady(ctx); err != nil {
			return err
		}
	}
	a.discardInFlight()
	a.transition(StateFinalizing, EventFinalizing, "")
	a.logger.Info("Capture session finalized", zap.Int("pages", len(a.pages)))
	return nil
}

// CancelPage drops the page in flight (capture, corners, ready page or a
// running correction). Accumulated pages survive.
func (a *Accumulator) CancelPage() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(StateCapturing, StateAwaitingCorners, StateCorrecting, StatePageReady); err != nil {
		return err
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.gen++
	a.discardInFlight()
	a.transition(StateCapturing, EventStateChanged, "page cancelled")
	return nil
}

// Abort discards the whole session including accumulated pages.
func (a *Accumulator) Abort(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateAborted {
		a.mu.Unlock()
		return nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.gen++
	a.discardInFlight()
	a.pages = nil
	a.retained = 0
	a.transition(StateAborted, EventAborted, "")
	a.mu.Unlock()

	a.events.closeAll()
	a.logger.Info("Capture session aborted")
	return a.store.DeletePages(ctx, pagePrefix(a.id))
}

// Release frees the spilled pages of a finalized session once they have
// been persisted elsewhere.
func (a *Accumulator) Release(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateFinalizing {
		a.mu.Unlock()
		return apperrors.ErrInvalidState.Withf("release requires a finalized session, have %s", a.state)
	}
	a.mu.Unlock()

	a.events.closeAll()
	return a.store.DeletePages(ctx, pagePrefix(a.id))
}

// Pages loads the accumulated pages in capture order.
func (a *Accumulator) Pages(ctx context.Context) (domain.PageSet, error) {
	a.mu.Lock()
	if a.state == StateAborted {
		a.mu.Unlock()
		return nil, apperrors.ErrSessionAborted
	}
	refs := append([]PageRef(nil), a.pages...)
	a.mu.Unlock()

	out := make(domain.PageSet, 0, len(refs))
	for _, ref := range refs {
		data, err := a.store.GetPage(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Page{
			Data:          data,
			Format:        ref.Format,
			Width:         ref.Width,
			Height:        ref.Height,
			DPI:           ref.DPI,
			AspectWarning: ref.AspectWarning,
		})
	}
	return out, nil
}

func (a *Accumulator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Status{
		ID:            a.id,
		FolderID:      a.folderID,
		State:         a.state,
		Pages:         append([]PageRef{}, a.pages...),
		Corners:       append([]geometry.Point{}, a.corners...),
		RetainedBytes: a.retained + a.live,
		CreatedAt:     a.created,
		LastActivity:  a.lastActive,
	}
	if a.capture != nil {
		c := *a.capture
		s.Capture = &c
	}
	if a.ready != nil {
		r := &ReadyInfo{
			Width:         a.ready.Page.Width,
			Height:        a.ready.Page.Height,
			DPI:           a.ready.Page.DPI,
			AspectWarning: a.ready.Page.AspectWarning,
			Rung:          a.ready.Rung,
		}
		for _, w := range a.ready.Warnings {
			r.Warnings = append(r.Warnings, w.Error())
		}
		s.Ready = r
	}
	return s
}

func (a *Accumulator) appendReady(ctx context.Context) error {
	page := a.ready.Page
	if err := a.budget.checkPages(len(a.pages) + 1); err != nil {
		return err
	}
	size := int64(len(page.Data))
	if err := a.budget.checkBytes(a.retained + size); err != nil {
		return err
	}

	key := pageKey(a.id, len(a.pages))
	if err := a.store.PutPage(ctx, key, page.Data); err != nil {
		return apperrors.ErrInternal.With(err)
	}
	a.pages = append(a.pages, PageRef{
		Index:         len(a.pages),
		Key:           key,
		Format:        page.Format,
		Width:         page.Width,
		Height:        page.Height,
		DPI:           page.DPI,
		AspectWarning: page.AspectWarning,
		Size:          size,
	})
	a.retained += size
	a.discardInFlight()
	return nil
}

func (a *Accumulator) discardInFlight() {
	a.capture = nil
	a.captureImg = nil
	a.corners = nil
	a.ready = nil
	a.live = 0
}

func (a *Accumulator) toNative(points []geometry.Point) []geometry.Point {
	if a.capture == nil {
		return points
	}
	display := geometry.Size{Width: a.capture.DisplayWidth, Height: a.capture.DisplayHeight}
	native := geometry.Size{Width: a.capture.Width, Height: a.capture.Height}
	return geometry.ScaleToNative(points, display, native)
}

func (a *Accumulator) guard(allowed ...State) error {
	switch a.state {
	case StateAborted:
		return apperrors.ErrSessionAborted
	case StateFinalizing:
		return apperrors.ErrInvalidState.Withf("session already finalized")
	}
	for _, s := range allowed {
		if a.state == s {
			return nil
		}
	}
	return apperrors.ErrInvalidState.Withf("not allowed while %s", a.state)
}

func (a *Accumulator) transition(to State, ev EventType, msg string) {
	a.state = to
	a.touch()
	a.emit(ev, msg)
}

func (a *Accumulator) touch() {
	a.lastActive = a.now()
}

func (a *Accumulator) emit(t EventType, msg string) {
	a.emitCode(t, msg, "")
}

func (a *Accumulator) emitCode(t EventType, msg, code string) {
	a.events.publish(Event{
		SessionID: a.id,
		Type:      t,
		State:     a.state,
		Pages:     len(a.pages),
		Message:   msg,
		Code:      code,
		At:        a.now(),
	})
}
