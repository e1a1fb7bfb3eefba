package listview

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cellbook/cellbook/internal/viewmodel"
)

const (
	DefaultCellHeight = 60
	DefaultOverscan   = 2
)

// Options tunes the virtualization behavior.
type Options struct {
	// DefaultCellHeight is the estimate used before a cell reports an
	// authoritative measured height.
	DefaultCellHeight int
	// Overscan is the number of extra cells rendered on each side of
	// the viewport.
	Overscan int
	// ViewportHeight is the initial viewport height in pixels.
	ViewportHeight int
}

// ScrollEvent reports a scroll-top change. Delta is the difference to
// the previous position; consumers syncing an overlay (the output
// surface) apply the negated delta.
type ScrollEvent struct {
	Delta int
	Top   int
}

// Row is one rendered window entry.
type Row struct {
	Index  int
	Handle string
	Top    int
	Height int
}

// List renders a window of visible cells over a view model, computing
// variable per-cell heights against a scrollable surface. It owns the
// focused index and the selection anchor.
type List struct {
	vm     *viewmodel.ViewModel
	logger *zap.Logger

	defaultHeight  int
	overscan       int
	viewportHeight int
	scrollTop      int

	hidden []Range

	focusHandle string
	focusIdx    int
	anchorIdx   int

	scrollMu   sync.Mutex
	scrollSubs []func(ScrollEvent)

	cancelSplice func()
	cancelFocus  func()
}

func New(vm *viewmodel.ViewModel, opts Options, logger *zap.Logger) *List {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultCellHeight <= 0 {
		opts.DefaultCellHeight = DefaultCellHeight
	}
	if opts.Overscan < 0 {
		opts.Overscan = DefaultOverscan
	}

	l := &List{
		vm:             vm,
		logger:         logger.Named("listview"),
		defaultHeight:  opts.DefaultCellHeight,
		overscan:       opts.Overscan,
		viewportHeight: opts.ViewportHeight,
		focusIdx:       -1,
		anchorIdx:      -1,
	}
	l.cancelSplice = vm.Events().OnSplice(l.handleSplice)
	l.cancelFocus = vm.Events().OnFocus(func(ev viewmodel.FocusEvent) {
		if idx := vm.Document().IndexOfHandle(ev.Handle); idx >= 0 {
			l.SetFocus(idx)
		}
		if ev.Anchor >= 0 {
			l.SetCellSelection(ev.Anchor)
		}
	})
	vm.SetFocusReporter(func() (string, int) { return l.focusHandle, l.anchorIdx })
	return l
}

// Detach drops the list's subscriptions.
func (l *List) Detach() {
	if l.cancelSplice != nil {
		l.cancelSplice()
	}
	if l.cancelFocus != nil {
		l.cancelFocus()
	}
}

// OnScroll subscribes to scroll-top changes.
func (l *List) OnScroll(fn func(ScrollEvent)) (cancel func()) {
	l.scrollMu.Lock()
	defer l.scrollMu.Unlock()
	l.scrollSubs = append(l.scrollSubs, fn)
	idx := len(l.scrollSubs) - 1
	return func() {
		l.scrollMu.Lock()
		defer l.scrollMu.Unlock()
		l.scrollSubs[idx] = nil
	}
}

func (l *List) emitScroll(ev ScrollEvent) {
	l.scrollMu.Lock()
	subs := append([]func(ScrollEvent){}, l.scrollSubs...)
	l.scrollMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

func (l *List) isHidden(index int) bool {
	for _, r := range l.hidden {
		if r.Contains(index) {
			return true
		}
	}
	return false
}

// HeightAt returns the effective height of the cell at index. Hidden
// cells contribute nothing to rendering or height sums.
func (l *List) HeightAt(index int) int {
	if l.isHidden(index) {
		return 0
	}
	c := l.vm.Document().CellAt(index)
	if c == nil {
		return 0
	}
	return l.vm.Layout(c.Handle(), l.defaultHeight).Height()
}

// OffsetAt returns the top offset of the cell at index.
func (l *List) OffsetAt(index int) int {
	top := 0
	for i := 0; i < index; i++ {
		top += l.HeightAt(i)
	}
	return top
}

// TotalHeight is the scrollable height of the whole list.
func (l *List) TotalHeight() int {
	return l.OffsetAt(l.vm.Document().Len())
}

func (l *List) maxScrollTop() int {
	m := l.TotalHeight() - l.viewportHeight
	if m < 0 {
		return 0
	}
	return m
}

// SetViewportHeight resizes the viewport.
func (l *List) SetViewportHeight(h int) {
	l.viewportHeight = h
	l.scrollToInternal(l.scrollTop)
}

func (l *List) ScrollTop() int { return l.scrollTop }

func (l *List) ViewportHeight() int { return l.viewportHeight }

// ScrollTo moves the viewport to the given scroll top, clamped to the
// scrollable range.
func (l *List) ScrollTo(top int) {
	l.scrollToInternal(top)
}

func (l *List) scrollToInternal(top int) {
	if top < 0 {
		top = 0
	}
	if m := l.maxScrollTop(); top > m {
		top = m
	}
	if top == l.scrollTop {
		return
	}
	delta := top - l.scrollTop
	l.scrollTop = top
	l.emitScroll(ScrollEvent{Delta: delta, Top: top})
}

// VisibleRange returns the first and last (inclusive) cell indexes
// intersecting the viewport, extended by the overscan. Returns
// (0, -1) for an empty or fully hidden list.
func (l *List) VisibleRange() (int, int) {
	n := l.vm.Document().Len()
	first, last := -1, -1
	top := 0
	for i := 0; i < n; i++ {
		h := l.HeightAt(i)
		if h == 0 {
			top += h
			continue
		}
		if top+h > l.scrollTop && top < l.scrollTop+l.viewportHeight {
			if first < 0 {
				first = i
			}
			last = i
		}
		top += h
	}
	if first < 0 {
		return 0, -1
	}
	for i := 0; i < l.overscan; i++ {
		if first > 0 {
			first--
		}
		if last < n-1 {
			last++
		}
	}
	return first, last
}

// Window returns the rows to render for the current viewport.
func (l *List) Window() []Row {
	first, last := l.VisibleRange()
	var rows []Row
	for i := first; i <= last; i++ {
		if l.isHidden(i) {
			continue
		}
		c := l.vm.Document().CellAt(i)
		if c == nil {
			continue
		}
		rows = append(rows, Row{
			Index:  i,
			Handle: c.Handle(),
			Top:    l.OffsetAt(i),
			Height: l.HeightAt(i),
		})
	}
	return rows
}

// NeedsMeasure lists the window rows still rendered at their estimated
// height. The renderer measures them and reports back through
// UpdateMeasuredHeight.
func (l *List) NeedsMeasure() []Row {
	var out []Row
	for _, row := range l.Window() {
		if !l.vm.Layout(row.Handle, l.defaultHeight).HasMeasured {
			out = append(out, row)
		}
	}
	return out
}

// UpdateMeasuredHeight records an authoritative height for the cell at
// index. When the measured cell sits entirely above the viewport the
// scroll top shifts by the height delta so the content on screen does
// not visually jump.
func (l *List) UpdateMeasuredHeight(index, height int) {
	c := l.vm.Document().CellAt(index)
	if c == nil {
		return
	}
	oldTop := l.OffsetAt(index)
	oldHeight := l.HeightAt(index)
	delta := l.vm.SetMeasuredHeight(c.Handle(), height, l.defaultHeight)
	if delta == 0 {
		return
	}
	if oldTop+oldHeight <= l.scrollTop {
		top := l.scrollTop + delta
		if top < 0 {
			top = 0
		}
		l.scrollTop = top
		l.emitScroll(ScrollEvent{Delta: delta, Top: top})
	}
}

// SetHiddenAreas replaces the set of index ranges excluded from
// rendering and height sums. Ranges are normalized before storage.
func (l *List) SetHiddenAreas(ranges []Range) {
	l.hidden = NormalizeRanges(ranges)
	l.scrollToInternal(l.scrollTop)
}

func (l *List) HiddenAreas() []Range {
	return append([]Range(nil), l.hidden...)
}

// RevealInView scrolls just enough to bring the element into the
// viewport; a no-op when it is already fully visible.
func (l *List) RevealInView(index int) {
	top := l.OffsetAt(index)
	h := l.HeightAt(index)
	switch {
	case top < l.scrollTop:
		l.scrollToInternal(top)
	case top+h > l.scrollTop+l.viewportHeight:
		l.scrollToInternal(top + h - l.viewportHeight)
	}
}

// RevealInCenter scrolls the element to the vertical center of the
// viewport.
func (l *List) RevealInCenter(index int) {
	top := l.OffsetAt(index)
	h := l.HeightAt(index)
	l.scrollToInternal(top + h/2 - l.viewportHeight/2)
}

// RevealInCenterIfOutsideViewport behaves like RevealInCenter unless
// the element's rectangle already intersects the viewport.
func (l *List) RevealInCenterIfOutsideViewport(index int) {
	top := l.OffsetAt(index)
	h := l.HeightAt(index)
	if top+h > l.scrollTop && top < l.scrollTop+l.viewportHeight {
		return
	}
	l.RevealInCenter(index)
}

// Focus returns the focused index, -1 when nothing is focused.
func (l *List) Focus() int { return l.focusIdx }

// FocusHandle returns the handle of the focused cell.
func (l *List) FocusHandle() string { return l.focusHandle }

// SetFocus moves focus to the cell at index.
func (l *List) SetFocus(index int) {
	c := l.vm.Document().CellAt(index)
	if c == nil {
		l.focusIdx = -1
		l.focusHandle = ""
		return
	}
	l.focusIdx = index
	l.focusHandle = c.Handle()
}

// SelectElement focuses the element and resets the selection anchor to
// it.
func (l *List) SelectElement(index int) {
	l.SetFocus(index)
	l.anchorIdx = l.focusIdx
}

// SetCellSelection moves the selection anchor without moving focus.
func (l *List) SetCellSelection(index int) {
	if l.vm.Document().CellAt(index) != nil {
		l.anchorIdx = index
	}
}

// SelectionAnchor returns the selection anchor index, -1 when unset.
func (l *List) SelectionAnchor() int { return l.anchorIdx }

// handleSplice keeps hidden ranges, focus and selection consistent with
// structural edits. Focus tracks the cell handle, so a moved cell keeps
// focus at its new index; when the focused cell is removed, focus
// retargets to the nearest remaining cell at or after the old index,
// falling back to the last cell.
func (l *List) handleSplice(ev viewmodel.SpliceEvent) {
	for _, s := range ev.Splices {
		l.hidden = shiftRanges(l.hidden, s.Start, s.DeletedCount, len(s.Inserted))
	}

	doc := l.vm.Document()
	n := doc.Len()
	if l.focusHandle != "" {
		if idx := doc.IndexOfHandle(l.focusHandle); idx >= 0 {
			l.focusIdx = idx
		} else {
			target := l.focusIdx
			if target >= n {
				target = n - 1
			}
			l.SetFocus(target)
		}
	}
	if l.anchorIdx >= n {
		l.anchorIdx = n - 1
	}
	l.scrollToInternal(l.scrollTop)
}

// VisibleOutputTops returns the absolute top offset of every currently
// visible output-bearing cell, keyed by handle. The controller ships it
// with each scroll sync to the output surface.
func (l *List) VisibleOutputTops() map[string]int {
	out := map[string]int{}
	first, last := l.VisibleRange()
	for i := first; i <= last; i++ {
		c := l.vm.Document().CellAt(i)
		if c == nil || len(c.Outputs) == 0 || l.isHidden(i) {
			continue
		}
		out[c.Handle()] = l.OffsetAt(i)
	}
	return out
}
