package viewmodel

import (
	"sync"

	"github.com/cellbook/cellbook/internal/document"
)

// Origin distinguishes fresh edits from history replay. Fresh edits
// clear the redo stack; replayed ones do not.
type Origin int

const (
	OriginEdit Origin = iota
	OriginUndo
	OriginRedo
)

// SpliceEvent carries the splices of one logical operation, in document
// order. Consumers must apply them in slice order.
type SpliceEvent struct {
	Splices []document.Splice
	Origin  Origin
}

// ContentEvent signals an in-place value change of one cell.
type ContentEvent struct {
	Handle string
	Index  int
}

// MetadataEvent signals a metadata change. An empty Handle means the
// document-level metadata changed.
type MetadataEvent struct {
	Handle string
}

// OutputsEvent signals that a cell's outputs were replaced.
type OutputsEvent struct {
	Handle string
	Index  int
}

// RunStateEvent signals a run-state transition of a code cell.
type RunStateEvent struct {
	Handle string
	Index  int
}

// FocusEvent asks the rendering side to move focus to a cell, e.g. when
// undo restores the focus target recorded with the undone operation. A
// negative Anchor leaves the selection anchor untouched.
type FocusEvent struct {
	Handle string
	Anchor int
}

// DecorationsEvent reports an atomic decoration change set.
type DecorationsEvent struct {
	Added   []string
	Removed []string
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

type channel[T any] struct {
	subs []subscriber[T]
}

func (c *channel[T]) add(id int, fn func(T)) {
	c.subs = append(c.subs, subscriber[T]{id: id, fn: fn})
}

func (c *channel[T]) remove(id int) {
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *channel[T]) emit(ev T) {
	// Dispatch synchronously in subscription order so splice events
	// reach every consumer in emission order.
	for _, s := range c.subs {
		s.fn(ev)
	}
}

// Events is the typed event bus of one view model instance. Components
// subscribe only to the channels they need; dispatch is synchronous on
// the editing loop.
type Events struct {
	mu     sync.Mutex
	nextID int

	splice      channel[SpliceEvent]
	content     channel[ContentEvent]
	metadata    channel[MetadataEvent]
	outputs     channel[OutputsEvent]
	runState    channel[RunStateEvent]
	focus       channel[FocusEvent]
	decorations channel[DecorationsEvent]
}

func newEvents() *Events {
	return &Events{}
}

func (e *Events) allocID() int {
	e.nextID++
	return e.nextID
}

func (e *Events) OnSplice(fn func(SpliceEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.splice.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.splice.remove(id)
	}
}

func (e *Events) OnContent(fn func(ContentEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.content.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.content.remove(id)
	}
}

func (e *Events) OnMetadata(fn func(MetadataEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.metadata.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.metadata.remove(id)
	}
}

func (e *Events) OnOutputs(fn func(OutputsEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.outputs.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.outputs.remove(id)
	}
}

func (e *Events) OnRunState(fn func(RunStateEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.runState.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.runState.remove(id)
	}
}

func (e *Events) OnFocus(fn func(FocusEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.focus.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.focus.remove(id)
	}
}

func (e *Events) OnDecorations(fn func(DecorationsEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.decorations.add(id, fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.decorations.remove(id)
	}
}

func (e *Events) emitSplice(ev SpliceEvent)           { e.splice.emit(ev) }
func (e *Events) emitContent(ev ContentEvent)         { e.content.emit(ev) }
func (e *Events) emitMetadata(ev MetadataEvent)       { e.metadata.emit(ev) }
func (e *Events) emitOutputs(ev OutputsEvent)         { e.outputs.emit(ev) }
func (e *Events) emitRunState(ev RunStateEvent)       { e.runState.emit(ev) }
func (e *Events) emitFocus(ev FocusEvent)             { e.focus.emit(ev) }
func (e *Events) emitDecorations(ev DecorationsEvent) { e.decorations.emit(ev) }
