package viewmodel

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cellbook/cellbook/internal/cell"
	"github.com/cellbook/cellbook/internal/document"
)

var (
	// ErrInvalidRange rejects index arguments outside the current
	// bounds before any mutation takes place.
	ErrInvalidRange = errors.New("invalid range")
	// ErrOutOfRange rejects an index that does not address an
	// existing cell.
	ErrOutOfRange = errors.New("index out of range")
)

// JoinDirection selects which neighbor a join absorbs.
type JoinDirection int

const (
	JoinAbove JoinDirection = iota
	JoinBelow
)

// ViewModel wraps one document 1:1, turning every structural operation
// into minimal splice events and invertible undo records. Structural
// edits are synchronous and atomic: the diff is computed, applied and
// published without interleaving.
//
// Policy rejections (effective editable=false) return (nil, nil): the
// absence of a splice event is the only observable outcome, so repeated
// input against a read-only document stays inert.
type ViewModel struct {
	doc    *document.Document
	events *Events
	logger *zap.Logger

	undoStack []operation
	redoStack []operation

	layout      map[string]*Layout
	decorations map[string]Decoration

	// focusFn reports the currently focused cell handle and selection
	// anchor; the list view registers it so operations can snapshot a
	// focus target for undo.
	focusFn func() (string, int)

	execCounter int
}

func New(doc *document.Document, logger *zap.Logger) *ViewModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewModel{
		doc:         doc,
		events:      newEvents(),
		logger:      logger.Named("viewmodel"),
		layout:      map[string]*Layout{},
		decorations: map[string]Decoration{},
	}
}

func (vm *ViewModel) Document() *document.Document { return vm.doc }

func (vm *ViewModel) Events() *Events { return vm.events }

// SetFocusReporter registers the callback used to snapshot the focus
// and selection target when an operation is recorded.
func (vm *ViewModel) SetFocusReporter(fn func() (string, int)) { vm.focusFn = fn }

// focusSnapshot is the focus/selection target recorded with an
// operation. A negative anchor means no selection was recorded.
type focusSnapshot struct {
	handle string
	anchor int
}

func (vm *ViewModel) snapshotFocus() focusSnapshot {
	if vm.focusFn == nil {
		return focusSnapshot{anchor: -1}
	}
	handle, anchor := vm.focusFn()
	return focusSnapshot{handle: handle, anchor: anchor}
}

// operation is one invertible entry of the undo stack.
type operation interface {
	undo(vm *ViewModel) error
	redo(vm *ViewModel) error
	focusTarget() focusSnapshot
}

func (vm *ViewModel) pushOp(op operation) {
	vm.undoStack = append(vm.undoStack, op)
	// Any fresh edit invalidates the redo stack.
	vm.redoStack = nil
}

// applySplices mutates the document and publishes one splice event for
// the whole operation. Splices are listed in document order.
func (vm *ViewModel) applySplices(splices []document.Splice, origin Origin) error {
	inserted := map[string]struct{}{}
	for _, s := range splices {
		for _, c := range s.Inserted {
			inserted[c.Handle()] = struct{}{}
		}
	}
	for _, s := range splices {
		if err := vm.doc.Apply(s); err != nil {
			return errors.WithStack(err)
		}
		for _, c := range s.Deleted {
			// A moved or split cell keeps its measured layout; only
			// cells leaving the document lose theirs.
			if _, kept := inserted[c.Handle()]; !kept {
				vm.dropLayout(c.Handle())
			}
		}
	}
	vm.events.emitSplice(SpliceEvent{Splices: splices, Origin: origin})
	return nil
}

// CreateCell inserts a new cell at index, clamped to [0, len]. A
// negative index or one greater than the length is rejected with
// ErrInvalidRange. Returns (nil, nil) when the document is not
// editable.
func (vm *ViewModel) CreateCell(index int, value, languageID string, kind cell.Kind, outputs []*cell.Output, metadata map[string]any) (*cell.Cell, error) {
	if index < 0 || index > vm.doc.Len() {
		return nil, errors.Wrapf(ErrInvalidRange, "create at %d of %d", index, vm.doc.Len())
	}
	if !vm.doc.Editable(nil) {
		return nil, nil
	}

	if languageID == "" && kind == cell.CodeKind {
		languageID = vm.doc.DefaultLanguage()
	}
	c := cell.New(kind, value, languageID)
	if metadata != nil {
		c.Metadata = metadata
	}
	c.Outputs = outputs

	op := &spliceOp{
		splices: []document.Splice{{Start: index, Inserted: []*cell.Cell{c}}},
		focus:   vm.snapshotFocus(),
	}
	if err := vm.applySplices(op.splices, OriginEdit); err != nil {
		return nil, err
	}
	vm.pushOp(op)
	return c, nil
}

// DeleteCell removes the cell at index. The removed cell's buffer and
// outputs survive only inside the undo record.
func (vm *ViewModel) DeleteCell(index int) error {
	c := vm.doc.CellAt(index)
	if c == nil {
		return errors.Wrapf(ErrOutOfRange, "delete at %d of %d", index, vm.doc.Len())
	}
	if !vm.doc.Editable(c) {
		return nil
	}

	op := &spliceOp{
		splices: []document.Splice{{Start: index, DeletedCount: 1, Deleted: []*cell.Cell{c}}},
		focus:   vm.snapshotFocus(),
	}
	if err := vm.applySplices(op.splices, OriginEdit); err != nil {
		return err
	}
	vm.pushOp(op)
	return nil
}

// MoveCell moves the cell at from so it ends up at index to. The change
// is published as an atomic delete-splice plus insert-splice pair so
// consumers can diff or animate two minimal edits; the cell keeps its
// handle, the two-splice framing is notification shape only.
func (vm *ViewModel) MoveCell(from, to int) error {
	n := vm.doc.Len()
	if from < 0 || from >= n || to < 0 || to >= n {
		return errors.Wrapf(ErrInvalidRange, "move %d -> %d of %d", from, to, n)
	}
	if from == to {
		return nil
	}
	c := vm.doc.CellAt(from)
	if !vm.doc.Editable(c) {
		return nil
	}

	op := &spliceOp{
		splices: []document.Splice{
			{Start: from, DeletedCount: 1, Deleted: []*cell.Cell{c}},
			{Start: to, Inserted: []*cell.Cell{c}},
		},
		focus: vm.snapshotFocus(),
	}
	if err := vm.applySplices(op.splices, OriginEdit); err != nil {
		return err
	}
	vm.pushOp(op)
	return nil
}

// SplitCell divides the cell at index into multiple cells at the given
// byte offsets. The first segment keeps the original handle; successors
// are new cells with the same language and kind. A single trailing
// newline is stripped from every non-final segment so that a join puts
// it back.
func (vm *ViewModel) SplitCell(index int, offsets []int) ([]*cell.Cell, error) {
	c := vm.doc.CellAt(index)
	if c == nil {
		return nil, errors.Wrapf(ErrOutOfRange, "split at %d of %d", index, vm.doc.Len())
	}
	if !vm.doc.Editable(c) {
		return nil, nil
	}
	if len(offsets) == 0 {
		return []*cell.Cell{c}, nil
	}

	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)
	for _, off := range sorted {
		if off < 0 || off > c.Len() {
			return nil, errors.Wrapf(ErrInvalidRange, "split offset %d of %d", off, c.Len())
		}
	}

	segments := make([]string, 0, len(sorted)+1)
	prev := 0
	for _, off := range sorted {
		segments = append(segments, c.Value[prev:off])
		prev = off
	}
	segments = append(segments, c.Value[prev:])
	for i := 0; i < len(segments)-1; i++ {
		segments[i] = strings.TrimSuffix(segments[i], "\n")
	}

	snapshot := c.Clone()
	pieces := make([]*cell.Cell, len(segments))
	c.Value = segments[0]
	pieces[0] = c
	for i := 1; i < len(segments); i++ {
		pieces[i] = cell.New(c.Kind(), segments[i], c.LanguageID)
	}

	op := &spliceOp{
		splices: []document.Splice{{
			Start:        index,
			DeletedCount: 1,
			Deleted:      []*cell.Cell{snapshot},
			Inserted:     pieces,
		}},
		focus: vm.snapshotFocus(),
	}
	if err := vm.applySplices(op.splices, OriginEdit); err != nil {
		return nil, err
	}
	vm.pushOp(op)
	return pieces, nil
}

// JoinCells concatenates the cell at index with its neighbor in the
// given direction, separated by a newline, and deletes the absorbed
// cell. The cell at index survives under its own handle. An optional
// kind constraint turns the join into a no-op when the neighbor's kind
// differs.
func (vm *ViewModel) JoinCells(index int, direction JoinDirection, kindConstraint ...cell.Kind) (*cell.Cell, error) {
	c := vm.doc.CellAt(index)
	if c == nil {
		return nil, errors.Wrapf(ErrOutOfRange, "join at %d of %d", index, vm.doc.Len())
	}

	neighborIdx := index + 1
	if direction == JoinAbove {
		neighborIdx = index - 1
	}
	neighbor := vm.doc.CellAt(neighborIdx)
	if neighbor == nil {
		return nil, nil
	}
	if len(kindConstraint) > 0 && neighbor.Kind() != kindConstraint[0] {
		return nil, nil
	}
	if !vm.doc.Editable(c) || !vm.doc.Editable(neighbor) {
		return nil, nil
	}

	survivorSnapshot := c.Clone()
	neighborSnapshot := neighbor.Clone()

	start := index
	deleted := []*cell.Cell{survivorSnapshot, neighborSnapshot}
	merged := c.Value + "\n" + neighbor.Value
	if direction == JoinAbove {
		start = neighborIdx
		deleted = []*cell.Cell{neighborSnapshot, survivorSnapshot}
		merged = neighbor.Value + "\n" + c.Value
	}
	c.Value = merged

	op := &spliceOp{
		splices: []document.Splice{{
			Start:        start,
			DeletedCount: 2,
			Deleted:      deleted,
			Inserted:     []*cell.Cell{c},
		}},
		focus: vm.snapshotFocus(),
	}
	if err := vm.applySplices(op.splices, OriginEdit); err != nil {
		return nil, err
	}
	vm.pushOp(op)
	return c, nil
}

// UpdateCellValue replaces the text of the cell at index.
func (vm *ViewModel) UpdateCellValue(index int, value string) error {
	c := vm.doc.CellAt(index)
	if c == nil {
		return errors.Wrapf(ErrOutOfRange, "update at %d of %d", index, vm.doc.Len())
	}
	if !vm.doc.Editable(c) {
		return nil
	}
	if c.Value == value {
		return nil
	}

	op := &valueOp{
		handle:   c.Handle(),
		oldValue: c.Value,
		newValue: value,
		focus:    vm.snapshotFocus(),
	}
	c.Value = value
	vm.InvalidateLayout(c.Handle())
	vm.events.emitContent(ContentEvent{Handle: c.Handle(), Index: index})
	vm.pushOp(op)
	return nil
}

// UpdateCellMetadata applies a key/value patch to the cell's metadata.
// A nil value deletes the key.
func (vm *ViewModel) UpdateCellMetadata(index int, patch map[string]any) error {
	c := vm.doc.CellAt(index)
	if c == nil {
		return errors.Wrapf(ErrOutOfRange, "metadata at %d of %d", index, vm.doc.Len())
	}

	op := &metadataOp{
		handle: c.Handle(),
		old:    cloneMeta(c.Metadata),
		focus:  vm.snapshotFocus(),
	}
	for k, v := range patch {
		if v == nil {
			delete(c.Metadata, k)
		} else {
			c.Metadata[k] = v
		}
	}
	op.updated = cloneMeta(c.Metadata)

	vm.InvalidateLayout(c.Handle())
	vm.events.emitMetadata(MetadataEvent{Handle: c.Handle()})
	vm.pushOp(op)
	return nil
}

// SetDocumentMetadata sets one document-level metadata default.
func (vm *ViewModel) SetDocumentMetadata(key string, value any) {
	vm.doc.Metadata[key] = value
	vm.events.emitMetadata(MetadataEvent{})
}

// ReplaceCellOutputs swaps the cell's outputs. Output changes come from
// execution, not user edits, so they are not undoable.
func (vm *ViewModel) ReplaceCellOutputs(index int, outputs []*cell.Output) error {
	c := vm.doc.CellAt(index)
	if c == nil {
		return errors.Wrapf(ErrOutOfRange, "outputs at %d of %d", index, vm.doc.Len())
	}
	c.Outputs = outputs
	vm.InvalidateLayout(c.Handle())
	vm.events.emitOutputs(OutputsEvent{Handle: c.Handle(), Index: index})
	return nil
}

// SetRunState transitions a cell's run state and stamps the execution
// order counter when the cell starts running.
func (vm *ViewModel) SetRunState(index int, state cell.RunState) error {
	c := vm.doc.CellAt(index)
	if c == nil {
		return errors.Wrapf(ErrOutOfRange, "run state at %d of %d", index, vm.doc.Len())
	}
	c.RunState = state
	if state == cell.RunStateRunning {
		vm.execCounter++
		c.ExecutionOrder = vm.execCounter
	}
	vm.events.emitRunState(RunStateEvent{Handle: c.Handle(), Index: index})
	return nil
}

// CanUndo reports whether the undo stack is non-empty.
func (vm *ViewModel) CanUndo() bool { return len(vm.undoStack) > 0 }

// CanRedo reports whether the redo stack is non-empty.
func (vm *ViewModel) CanRedo() bool { return len(vm.redoStack) > 0 }

// Undo reverts the most recent operation and asks the rendering side to
// restore the focus target recorded when the operation was made.
func (vm *ViewModel) Undo() error {
	if len(vm.undoStack) == 0 {
		return nil
	}
	op := vm.undoStack[len(vm.undoStack)-1]
	vm.undoStack = vm.undoStack[:len(vm.undoStack)-1]
	if err := op.undo(vm); err != nil {
		return err
	}
	vm.redoStack = append(vm.redoStack, op)
	if t := op.focusTarget(); t.handle != "" || t.anchor >= 0 {
		vm.events.emitFocus(FocusEvent{Handle: t.handle, Anchor: t.anchor})
	}
	return nil
}

// Redo replays the most recently undone operation.
func (vm *ViewModel) Redo() error {
	if len(vm.redoStack) == 0 {
		return nil
	}
	op := vm.redoStack[len(vm.redoStack)-1]
	vm.redoStack = vm.redoStack[:len(vm.redoStack)-1]
	if err := op.redo(vm); err != nil {
		return err
	}
	vm.undoStack = append(vm.undoStack, op)
	return nil
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
