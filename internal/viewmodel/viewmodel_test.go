package viewmodel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellbook/cellbook/internal/cell"
	"github.com/cellbook/cellbook/internal/document"
)

func newTestVM(t *testing.T, values ...string) *ViewModel {
	t.Helper()
	vm := New(document.New(nil, []string{"sh"}), nil)
	for i, v := range values {
		_, err := vm.CreateCell(i, v, "sh", cell.CodeKind, nil, nil)
		require.NoError(t, err)
	}
	// The seed cells are setup, not part of the scenario under test.
	vm.undoStack = nil
	return vm
}

func values(vm *ViewModel) []string {
	out := make([]string, 0, vm.Document().Len())
	for _, c := range vm.Document().Cells() {
		out = append(out, c.Value)
	}
	return out
}

func TestCreateCell(t *testing.T) {
	vm := newTestVM(t)

	var events []SpliceEvent
	vm.Events().OnSplice(func(ev SpliceEvent) { events = append(events, ev) })

	c, err := vm.CreateCell(0, "echo hi", "", cell.CodeKind, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "sh", c.LanguageID, "empty language falls back to the document default")
	assert.Equal(t, 1, vm.Document().Len())

	require.Len(t, events, 1)
	require.Len(t, events[0].Splices, 1)
	assert.Equal(t, 0, events[0].Splices[0].Start)
	assert.Equal(t, 0, events[0].Splices[0].DeletedCount)
	require.Len(t, events[0].Splices[0].Inserted, 1)
	assert.Same(t, c, events[0].Splices[0].Inserted[0])
}

func TestCreateCellInvalidRange(t *testing.T) {
	vm := newTestVM(t, "a")

	_, err := vm.CreateCell(-1, "", "", cell.CodeKind, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = vm.CreateCell(2, "", "", cell.CodeKind, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)

	// Index equal to the length appends.
	c, err := vm.CreateCell(1, "b", "", cell.MarkupKind, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []string{"a", "b"}, values(vm))
}

func TestDeleteCell(t *testing.T) {
	vm := newTestVM(t, "a", "b", "c")

	require.NoError(t, vm.DeleteCell(1))
	assert.Equal(t, []string{"a", "c"}, values(vm))

	err := vm.DeleteCell(5)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMoveCell(t *testing.T) {
	vm := newTestVM(t, "a", "b", "c")

	var events []SpliceEvent
	vm.Events().OnSplice(func(ev SpliceEvent) { events = append(events, ev) })

	moved := vm.Document().CellAt(0)
	require.NoError(t, vm.MoveCell(0, 2))
	assert.Equal(t, []string{"b", "c", "a"}, values(vm))

	// One event carrying a delete-splice at 0 and an insert-splice
	// at 2, in that order.
	require.Len(t, events, 1)
	require.Len(t, events[0].Splices, 2)
	assert.Equal(t, 0, events[0].Splices[0].Start)
	assert.Equal(t, 1, events[0].Splices[0].DeletedCount)
	assert.Equal(t, 2, events[0].Splices[1].Start)
	require.Len(t, events[0].Splices[1].Inserted, 1)

	// The cell keeps its handle; the delete+insert framing is
	// notification shape only.
	assert.Equal(t, moved.Handle(), vm.Document().CellAt(2).Handle())
}

func TestMoveCellSameIndex(t *testing.T) {
	vm := newTestVM(t, "a", "b")

	var events int
	vm.Events().OnSplice(func(SpliceEvent) { events++ })

	require.NoError(t, vm.MoveCell(1, 1))
	assert.Zero(t, events)
	assert.False(t, vm.CanUndo())
}

func TestMoveCellInvalidRange(t *testing.T) {
	vm := newTestVM(t, "a", "b")

	assert.ErrorIs(t, vm.MoveCell(0, 2), ErrInvalidRange)
	assert.ErrorIs(t, vm.MoveCell(-1, 0), ErrInvalidRange)
}

func TestNotEditableGatesStructuralOps(t *testing.T) {
	vm := newTestVM(t, "a", "b")
	vm.SetDocumentMetadata(document.MetaEditable, false)

	var events int
	vm.Events().OnSplice(func(SpliceEvent) { events++ })

	c, err := vm.CreateCell(0, "x", "", cell.CodeKind, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, vm.DeleteCell(0))
	require.NoError(t, vm.MoveCell(0, 1))

	assert.Equal(t, []string{"a", "b"}, values(vm))
	assert.Zero(t, events)
	assert.False(t, vm.CanUndo())
}

func TestCellOverridesDocumentEditable(t *testing.T) {
	vm := newTestVM(t, "a", "b")
	vm.SetDocumentMetadata(document.MetaEditable, false)
	vm.Document().CellAt(1).Metadata[document.MetaEditable] = true

	require.NoError(t, vm.DeleteCell(1))
	assert.Equal(t, []string{"a"}, values(vm))
}

func TestSplitCell(t *testing.T) {
	vm := newTestVM(t, "line one\nline two")
	orig := vm.Document().CellAt(0)

	pieces, err := vm.SplitCell(0, []int{9})
	require.NoError(t, err)
	require.Len(t, pieces, 2)

	assert.Equal(t, "line one", pieces[0].Value)
	assert.Equal(t, "line two", pieces[1].Value)
	assert.Equal(t, orig.Handle(), pieces[0].Handle(), "first segment keeps the original handle")
	assert.Equal(t, cell.CodeKind, pieces[1].Kind())
	assert.Equal(t, "sh", pieces[1].LanguageID)
	assert.Equal(t, []string{"line one", "line two"}, values(vm))
}

func TestSplitThenJoinIsInverse(t *testing.T) {
	const text = "line one\nline two"
	vm := newTestVM(t, text)

	pieces, err := vm.SplitCell(0, []int{9})
	require.NoError(t, err)
	assert.Equal(t, text, pieces[0].Value+"\n"+pieces[1].Value)

	joined, err := vm.JoinCells(0, JoinBelow)
	require.NoError(t, err)
	require.NotNil(t, joined)
	assert.Equal(t, text, joined.Value)
	assert.Equal(t, 1, vm.Document().Len())
}

func TestJoinCellsAbove(t *testing.T) {
	vm := newTestVM(t, "a", "b")

	joined, err := vm.JoinCells(1, JoinAbove)
	require.NoError(t, err)
	require.NotNil(t, joined)
	assert.Equal(t, "a\nb", joined.Value)
	assert.Equal(t, 1, vm.Document().Len())
}

func TestJoinCellsNoNeighbor(t *testing.T) {
	vm := newTestVM(t, "a")

	joined, err := vm.JoinCells(0, JoinAbove)
	require.NoError(t, err)
	assert.Nil(t, joined)
}

func TestJoinCellsKindConstraint(t *testing.T) {
	vm := New(document.New(nil, nil), nil)
	_, err := vm.CreateCell(0, "code", "sh", cell.CodeKind, nil, nil)
	require.NoError(t, err)
	_, err = vm.CreateCell(1, "text", "", cell.MarkupKind, nil, nil)
	require.NoError(t, err)

	joined, err := vm.JoinCells(0, JoinBelow, cell.CodeKind)
	require.NoError(t, err)
	assert.Nil(t, joined, "kind constraint rejects a markup neighbor")
	assert.Equal(t, 2, vm.Document().Len())
}

func TestUndoRedoDelete(t *testing.T) {
	vm := newTestVM(t, "a", "b", "c")
	removed := vm.Document().CellAt(1)

	require.NoError(t, vm.DeleteCell(1))
	require.NoError(t, vm.Undo())

	restored := vm.Document().CellAt(1)
	assert.Equal(t, removed.Handle(), restored.Handle(), "undo restores the original handle")
	assert.Equal(t, "b", restored.Value)
	assert.Equal(t, []string{"a", "b", "c"}, values(vm))

	require.NoError(t, vm.Redo())
	assert.Equal(t, []string{"a", "c"}, values(vm))
}

func TestUndoRedoRoundTrip(t *testing.T) {
	vm := newTestVM(t, "a", "b", "c")

	require.NoError(t, vm.MoveCell(0, 2))
	before := values(vm)
	require.NoError(t, vm.Undo())
	require.NoError(t, vm.Redo())
	assert.Equal(t, before, values(vm), "undo();redo() is a no-op on the observable state")
}

func TestFreshEditClearsRedoStack(t *testing.T) {
	vm := newTestVM(t, "a", "b")

	require.NoError(t, vm.DeleteCell(0))
	require.NoError(t, vm.Undo())
	assert.True(t, vm.CanRedo())

	_, err := vm.CreateCell(0, "x", "", cell.MarkupKind, nil, nil)
	require.NoError(t, err)
	assert.False(t, vm.CanRedo())
}

func TestUndoRestoresFocusTarget(t *testing.T) {
	vm := newTestVM(t, "a", "b")
	vm.SetFocusReporter(func() (string, int) { return vm.Document().CellAt(1).Handle(), 1 })

	var focused []FocusEvent
	vm.Events().OnFocus(func(ev FocusEvent) { focused = append(focused, ev) })

	target := vm.Document().CellAt(1).Handle()
	require.NoError(t, vm.DeleteCell(1))
	require.NoError(t, vm.Undo())

	require.Len(t, focused, 1)
	assert.Equal(t, target, focused[0].Handle)
	assert.Equal(t, 1, focused[0].Anchor, "the selection anchor travels with the focus target")
}

func TestUpdateCellValueUndo(t *testing.T) {
	vm := newTestVM(t, "old")

	require.NoError(t, vm.UpdateCellValue(0, "new"))
	assert.Equal(t, "new", vm.Document().CellAt(0).Value)

	require.NoError(t, vm.Undo())
	assert.Equal(t, "old", vm.Document().CellAt(0).Value)
}

func TestUpdateCellMetadataUndo(t *testing.T) {
	vm := newTestVM(t, "a")

	require.NoError(t, vm.UpdateCellMetadata(0, map[string]any{"name": "setup"}))
	assert.Equal(t, "setup", vm.Document().CellAt(0).Metadata["name"])

	require.NoError(t, vm.Undo())
	_, ok := vm.Document().CellAt(0).Metadata["name"]
	assert.False(t, ok)
}

// TestSpliceReplayInvariant drives a random operation sequence and
// checks that replaying the emitted splices against a copy of the
// pre-edit sequence reproduces the live document exactly.
func TestSpliceReplayInvariant(t *testing.T) {
	vm := newTestVM(t, "a", "b", "c", "d")

	shadow := vm.Document().Cells()
	vm.Events().OnSplice(func(ev SpliceEvent) {
		shadow = document.ApplySplices(shadow, ev.Splices)
	})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := vm.Document().Len()
		switch op := rng.Intn(5); {
		case op == 0:
			_, err := vm.CreateCell(rng.Intn(n+1), "x", "", cell.CodeKind, nil, nil)
			require.NoError(t, err)
		case op == 1 && n > 1:
			require.NoError(t, vm.DeleteCell(rng.Intn(n)))
		case op == 2 && n > 1:
			require.NoError(t, vm.MoveCell(rng.Intn(n), rng.Intn(n)))
		case op == 3:
			require.NoError(t, vm.Undo())
		case op == 4:
			require.NoError(t, vm.Redo())
		}
	}

	live := vm.Document().Cells()
	require.Equal(t, len(live), len(shadow))
	for i := range live {
		assert.Same(t, live[i], shadow[i], "replayed sequence diverges at %d", i)
	}
}

func TestChangeDecorationsAtomic(t *testing.T) {
	vm := newTestVM(t, "a")
	handle := vm.Document().CellAt(0).Handle()

	var events []DecorationsEvent
	vm.Events().OnDecorations(func(ev DecorationsEvent) { events = append(events, ev) })

	var id string
	err := vm.ChangeDecorations(func(acc *DecorationAccessor) error {
		var aerr error
		id, aerr = acc.Add(Decoration{CellHandle: handle, Class: "find-match"})
		return aerr
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{id}, events[0].Added)
	assert.Equal(t, []string{id}, vm.DecorationsFor(handle))
}

func TestChangeDecorationsRevertsOnError(t *testing.T) {
	vm := newTestVM(t, "a")
	handle := vm.Document().CellAt(0).Handle()

	err := vm.ChangeDecorations(func(acc *DecorationAccessor) error {
		_, aerr := acc.Add(Decoration{CellHandle: handle, Class: "find-match"})
		require.NoError(t, aerr)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, vm.DecorationsFor(handle), "a failed callback applies nothing")
}

func TestDecorationAccessorInvalidOutsideCallback(t *testing.T) {
	vm := newTestVM(t, "a")

	var leaked *DecorationAccessor
	require.NoError(t, vm.ChangeDecorations(func(acc *DecorationAccessor) error {
		leaked = acc
		return nil
	}))

	_, err := leaked.Add(Decoration{Class: "stale"})
	assert.Error(t, err)
}

func TestEffectiveMetadataRecomputed(t *testing.T) {
	vm := newTestVM(t, "a")
	doc := vm.Document()
	c := doc.CellAt(0)

	assert.True(t, doc.Runnable(c))
	vm.SetDocumentMetadata(document.MetaRunnable, false)
	assert.False(t, doc.Runnable(c))

	require.NoError(t, vm.UpdateCellMetadata(0, map[string]any{document.MetaRunnable: true}))
	assert.True(t, doc.Runnable(c), "cell override wins key by key")
}
