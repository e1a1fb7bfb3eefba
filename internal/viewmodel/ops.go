package viewmodel

import (
	"github.com/pkg/errors"

	"github.com/cellbook/cellbook/internal/document"
)

// spliceOp covers every structural operation. The inverse of a
// composite operation is the individual splice inverses replayed in
// reverse order.
type spliceOp struct {
	splices []document.Splice
	focus   focusSnapshot
}

func (o *spliceOp) undo(vm *ViewModel) error {
	return vm.applySplices(document.InverseSplices(o.splices), OriginUndo)
}

func (o *spliceOp) redo(vm *ViewModel) error {
	return vm.applySplices(o.splices, OriginRedo)
}

func (o *spliceOp) focusTarget() focusSnapshot { return o.focus }

// valueOp records an in-place text change.
type valueOp struct {
	handle             string
	oldValue, newValue string
	focus              focusSnapshot
}

func (o *valueOp) setValue(vm *ViewModel, value string) error {
	idx := vm.doc.IndexOfHandle(o.handle)
	if idx < 0 {
		return errors.Errorf("cell %s no longer in document", o.handle)
	}
	c := vm.doc.CellAt(idx)
	c.Value = value
	vm.InvalidateLayout(o.handle)
	vm.events.emitContent(ContentEvent{Handle: o.handle, Index: idx})
	return nil
}

func (o *valueOp) undo(vm *ViewModel) error { return o.setValue(vm, o.oldValue) }

func (o *valueOp) redo(vm *ViewModel) error { return o.setValue(vm, o.newValue) }

func (o *valueOp) focusTarget() focusSnapshot { return o.focus }

// metadataOp snapshots the full metadata map before and after a patch.
type metadataOp struct {
	handle       string
	old, updated map[string]any
	focus        focusSnapshot
}

func (o *metadataOp) setMeta(vm *ViewModel, meta map[string]any) error {
	idx := vm.doc.IndexOfHandle(o.handle)
	if idx < 0 {
		return errors.Errorf("cell %s no longer in document", o.handle)
	}
	vm.doc.CellAt(idx).Metadata = cloneMeta(meta)
	vm.InvalidateLayout(o.handle)
	vm.events.emitMetadata(MetadataEvent{Handle: o.handle})
	return nil
}

func (o *metadataOp) undo(vm *ViewModel) error { return o.setMeta(vm, o.old) }

func (o *metadataOp) redo(vm *ViewModel) error { return o.setMeta(vm, o.updated) }

func (o *metadataOp) focusTarget() focusSnapshot { return o.focus }
