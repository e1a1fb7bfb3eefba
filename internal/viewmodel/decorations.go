package viewmodel

import (
	"github.com/pkg/errors"

	"github.com/cellbook/cellbook/internal/ulid"
)

// Decoration marks a cell with a named style class, e.g. a find-match
// highlight. Decorations are rendering hints, not document content.
type Decoration struct {
	CellHandle string
	Class      string
}

// DecorationAccessor is the transient mutation handle passed to
// ChangeDecorations callbacks. It is valid only for the duration of the
// callback.
type DecorationAccessor struct {
	vm      *ViewModel
	added   map[string]Decoration
	removed map[string]struct{}
	closed  bool
}

// Add stages a decoration and returns its id.
func (a *DecorationAccessor) Add(dec Decoration) (string, error) {
	if a.closed {
		return "", errors.New("decoration accessor used outside its callback")
	}
	id := ulid.GenerateID()
	a.added[id] = dec
	return id, nil
}

// Remove stages the removal of a decoration by id.
func (a *DecorationAccessor) Remove(id string) error {
	if a.closed {
		return errors.New("decoration accessor used outside its callback")
	}
	if _, ok := a.vm.decorations[id]; !ok {
		if _, staged := a.added[id]; !staged {
			return errors.Errorf("unknown decoration %s", id)
		}
		delete(a.added, id)
		return nil
	}
	a.removed[id] = struct{}{}
	return nil
}

// ChangeDecorations hands the callback a transient accessor. All staged
// adds and removes are applied atomically after the callback returns;
// if the callback returns an error or panics nothing is applied.
func (vm *ViewModel) ChangeDecorations(fn func(*DecorationAccessor) error) error {
	acc := &DecorationAccessor{
		vm:      vm,
		added:   map[string]Decoration{},
		removed: map[string]struct{}{},
	}
	defer func() { acc.closed = true }()

	if err := fn(acc); err != nil {
		return err
	}

	ev := DecorationsEvent{}
	for id, dec := range acc.added {
		vm.decorations[id] = dec
		ev.Added = append(ev.Added, id)
	}
	for id := range acc.removed {
		delete(vm.decorations, id)
		ev.Removed = append(ev.Removed, id)
	}
	if len(ev.Added) > 0 || len(ev.Removed) > 0 {
		vm.events.emitDecorations(ev)
	}
	return nil
}

// DecorationsFor returns the decoration ids attached to a cell.
func (vm *ViewModel) DecorationsFor(handle string) []string {
	var out []string
	for id, dec := range vm.decorations {
		if dec.CellHandle == handle {
			out = append(out, id)
		}
	}
	return out
}
