package editor

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/cellbook/cellbook/internal/cell"
)

// cellViewState is the per-cell slice of the persisted editor view
// state.
type cellViewState struct {
	EditState       int  `json:"editState"`
	FocusMode       int  `json:"focusMode"`
	SourceCollapsed bool `json:"sourceCollapsed"`
	OutputCollapsed bool `json:"outputCollapsed"`
	MeasuredHeight  int  `json:"measuredHeight,omitempty"`
}

// viewState is the opaque blob callers round-trip through save and
// restore. It carries scroll position, the per-cell collapse/edit/focus
// snapshot and the undo-irrelevant layout cache.
type viewState struct {
	ScrollTop int                      `json:"scrollTop"`
	Focus     string                   `json:"focus,omitempty"`
	Anchor    int                      `json:"anchor"`
	Cells     map[string]cellViewState `json:"cells,omitempty"`
}

// SaveViewState snapshots the transient editor state as an opaque blob.
func (c *Controller) SaveViewState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return nil, errors.New("no document attached")
	}

	vs := viewState{
		ScrollTop: c.list.ScrollTop(),
		Focus:     c.list.FocusHandle(),
		Anchor:    c.list.SelectionAnchor(),
		Cells:     map[string]cellViewState{},
	}
	for _, cl := range c.doc.Cells() {
		layout := c.vm.Layout(cl.Handle(), c.services.ListOptions.DefaultCellHeight)
		state := cellViewState{
			EditState:       int(cl.UI.EditState),
			FocusMode:       int(cl.UI.FocusMode),
			SourceCollapsed: cl.UI.SourceCollapsed,
			OutputCollapsed: cl.UI.OutputCollapsed,
		}
		if layout.HasMeasured {
			state.MeasuredHeight = layout.MeasuredHeight
		}
		vs.Cells[cl.Handle()] = state
	}

	data, err := json.Marshal(vs)
	return data, errors.Wrap(err, "save view state")
}

// RestoreViewState applies a previously saved blob. Entries for cells
// no longer in the document are ignored.
func (c *Controller) RestoreViewState(blob []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return errors.New("no document attached")
	}

	var vs viewState
	if err := json.Unmarshal(blob, &vs); err != nil {
		return errors.Wrap(err, "restore view state")
	}

	for handle, state := range vs.Cells {
		idx := c.doc.IndexOfHandle(handle)
		if idx < 0 {
			continue
		}
		cl := c.doc.CellAt(idx)
		cl.UI = cell.UIState{
			EditState:       cell.EditState(state.EditState),
			FocusMode:       cell.FocusMode(state.FocusMode),
			SourceCollapsed: state.SourceCollapsed,
			OutputCollapsed: state.OutputCollapsed,
		}
		if state.MeasuredHeight > 0 {
			c.vm.SetMeasuredHeight(handle, state.MeasuredHeight, c.services.ListOptions.DefaultCellHeight)
		}
	}

	if vs.Focus != "" {
		if idx := c.doc.IndexOfHandle(vs.Focus); idx >= 0 {
			c.list.SetFocus(idx)
		}
	}
	if vs.Anchor >= 0 {
		c.list.SetCellSelection(vs.Anchor)
	}
	c.list.ScrollTo(vs.ScrollTop)
	return nil
}
