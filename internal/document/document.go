package document

import (
	"github.com/pkg/errors"

	"github.com/cellbook/cellbook/internal/cell"
	"github.com/cellbook/cellbook/internal/ulid"
)

// Metadata keys with document-wide defaults that individual cells may
// override.
const (
	MetaEditable = "editable"
	MetaRunnable = "runnable"
)

// Document is the ordered, persistence-facing collection of cells plus
// document-level metadata. It is confined to the editing event loop and
// mutated exclusively through view model operations, so it carries no
// locking. Cell index is always derived from position in the sequence,
// never stored on the cell.
type Document struct {
	id        string
	cells     []*cell.Cell
	Metadata  map[string]any
	Languages []string
}

func New(metadata map[string]any, languages []string) *Document {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Document{
		id:        ulid.GenerateID(),
		Metadata:  metadata,
		Languages: languages,
	}
}

func (d *Document) ID() string { return d.id }

func (d *Document) Len() int { return len(d.cells) }

func (d *Document) CellAt(index int) *cell.Cell {
	if index < 0 || index >= len(d.cells) {
		return nil
	}
	return d.cells[index]
}

// Cells returns a copy of the sequence. Callers must not mutate the
// cells' structural position through it.
func (d *Document) Cells() []*cell.Cell {
	out := make([]*cell.Cell, len(d.cells))
	copy(out, d.cells)
	return out
}

func (d *Document) IndexOfHandle(handle string) int {
	for i, c := range d.cells {
		if c.Handle() == handle {
			return i
		}
	}
	return -1
}

// DefaultLanguage returns the language used for new code cells when the
// caller does not name one.
func (d *Document) DefaultLanguage() string {
	if len(d.Languages) > 0 {
		return d.Languages[0]
	}
	return "plaintext"
}

// Apply mutates the sequence by one splice. It validates bounds and
// handle uniqueness before touching the sequence, so a failed Apply
// leaves the document untouched.
func (d *Document) Apply(s Splice) error {
	if s.Start < 0 || s.Start+s.DeletedCount > len(d.cells) {
		return errors.Errorf("splice [%d, +%d) out of bounds for %d cells", s.Start, s.DeletedCount, len(d.cells))
	}
	for _, ins := range s.Inserted {
		if idx := d.IndexOfHandle(ins.Handle()); idx >= 0 && (idx < s.Start || idx >= s.Start+s.DeletedCount) {
			return errors.Errorf("duplicate cell handle %s", ins.Handle())
		}
	}
	d.cells = ApplySplice(d.cells, s)
	return nil
}

// EffectiveMetadata merges document defaults with the cell's overrides,
// cell values winning key by key. The merge is computed on every call;
// callers must not cache it across metadata changes.
func (d *Document) EffectiveMetadata(c *cell.Cell) map[string]any {
	out := make(map[string]any, len(d.Metadata)+len(c.Metadata))
	for k, v := range d.Metadata {
		out[k] = v
	}
	for k, v := range c.Metadata {
		out[k] = v
	}
	return out
}

// EffectiveBool reads one boolean key from the effective metadata.
func (d *Document) EffectiveBool(c *cell.Cell, key string, def bool) bool {
	if c != nil {
		if v, ok := c.Metadata[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	if v, ok := d.Metadata[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Editable reports the effective editable flag for a cell, or for the
// document itself when c is nil.
func (d *Document) Editable(c *cell.Cell) bool {
	return d.EffectiveBool(c, MetaEditable, true)
}

// Runnable reports the effective runnable flag for a cell.
func (d *Document) Runnable(c *cell.Cell) bool {
	return d.EffectiveBool(c, MetaRunnable, true)
}

// Release drops all cell buffers and outputs. Called when the editor
// detaches from the document.
func (d *Document) Release() {
	for _, c := range d.cells {
		c.Value = ""
		c.Outputs = nil
	}
	d.cells = nil
}
