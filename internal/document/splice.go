package document

import (
	"github.com/cellbook/cellbook/internal/cell"
)

// Splice is a minimal change record describing one contiguous edit to
// the cell sequence: at Start, DeletedCount cells were removed and
// Inserted cells were put in their place. Composite operations (move,
// split, join) emit one or more splices in document order; replaying
// them against the pre-edit sequence reproduces the post-edit sequence.
type Splice struct {
	Start        int
	DeletedCount int
	Deleted      []*cell.Cell
	Inserted     []*cell.Cell
}

// Inverse returns the splice that undoes s when applied to the
// post-edit sequence.
func (s Splice) Inverse() Splice {
	return Splice{
		Start:        s.Start,
		DeletedCount: len(s.Inserted),
		Deleted:      s.Inserted,
		Inserted:     s.Deleted,
	}
}

// ApplySplice applies one splice to a cell slice and returns the result.
func ApplySplice(cells []*cell.Cell, s Splice) []*cell.Cell {
	out := make([]*cell.Cell, 0, len(cells)-s.DeletedCount+len(s.Inserted))
	out = append(out, cells[:s.Start]...)
	out = append(out, s.Inserted...)
	out = append(out, cells[s.Start+s.DeletedCount:]...)
	return out
}

// ApplySplices replays splices in emission order.
func ApplySplices(cells []*cell.Cell, splices []Splice) []*cell.Cell {
	out := cells
	for _, s := range splices {
		out = ApplySplice(out, s)
	}
	return out
}

// InverseSplices returns the splice list that undoes a composite
// operation: individual inverses, in reverse order.
func InverseSplices(splices []Splice) []Splice {
	out := make([]Splice, 0, len(splices))
	for i := len(splices) - 1; i >= 0; i-- {
		out = append(out, splices[i].Inverse())
	}
	return out
}
