package cell

import (
	"github.com/cellbook/cellbook/internal/ulid"
)

type Kind int

const (
	MarkupKind Kind = iota + 1
	CodeKind
)

func (k Kind) String() string {
	switch k {
	case MarkupKind:
		return "markup"
	case CodeKind:
		return "code"
	default:
		return "unknown"
	}
}

// EditState says whether a cell shows its rendered preview or an open
// editor. It is transient UI state and never persisted.
type EditState int

const (
	EditStatePreview EditState = iota
	EditStateEditing
)

type FocusMode int

const (
	FocusContainer FocusMode = iota
	FocusEditor
)

type RunState int

const (
	RunStateIdle RunState = iota
	RunStateRunning
)

func (s RunState) String() string {
	if s == RunStateRunning {
		return "running"
	}
	return "idle"
}

// UIState is the per-cell transient state. Source and output collapse
// independently.
type UIState struct {
	EditState       EditState
	FocusMode       FocusMode
	SourceCollapsed bool
	OutputCollapsed bool
}

// Cell is one content block of a notebook document. The handle and kind
// are fixed at construction: a handle survives moves, splits and joins,
// and changing the kind of a block is modeled as delete+insert.
type Cell struct {
	handle string
	kind   Kind

	Value      string
	LanguageID string
	Metadata   map[string]any

	Outputs []*Output

	UI             UIState
	RunState       RunState
	ExecutionOrder int
}

func New(kind Kind, value, languageID string) *Cell {
	return &Cell{
		handle:     ulid.GenerateID(),
		kind:       kind,
		Value:      value,
		LanguageID: languageID,
		Metadata:   map[string]any{},
	}
}

// NewWithHandle restores a cell under a previously issued handle, e.g.
// when deserializing a document or replaying an undo record.
func NewWithHandle(handle string, kind Kind, value, languageID string) *Cell {
	c := New(kind, value, languageID)
	c.handle = handle
	return c
}

func (c *Cell) Handle() string { return c.handle }

func (c *Cell) Kind() Kind { return c.kind }

func (c *Cell) Len() int { return len(c.Value) }

func (c *Cell) Empty() bool { return len(c.Value) == 0 }

// Clone copies the cell, handle included. Undo records hold clones so
// that later edits to the live cell cannot corrupt history.
func (c *Cell) Clone() *Cell {
	dup := *c
	dup.Metadata = make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		dup.Metadata[k] = v
	}
	dup.Outputs = make([]*Output, len(c.Outputs))
	for i, o := range c.Outputs {
		dup.Outputs[i] = o.Clone()
	}
	return &dup
}
