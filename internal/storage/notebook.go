package storage

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/cellbook/cellbook/internal/cell"
	"github.com/cellbook/cellbook/internal/document"
	"github.com/cellbook/cellbook/internal/ulid"
)

// fileCell is the persisted shape of one cell. Transient UI state and
// run state never serialize; outputs do, so reopening a notebook shows
// the last results.
type fileCell struct {
	ID         string         `json:"id,omitempty"`
	Kind       string         `json:"kind"`
	Value      string         `json:"value"`
	LanguageID string         `json:"languageId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outputs    []*cell.Output `json:"outputs,omitempty"`
}

type fileNotebook struct {
	Cells     []fileCell     `json:"cells"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Languages []string       `json:"languages,omitempty"`
}

func kindToString(k cell.Kind) string {
	if k == cell.CodeKind {
		return "code"
	}
	return "markup"
}

func kindFromString(s string) (cell.Kind, error) {
	switch s {
	case "code":
		return cell.CodeKind, nil
	case "markup":
		return cell.MarkupKind, nil
	default:
		return 0, errors.Errorf("unknown cell kind %q", s)
	}
}

// Serialize renders a document into its on-disk JSON form.
func Serialize(doc *document.Document) ([]byte, error) {
	nb := fileNotebook{
		Metadata:  doc.Metadata,
		Languages: doc.Languages,
		Cells:     make([]fileCell, 0, doc.Len()),
	}
	for _, c := range doc.Cells() {
		nb.Cells = append(nb.Cells, fileCell{
			ID:         c.Handle(),
			Kind:       kindToString(c.Kind()),
			Value:      c.Value,
			LanguageID: c.LanguageID,
			Metadata:   c.Metadata,
			Outputs:    c.Outputs,
		})
	}
	data, err := json.MarshalIndent(nb, "", "  ")
	return data, errors.Wrap(err, "serialize notebook")
}

// Deserialize builds a document from its serialized form. Valid cell
// ids are restored as handles so identity survives a save/load cycle;
// anything else gets a fresh handle.
func Deserialize(data []byte) (*document.Document, error) {
	var nb fileNotebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, errors.Wrap(err, "deserialize notebook")
	}

	doc := document.New(nb.Metadata, nb.Languages)
	cells := make([]*cell.Cell, 0, len(nb.Cells))
	for _, fc := range nb.Cells {
		kind, err := kindFromString(fc.Kind)
		if err != nil {
			return nil, err
		}
		var c *cell.Cell
		if ulid.ValidID(fc.ID) {
			c = cell.NewWithHandle(fc.ID, kind, fc.Value, fc.LanguageID)
		} else {
			c = cell.New(kind, fc.Value, fc.LanguageID)
		}
		if fc.Metadata != nil {
			c.Metadata = fc.Metadata
		}
		c.Outputs = fc.Outputs
		cells = append(cells, c)
	}

	if err := doc.Apply(document.Splice{Start: 0, Inserted: cells}); err != nil {
		return nil, err
	}
	return doc, nil
}
