package cell

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/cellbook/cellbook/internal/ulid"
)

// Well-known mime types produced by execution backends.
const (
	MimeText   = "text/plain"
	MimeStdout = "application/vnd.cellbook.stdout"
	MimeStderr = "application/vnd.cellbook.stderr"
	MimeError  = "application/vnd.cellbook.error"
)

// OutputItem is one representation of an execution result. A single
// Output usually carries several items for the same result, e.g.
// image/png next to text/plain, and the render surface picks one.
type OutputItem struct {
	Mime string `json:"mime"`
	Data []byte `json:"data"`
}

// Output is one execution result record. Items are ordered by producer
// preference.
type Output struct {
	ID       string         `json:"id"`
	Items    []OutputItem   `json:"items"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewOutput(items ...OutputItem) *Output {
	return &Output{
		ID:    ulid.GenerateID(),
		Items: items,
	}
}

func (o *Output) Clone() *Output {
	dup := &Output{
		ID:    o.ID,
		Items: make([]OutputItem, len(o.Items)),
	}
	copy(dup.Items, o.Items)
	if o.Metadata != nil {
		dup.Metadata = make(map[string]any, len(o.Metadata))
		for k, v := range o.Metadata {
			dup.Metadata[k] = v
		}
	}
	return dup
}

// ItemMime returns the declared mime of an item, sniffing the payload
// when the producer did not tag it.
func ItemMime(item OutputItem) string {
	if item.Mime != "" {
		return item.Mime
	}
	return mimetype.Detect(item.Data).String()
}

// PickItem negotiates a representation against the renderer mimes
// available on the output surface, in item order. It falls back to the
// first item so an output always renders as something, and returns nil
// only for an empty output.
func (o *Output) PickItem(availableMimes []string) *OutputItem {
	if len(o.Items) == 0 {
		return nil
	}
	for i := range o.Items {
		mime := ItemMime(o.Items[i])
		for _, avail := range availableMimes {
			if mime == avail {
				return &o.Items[i]
			}
		}
	}
	return &o.Items[0]
}
