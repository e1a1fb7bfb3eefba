package surface

import "encoding/json"

// Message kinds understood by the sandboxed rendering loop. The host
// side never inspects payloads; it only routes them.
const (
	kindCreateInset     = "createInset"
	kindUpdateScrollTop = "updateViewScrollTop"
	kindRemoveInset     = "removeInset"
	kindHideInset       = "hideInset"
	kindScrollSync      = "scrollSync"
	kindPost            = "post"
	kindRegister        = "registerRenderer"
	kindSnapshot        = "snapshot"
	kindDispose         = "dispose"
)

// hostMessage travels host -> sandbox. Every message is stamped with
// the surface generation so a torn-down surface's stale traffic is
// discarded instead of mutating a fresh loop.
type hostMessage struct {
	Generation string
	Kind       string

	CellHandle   string
	OutputID     string
	TopOffset    int
	RenderOffset int
	Content      []byte
	Mime         string
	Renderers    []string

	RendererID string
	Payload    []byte

	// Scroll sync: negated scroll-top delta plus the absolute top of
	// every visible output-bearing cell.
	ScrollDelta int
	VisibleTops map[string]int

	// Handler crosses the boundary by reference but only ever runs on
	// the sandbox goroutine.
	Handler func(payload []byte)
}

// Message travels sandbox -> host: renderer acknowledgements, snapshot
// replies, custom renderer traffic. Payload stays opaque to the host.
type Message struct {
	Generation string
	RendererID string
	Payload    []byte
}

// InsetState is the sandbox-side record of one rendered inset, exposed
// to the host only through snapshot replies.
type InsetState struct {
	CellHandle string `json:"cellHandle"`
	OutputID   string `json:"outputId"`
	Top        int    `json:"top"`
	Visible    bool   `json:"visible"`
	Mime       string `json:"mime"`
}

// SnapshotPayload is the JSON body of a snapshot reply.
type SnapshotPayload struct {
	Insets []InsetState `json:"insets"`
}

func marshalSnapshot(insets []InsetState) []byte {
	data, err := json.Marshal(SnapshotPayload{Insets: insets})
	if err != nil {
		return []byte("{}")
	}
	return data
}
