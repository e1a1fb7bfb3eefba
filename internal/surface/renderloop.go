package surface

import "sort"

type inset struct {
	top          int
	renderOffset int
	visible      bool
	mime         string
	content      []byte
}

// renderLoop is the sandboxed side of the surface. All inset and
// renderer state lives in this goroutine; the host never touches it
// directly. Messages from another generation are dropped.
func (s *Surface) renderLoop(gen string, inbox <-chan hostMessage) {
	insets := map[insetKey]*inset{}
	renderers := map[string]func(payload []byte){}

	for msg := range inbox {
		if msg.Generation != gen {
			continue
		}

		switch msg.Kind {
		case kindDispose:
			return

		case kindCreateInset:
			key := insetKey{cellHandle: msg.CellHandle, outputID: msg.OutputID}
			insets[key] = &inset{
				top:          msg.TopOffset + msg.RenderOffset,
				renderOffset: msg.RenderOffset,
				visible:      true,
				mime:         msg.Mime,
				content:      msg.Content,
			}

		case kindUpdateScrollTop:
			key := insetKey{cellHandle: msg.CellHandle, outputID: msg.OutputID}
			if in, ok := insets[key]; ok {
				in.top = msg.TopOffset
				in.visible = true
			}

		case kindRemoveInset:
			for key := range insets {
				if key.outputID == msg.OutputID {
					delete(insets, key)
				}
			}

		case kindHideInset:
			for key, in := range insets {
				if key.outputID == msg.OutputID {
					in.visible = false
				}
			}

		case kindScrollSync:
			for key, in := range insets {
				if top, ok := msg.VisibleTops[key.cellHandle]; ok {
					in.top = top + in.renderOffset
					in.visible = true
				} else {
					in.top += msg.ScrollDelta
				}
			}

		case kindRegister:
			if msg.RendererID != "" && msg.Handler != nil {
				renderers[msg.RendererID] = msg.Handler
			}

		case kindPost:
			if msg.RendererID != "" {
				if handler, ok := renderers[msg.RendererID]; ok {
					handler(msg.Payload)
				}
				continue
			}
			for _, handler := range renderers {
				handler(msg.Payload)
			}

		case kindSnapshot:
			states := make([]InsetState, 0, len(insets))
			for key, in := range insets {
				states = append(states, InsetState{
					CellHandle: key.cellHandle,
					OutputID:   key.outputID,
					Top:        in.top,
					Visible:    in.visible,
					Mime:       in.mime,
				})
			}
			sort.Slice(states, func(i, j int) bool {
				if states[i].CellHandle != states[j].CellHandle {
					return states[i].CellHandle < states[j].CellHandle
				}
				return states[i].OutputID < states[j].OutputID
			})
			select {
			case s.inbound <- Message{Generation: gen, RendererID: "snapshot", Payload: marshalSnapshot(states)}:
			default:
			}
		}
	}
}
