package surface

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type state int

const (
	stateIdle state = iota
	statePending
	stateReady
	stateFailed
	stateDisposed
)

type insetKey struct {
	cellHandle string
	outputID   string
}

// Surface is the host handle of the isolated output-rendering context.
// One instance is shared by all outputs of a document, created lazily
// on first need and torn down when the document detaches.
//
// The sandboxed side runs its own event loop; the host communicates
// only through asynchronous messages, never shared memory. When the
// sandbox fails to initialize, output rendering is best-effort: every
// non-host operation degrades to a no-op instead of aborting editing.
type Surface struct {
	logger *zap.Logger

	mu         sync.Mutex
	state      state
	generation string
	pending    []hostMessage
	known      map[insetKey]struct{}

	inbox   chan hostMessage
	inbound chan Message

	// initFn models the asynchronous readiness of the sandboxed
	// context. Tests inject failures through it.
	initFn func(ctx context.Context) error
}

// Options configures a surface. A nil InitFn means the sandbox comes up
// immediately.
type Options struct {
	InitFn func(ctx context.Context) error
	Logger *zap.Logger
}

func New(opts Options) *Surface {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	initFn := opts.InitFn
	if initFn == nil {
		initFn = func(context.Context) error { return nil }
	}
	return &Surface{
		logger:  logger.Named("surface"),
		known:   map[insetKey]struct{}{},
		inbound: make(chan Message, 64),
		initFn:  initFn,
	}
}

// Messages returns the inbound channel carrying sandbox-to-host
// traffic. Payloads are opaque to the host.
func (s *Surface) Messages() <-chan Message { return s.inbound }

// Generation identifies the current sandbox incarnation. Messages
// stamped with an older generation are dropped by the loop.
func (s *Surface) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ensureStarted lazily brings up the sandboxed context. Calls arriving
// while initialization is pending queue onto the same attempt; none of
// them trigger a second one.
func (s *Surface) ensureStarted(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return
	}
	s.state = statePending
	s.generation = uuid.NewString()
	gen := s.generation
	s.mu.Unlock()

	go func() {
		err := s.initFn(ctx)

		s.mu.Lock()
		if s.state != statePending || s.generation != gen {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.logger.Warn("render surface failed to initialize", zap.Error(err))
			s.state = stateFailed
			s.pending = nil
			s.mu.Unlock()
			return
		}
		// Flush the queue before exposing the ready state so messages
		// sent during initialization keep their order against later
		// ones.
		s.inbox = make(chan hostMessage, 256)
		go s.renderLoop(gen, s.inbox)
		for _, msg := range s.pending {
			s.inbox <- msg
		}
		s.pending = nil
		s.state = stateReady
		s.mu.Unlock()
	}()
}

// send queues a message for the sandbox. It is fire-and-forget from the
// host's perspective and a no-op in degraded or disposed state.
func (s *Surface) send(ctx context.Context, msg hostMessage) {
	s.ensureStarted(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Generation = s.generation
	switch s.state {
	case statePending:
		s.pending = append(s.pending, msg)
	case stateReady:
		select {
		case s.inbox <- msg:
		default:
			s.logger.Warn("surface inbox full, dropping message", zap.String("kind", msg.Kind))
		}
	default:
		// failed or disposed: output is best-effort
	}
}

// CreateInset renders one output inside the sandbox. The call is
// idempotent per (cell, output): re-creating an existing inset becomes
// a position update so embedded widget state inside the sandbox
// survives.
func (s *Surface) CreateInset(ctx context.Context, cellHandle, outputID string, topOffset, renderOffset int, content []byte, mime string, availableRenderers []string) {
	key := insetKey{cellHandle: cellHandle, outputID: outputID}

	s.mu.Lock()
	_, exists := s.known[key]
	if !exists && s.state != stateFailed && s.state != stateDisposed {
		s.known[key] = struct{}{}
	}
	s.mu.Unlock()

	if exists {
		s.send(ctx, hostMessage{
			Kind:       kindUpdateScrollTop,
			CellHandle: cellHandle,
			OutputID:   outputID,
			TopOffset:  topOffset + renderOffset,
		})
		return
	}
	s.send(ctx, hostMessage{
		Kind:         kindCreateInset,
		CellHandle:   cellHandle,
		OutputID:     outputID,
		TopOffset:    topOffset,
		RenderOffset: renderOffset,
		Content:      content,
		Mime:         mime,
		Renderers:    availableRenderers,
	})
}

// RemoveInset permanently discards the rendered content of an output.
func (s *Surface) RemoveInset(ctx context.Context, outputID string) {
	s.mu.Lock()
	for key := range s.known {
		if key.outputID == outputID {
			delete(s.known, key)
		}
	}
	s.mu.Unlock()
	s.send(ctx, hostMessage{Kind: kindRemoveInset, OutputID: outputID})
}

// HideInset keeps the rendered content but marks it invisible, e.g.
// when the output scrolls into a collapsed region.
func (s *Surface) HideInset(ctx context.Context, outputID string) {
	s.send(ctx, hostMessage{Kind: kindHideInset, OutputID: outputID})
}

// UpdateScroll forwards a list scroll to the sandbox: the negated
// scroll-top delta plus the absolute top of every visible
// output-bearing cell. Insets reposition without re-rendering.
func (s *Surface) UpdateScroll(ctx context.Context, delta int, visibleTops map[string]int) {
	s.send(ctx, hostMessage{
		Kind:        kindScrollSync,
		ScrollDelta: -delta,
		VisibleTops: visibleTops,
	})
}

// RegisterRenderer installs a message handler inside the sandbox under
// a renderer id. The handler runs only on the sandbox goroutine.
func (s *Surface) RegisterRenderer(ctx context.Context, rendererID string, handler func(payload []byte)) {
	s.send(ctx, hostMessage{Kind: kindRegister, RendererID: rendererID, Handler: handler})
}

// PostMessage routes an opaque payload into the sandbox. An addressed
// message reaches only the named renderer's handler; an unaddressed one
// broadcasts to every registered handler.
func (s *Surface) PostMessage(ctx context.Context, rendererID string, payload []byte) {
	s.send(ctx, hostMessage{Kind: kindPost, RendererID: rendererID, Payload: payload})
}

// RequestSnapshot asks the sandbox to report its inset state on the
// inbound channel. The reply arrives as a Message with renderer id
// "snapshot" and a JSON payload.
func (s *Surface) RequestSnapshot(ctx context.Context) {
	s.send(ctx, hostMessage{Kind: kindSnapshot})
}

// Dispose tears the sandbox down. The generation changes so any late
// messages addressed to the old incarnation are dropped.
func (s *Surface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDisposed {
		return
	}
	if s.state == stateReady {
		s.inbox <- hostMessage{Kind: kindDispose, Generation: s.generation}
	}
	s.state = stateDisposed
	s.generation = uuid.NewString()
	s.pending = nil
	s.known = map[insetKey]struct{}{}
}

// Degraded reports whether the sandbox failed to initialize and the
// surface is running in no-op mode.
func (s *Surface) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateFailed
}
