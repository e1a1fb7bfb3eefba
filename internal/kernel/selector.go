package kernel

import (
	"context"
	"sync"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the kernel-binding state of one document.
type State int

const (
	StateNoKernel State = iota
	StateSingleCandidate
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateSingleCandidate:
		return "single-candidate"
	case StateResolved:
		return "resolved"
	default:
		return "no-kernel"
	}
}

// AffinityRule binds documents whose type matches a glob pattern to a
// provider.
type AffinityRule struct {
	pattern    glob.Glob
	Pattern    string
	ProviderID string
}

// CompileAffinity builds an AffinityRule from a glob pattern over the
// document type.
func CompileAffinity(pattern, providerID string) (AffinityRule, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return AffinityRule{}, errors.Wrapf(err, "compile affinity pattern %q", pattern)
	}
	return AffinityRule{pattern: g, Pattern: pattern, ProviderID: providerID}, nil
}

func (r AffinityRule) Matches(docType string) bool {
	return r.pattern != nil && r.pattern.Match(docType)
}

// PreferenceStore persists the preferred kernel per document type.
type PreferenceStore interface {
	Get(scope, key string) ([]byte, bool, error)
	Set(scope, key string, value []byte) error
}

const prefScope = "kernel-preferences"

// Availability describes the current binding plus the candidate set.
// An empty candidate set is how resolution failure surfaces; it is a
// normal transient state, never an error.
type Availability struct {
	State      State
	KernelID   string
	Candidates []Descriptor
}

// Selector resolves which kernel is active for one document. Candidate
// changes may race with an in-flight resolution; the selector cancels
// the in-flight token before starting a new cycle so a stale resolution
// never overwrites a fresher one.
type Selector struct {
	registry *Registry
	store    PreferenceStore
	rules    []AffinityRule
	logger   *zap.Logger

	docType        string
	nativeProvider string

	mu         sync.Mutex
	state      State
	resolvedID string
	generation int
	cancel     context.CancelFunc
	subs       []func(Availability)

	cancelRegistry func()
}

func NewSelector(registry *Registry, store PreferenceStore, rules []AffinityRule, docType, nativeProvider string, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Selector{
		registry:       registry,
		store:          store,
		rules:          rules,
		logger:         logger.Named("kernel"),
		docType:        docType,
		nativeProvider: nativeProvider,
	}
	s.cancelRegistry = registry.OnChange(func() { s.Kick(context.Background()) })
	return s
}

// Detach cancels any in-flight resolution and unsubscribes from the
// registry. The generation bump invalidates tokens handed to kernels.
func (s *Selector) Detach() {
	if s.cancelRegistry != nil {
		s.cancelRegistry()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// OnAvailabilityChange subscribes to binding and candidate-set changes.
func (s *Selector) OnAvailabilityChange(fn func(Availability)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs[idx] = nil
	}
}

func (s *Selector) notify(av Availability) {
	s.mu.Lock()
	subs := append([]func(Availability){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(av)
		}
	}
}

// State returns the current binding state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResolvedKernel returns the bound kernel, or nil while unresolved.
func (s *Selector) ResolvedKernel() Kernel {
	s.mu.Lock()
	id := s.resolvedID
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	k, ok := s.registry.Get(id)
	if !ok {
		return nil
	}
	return k
}

// Kick starts a new resolution cycle, cancelling any in-flight one
// first. Stale cycles abort at their next token check without side
// effects.
func (s *Selector) Kick(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Interim state while resolution is pending: the previously
	// resolved kernel may have just disappeared.
	candidates := s.registry.Candidates()
	if s.resolvedID != "" {
		if _, ok := s.registry.Get(s.resolvedID); !ok {
			s.resolvedID = ""
			if len(candidates) == 0 {
				s.state = StateNoKernel
			} else {
				s.state = StateSingleCandidate
			}
		}
	} else if len(candidates) == 0 {
		s.state = StateNoKernel
	}
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := s.resolve(cctx, gen); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("kernel resolution failed", zap.Error(err))
		}
	}()
}

// Resolve runs one resolution cycle synchronously and returns the
// chosen kernel id, empty when no candidate is acceptable.
func (s *Selector) Resolve(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if err := s.resolve(ctx, gen); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvedID, nil
}

func (s *Selector) resolve(ctx context.Context, gen int) error {
	candidates := s.registry.Candidates()

	if err := ctx.Err(); err != nil {
		return err
	}

	choice := s.choose(candidates)

	// The preference store read is a suspension point; re-check the
	// token before committing so a cancelled cycle has no side effects.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return context.Canceled
	}
	descriptors := make([]Descriptor, len(candidates))
	for i, k := range candidates {
		descriptors[i] = k.Descriptor()
	}
	switch {
	case choice == "":
		s.state = StateNoKernel
		s.resolvedID = ""
	default:
		s.state = StateResolved
		s.resolvedID = choice
	}
	av := Availability{State: s.state, KernelID: s.resolvedID, Candidates: descriptors}
	s.mu.Unlock()

	if choice != "" {
		if err := s.store.Set(prefScope, s.docType, []byte(choice)); err != nil {
			s.logger.Warn("persisting kernel preference failed", zap.Error(err))
		}
		for _, k := range candidates {
			if d := k.Descriptor(); d.ID == choice {
				key := s.docType + "/" + d.ProviderID
				if err := s.store.Set(prefScope, key, []byte(choice)); err != nil {
					s.logger.Warn("persisting provider preference failed", zap.Error(err))
				}
				break
			}
		}
	}

	s.notify(av)
	return nil
}

// choose evaluates the selection order once, short-circuiting at the
// first match:
//  1. a user affinity rule matching the document type, picking
//     preferred -> cached -> first within that provider,
//  2. the document's native provider with the same fallback chain,
//  3. the first candidate overall.
//
// A previously resolved id cached for this document type wins outright
// when it is still among the candidates.
func (s *Selector) choose(candidates []Kernel) string {
	if len(candidates) == 0 {
		return ""
	}

	if cached, ok, err := s.store.Get(prefScope, s.docType); err == nil && ok {
		if id := string(cached); hasCandidate(candidates, id) {
			return id
		}
	}

	for _, rule := range s.rules {
		if !rule.Matches(s.docType) {
			continue
		}
		if id := s.pickFromProvider(candidates, rule.ProviderID); id != "" {
			return id
		}
	}

	if s.nativeProvider != "" {
		if id := s.pickFromProvider(candidates, s.nativeProvider); id != "" {
			return id
		}
	}

	return candidates[0].Descriptor().ID
}

// pickFromProvider applies the preferred -> cached -> first fallback
// within one provider's candidates.
func (s *Selector) pickFromProvider(candidates []Kernel, providerID string) string {
	var fromProvider []Descriptor
	for _, k := range candidates {
		if d := k.Descriptor(); d.ProviderID == providerID {
			fromProvider = append(fromProvider, d)
		}
	}
	if len(fromProvider) == 0 {
		return ""
	}
	for _, d := range fromProvider {
		if d.Preferred {
			return d.ID
		}
	}
	if cached, ok, err := s.store.Get(prefScope, s.docType+"/"+providerID); err == nil && ok {
		id := string(cached)
		for _, d := range fromProvider {
			if d.ID == id {
				return id
			}
		}
	}
	return fromProvider[0].ID
}

func hasCandidate(candidates []Kernel, id string) bool {
	for _, k := range candidates {
		if k.Descriptor().ID == id {
			return true
		}
	}
	return false
}
