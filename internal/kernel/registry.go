package kernel

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry holds the kernels supplied by extension providers. It is an
// explicit object passed into the editor controller at construction,
// scoped to the application lifetime; there is no module-level default.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
	order   []string
	subs    []func()
}

func NewRegistry() *Registry {
	return &Registry{kernels: map[string]Kernel{}}
}

func (r *Registry) Register(k Kernel) error {
	id := k.Descriptor().ID
	r.mu.Lock()
	if _, ok := r.kernels[id]; ok {
		r.mu.Unlock()
		return errors.Errorf("kernel %s already registered", id)
	}
	r.kernels[id] = k
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.notify()
	return nil
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	if _, ok := r.kernels[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.kernels, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.notify()
}

func (r *Registry) Get(id string) (Kernel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[id]
	return k, ok
}

// Candidates returns all kernels in registration order. Selection
// depends on this order being stable.
func (r *Registry) Candidates() []Kernel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kernel, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.kernels[id])
	}
	return out
}

// OnChange subscribes to candidate-set changes.
func (r *Registry) OnChange(fn func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
	idx := len(r.subs) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.subs[idx] = nil
	}
}

func (r *Registry) notify() {
	r.mu.RLock()
	subs := append([]func(){}, r.subs...)
	r.mu.RUnlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}
