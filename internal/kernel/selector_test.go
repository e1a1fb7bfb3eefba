package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellbook/cellbook/internal/kvstore"
)

func fake(id, provider string, preferred bool) *FuncKernel {
	return &FuncKernel{Desc: Descriptor{
		ID:              id,
		ProviderID:      provider,
		SupportsExecute: true,
		Preferred:       preferred,
	}}
}

func newRegistry(t *testing.T, kernels ...Kernel) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, k := range kernels {
		require.NoError(t, r.Register(k))
	}
	return r
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	r := newRegistry(t, fake("b", "p", false), fake("a", "p", false))

	assert.Error(t, r.Register(fake("a", "p", false)))

	ids := func() []string {
		var out []string
		for _, k := range r.Candidates() {
			out = append(out, k.Descriptor().ID)
		}
		return out
	}
	assert.Equal(t, []string{"b", "a"}, ids(), "registration order, not lexical")

	r.Unregister("b")
	assert.Equal(t, []string{"a"}, ids())
	r.Unregister("missing")
	assert.Equal(t, []string{"a"}, ids())
}

func TestResolveEmptyRegistry(t *testing.T) {
	s := NewSelector(NewRegistry(), kvstore.NewMemory(), nil, "notebook.cbnb", "", nil)
	defer s.Detach()

	var got []Availability
	s.OnAvailabilityChange(func(av Availability) { got = append(got, av) })

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, StateNoKernel, s.State())
	assert.Nil(t, s.ResolvedKernel())

	require.Len(t, got, 1)
	assert.Empty(t, got[0].Candidates, "failure surfaces as an empty candidate set")
}

func TestResolveFirstCandidateByDefault(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false), fake("k2", "p2", false))
	s := NewSelector(r, kvstore.NewMemory(), nil, "notebook.cbnb", "", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", id)
	assert.Equal(t, StateResolved, s.State())
}

func TestResolveAffinityRuleWins(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false), fake("k2", "p2", false))
	rule, err := CompileAffinity("notebook.*", "p2")
	require.NoError(t, err)

	s := NewSelector(r, kvstore.NewMemory(), []AffinityRule{rule}, "notebook.cbnb", "p1", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k2", id, "a matching rule beats the native provider")
}

func TestResolveRuleIgnoredWhenTypeDiffers(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false), fake("k2", "p2", false))
	rule, err := CompileAffinity("script.*", "p2")
	require.NoError(t, err)

	s := NewSelector(r, kvstore.NewMemory(), []AffinityRule{rule}, "notebook.cbnb", "p1", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", id, "native provider applies when no rule matches")
}

func TestResolvePreferredWithinProvider(t *testing.T) {
	r := newRegistry(t,
		fake("k1", "p1", false),
		fake("k2", "p1", true),
		fake("k3", "p1", false),
	)
	s := NewSelector(r, kvstore.NewMemory(), nil, "notebook.cbnb", "p1", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k2", id)
}

func TestResolveProviderCacheBreaksTies(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false), fake("k2", "p1", false))
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(prefScope, "notebook.cbnb/p1", []byte("k2")))

	s := NewSelector(r, store, nil, "notebook.cbnb", "p1", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k2", id)
}

func TestResolveCachedDocTypeWinsOutright(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false), fake("k2", "p2", false))
	rule, err := CompileAffinity("notebook.*", "p1")
	require.NoError(t, err)

	store := kvstore.NewMemory()
	require.NoError(t, store.Set(prefScope, "notebook.cbnb", []byte("k2")))

	s := NewSelector(r, store, []AffinityRule{rule}, "notebook.cbnb", "p1", nil)
	defer s.Detach()

	id, rerr := s.Resolve(context.Background())
	require.NoError(t, rerr)
	assert.Equal(t, "k2", id, "a cached choice still among candidates short-circuits rules")
}

func TestResolveStaleCacheIgnored(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false))
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(prefScope, "notebook.cbnb", []byte("gone")))

	s := NewSelector(r, store, nil, "notebook.cbnb", "", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", id)
}

func TestResolvePersistsBothCacheKeys(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false))
	store := kvstore.NewMemory()

	s := NewSelector(r, store, nil, "notebook.cbnb", "p1", nil)
	defer s.Detach()

	_, err := s.Resolve(context.Background())
	require.NoError(t, err)

	v, ok, err := store.Get(prefScope, "notebook.cbnb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k1", string(v))

	v, ok, err = store.Get(prefScope, "notebook.cbnb/p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k1", string(v))
}

func TestRegistryChangeTriggersResolution(t *testing.T) {
	r := NewRegistry()
	s := NewSelector(r, kvstore.NewMemory(), nil, "notebook.cbnb", "", nil)
	defer s.Detach()

	require.NoError(t, r.Register(fake("k1", "p1", false)))
	require.Eventually(t, func() bool {
		return s.State() == StateResolved
	}, 2*time.Second, 10*time.Millisecond)

	k := s.ResolvedKernel()
	require.NotNil(t, k)
	assert.Equal(t, "k1", k.Descriptor().ID)
}

func TestUnregisterResolvedKernelRebinds(t *testing.T) {
	r := newRegistry(t, fake("k1", "p1", false), fake("k2", "p2", false))
	s := NewSelector(r, kvstore.NewMemory(), nil, "notebook.cbnb", "", nil)
	defer s.Detach()

	id, err := s.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "k1", id)

	r.Unregister("k1")
	require.Eventually(t, func() bool {
		k := s.ResolvedKernel()
		return k != nil && k.Descriptor().ID == "k2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDetachStopsResolution(t *testing.T) {
	r := NewRegistry()
	s := NewSelector(r, kvstore.NewMemory(), nil, "notebook.cbnb", "", nil)
	s.Detach()

	require.NoError(t, r.Register(fake("k1", "p1", false)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateNoKernel, s.State())
	assert.Nil(t, s.ResolvedKernel())
}
