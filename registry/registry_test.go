package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimo-os/runtime/procedure"
	"github.com/mimo-os/runtime/procstore"
)

func linearDefinition() *procedure.Definition {
	return &procedure.Definition{
		InitialState: "start",
		States: map[string]*procedure.StateDef{
			"start": {
				Action:      &procedure.ActionDef{Handler: "collect"},
				Transitions: []procedure.Transition{{Event: "success", Target: "done"}},
			},
			"done": {},
		},
	}
}

// countingStore wraps a ProcedureStore and counts storage reads.
type countingStore struct {
	procstore.ProcedureStore
	gets int
}

func (s *countingStore) GetProcedure(ctx context.Context, name, version string) (*procedure.Procedure, error) {
	s.gets++
	return s.ProcedureStore.GetProcedure(ctx, name, version)
}

type staticResolver map[string]bool

func (r staticResolver) Has(id string) bool { return r[id] }

func TestRegistry_RegisterValid(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	rec, err := r.Register(ctx, RegisterInput{
		Name:       "onboarding",
		Version:    "1.0.0",
		Definition: linearDefinition(),
		MaxRetries: 2,
		TimeoutMs:  30000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.Active)
	assert.Contains(t, rec.Hash, "sha256:")
	assert.Equal(t, 2, rec.MaxRetries)
}

func TestRegistry_RegisterInvalidDefinition(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	def := linearDefinition()
	def.States["start"].Transitions = []procedure.Transition{{Event: "success", Target: "missing"}}

	_, err := r.Register(ctx, RegisterInput{Name: "bad", Version: "1.0.0", Definition: def})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Reasons)
}

func TestRegistry_RegisterRejectsBadVersion(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	for _, version := range []string{"", "1.0", "latest", "banana"} {
		_, err := r.Register(ctx, RegisterInput{Name: "p", Version: version, Definition: linearDefinition()})
		assert.Error(t, err, "version %q should be rejected", version)
	}

	// A 'v' prefix is fine.
	_, err := r.Register(ctx, RegisterInput{Name: "p", Version: "v1.2.3", Definition: linearDefinition()})
	assert.NoError(t, err)
}

func TestRegistry_RegisterChecksHandlers(t *testing.T) {
	r := New(procstore.NewMemoryStore(), WithHandlerResolver(staticResolver{"collect": true}))
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterInput{Name: "ok", Version: "1.0.0", Definition: linearDefinition()})
	require.NoError(t, err)

	def := linearDefinition()
	def.States["start"].Action.Handler = "unknown_handler"
	_, err = r.Register(ctx, RegisterInput{Name: "bad", Version: "1.0.0", Definition: def})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reasons[0], "unknown_handler")
}

func TestRegistry_LoadCachesByNameVersion(t *testing.T) {
	store := &countingStore{ProcedureStore: procstore.NewMemoryStore()}
	r := New(store)
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterInput{Name: "p", Version: "1.0.0", Definition: linearDefinition()})
	require.NoError(t, err)

	first, err := r.Load(ctx, "p", "1.0.0")
	require.NoError(t, err)
	second, err := r.Load(ctx, "p", "1.0.0")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, store.gets, "cache hit must not read storage")
	assert.Equal(t, 1, r.CacheSize())
}

func TestRegistry_LoadNotFound(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	_, err := r.Load(ctx, "ghost", "1.0.0")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Load(ctx, "ghost", VersionLatest)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_LoadLatestPicksHighestActive(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	for _, version := range []string{"1.0.0", "1.10.0", "1.2.0"} {
		_, err := r.Register(ctx, RegisterInput{Name: "p", Version: version, Definition: linearDefinition()})
		require.NoError(t, err)
	}

	rec, err := r.Load(ctx, "p", VersionLatest)
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", rec.Version)

	// Deactivating the highest version shifts "latest" down.
	_, err = r.Deactivate(ctx, "p", "1.10.0")
	require.NoError(t, err)

	rec, err = r.Load(ctx, "p", VersionLatest)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", rec.Version)
}

func TestRegistry_LoadEmptyVersionMeansLatest(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterInput{Name: "p", Version: "3.0.0", Definition: linearDefinition()})
	require.NoError(t, err)

	rec, err := r.Load(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", rec.Version)
}

func TestRegistry_DeactivatedVersionIsInvisible(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterInput{Name: "p", Version: "1.0.0", Definition: linearDefinition()})
	require.NoError(t, err)

	// Populate the cache, then deactivate.
	_, err = r.Load(ctx, "p", "1.0.0")
	require.NoError(t, err)

	_, err = r.Deactivate(ctx, "p", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, r.CacheSize(), "deactivation must invalidate the cache entry")

	_, err = r.Load(ctx, "p", "1.0.0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterInvalidatesName(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterInput{Name: "p", Version: "1.0.0", Definition: linearDefinition()})
	require.NoError(t, err)
	_, err = r.Load(ctx, "p", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, 1, r.CacheSize())

	_, err = r.Register(ctx, RegisterInput{Name: "p", Version: "2.0.0", Definition: linearDefinition()})
	require.NoError(t, err)
	assert.Equal(t, 0, r.CacheSize())

	rec, err := r.Load(ctx, "p", VersionLatest)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", rec.Version)
}

func TestRegistry_LoadByHash(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	rec, err := r.Register(ctx, RegisterInput{Name: "p", Version: "1.0.0", Definition: linearDefinition()})
	require.NoError(t, err)

	got, err := r.LoadByHash(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = r.LoadByHash(ctx, "sha256:0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_DuplicateVersion(t *testing.T) {
	r := New(procstore.NewMemoryStore())
	ctx := context.Background()

	_, err := r.Register(ctx, RegisterInput{Name: "p", Version: "1.0.0", Definition: linearDefinition()})
	require.NoError(t, err)

	_, err = r.Register(ctx, RegisterInput{Name: "p", Version: "1.0.0", Definition: linearDefinition()})
	assert.ErrorIs(t, err, procstore.ErrVersionExists)
}
