package displayloop

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_lookupMatchesLastOperation(t *testing.T) {
	r := NewRegistry()
	model := make(map[WindowID]bool)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		id := WindowID(rng.Intn(16) + 1)
		if rng.Intn(2) == 0 {
			r.Insert(&Window{id: id})
			model[id] = true
		} else {
			remaining := r.Remove(id)
			delete(model, id)
			require.Equal(t, len(model), remaining)
		}

		for id := WindowID(1); id <= 16; id++ {
			w, ok := r.Lookup(id)
			require.Equal(t, model[id], ok, "id %d after op %d", id, i)
			if ok {
				require.Equal(t, id, w.ID())
			}
		}
		require.Equal(t, len(model), r.Len())
	}
}

func TestRegistry_staleRefAfterReuse(t *testing.T) {
	r := NewRegistry()

	old := &Window{id: 7}
	r.Insert(old)
	ref := old.Ref()

	got, ok := r.Resolve(ref)
	require.True(t, ok)
	assert.Same(t, old, got)

	assert.Equal(t, 0, r.Remove(7))
	assert.True(t, old.Destroyed())
	_, ok = r.Resolve(ref)
	assert.False(t, ok)

	reused := &Window{id: 7}
	r.Insert(reused)
	_, ok = r.Resolve(ref)
	assert.False(t, ok, "stale ref must not resolve to the new window")

	got, ok = r.Resolve(reused.Ref())
	require.True(t, ok)
	assert.Same(t, reused, got)

	_, ok = r.Resolve(WindowRef{})
	assert.False(t, ok)
}

func TestRegistry_snapshotIsOwned(t *testing.T) {
	r := NewRegistry()
	for _, id := range []WindowID{30, 10, 20} {
		r.Insert(&Window{id: id})
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, WindowID(10), snap[0].ID())
	assert.Equal(t, WindowID(20), snap[1].ID())
	assert.Equal(t, WindowID(30), snap[2].ID())

	for _, w := range snap {
		r.Remove(w.ID())
		r.Insert(&Window{id: w.ID() + 1})
	}
	assert.Len(t, snap, 3)
	assert.Equal(t, 3, r.Len())
	_, ok := r.Lookup(10)
	assert.False(t, ok)
}

func TestRegistry_removeUnknown(t *testing.T) {
	r := NewRegistry()
	r.Insert(&Window{id: 1})
	assert.Equal(t, 1, r.Remove(2))
	assert.Equal(t, 0, r.Remove(1))
	assert.Equal(t, 0, r.Remove(1))
}
