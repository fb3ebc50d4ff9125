package version

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestSingleVersionIsHead(t *testing.T) {
	g := NewGraph()
	v := uuid.New()
	g.Add(Version{ID: v})

	assert.Equal(t, []uuid.UUID{v}, g.Heads())
	assert.False(t, g.Conflicted())
}

func TestLinearHistory(t *testing.T) {
	vs := ids(3)
	g := NewGraph()
	g.Add(Version{ID: vs[0]})
	g.Add(Version{ID: vs[1], Supersedes: []uuid.UUID{vs[0]}})
	g.Add(Version{ID: vs[2], Supersedes: []uuid.UUID{vs[1]}})

	assert.Equal(t, []uuid.UUID{vs[2]}, g.Heads())
	assert.False(t, g.Conflicted())
}

func TestConcurrentEditsAreBothHeads(t *testing.T) {
	vs := ids(3)
	g := NewGraph()
	g.Add(Version{ID: vs[0]})
	// two concurrent edits of the original
	g.Add(Version{ID: vs[1], Supersedes: []uuid.UUID{vs[0]}})
	g.Add(Version{ID: vs[2], Supersedes: []uuid.UUID{vs[0]}})

	assert.Len(t, g.Heads(), 2)
	assert.True(t, g.Conflicted())

	// a resolution superseding both heads ends the conflict
	fix := uuid.New()
	g.Add(Version{ID: fix, Supersedes: []uuid.UUID{vs[1], vs[2]}})
	assert.Equal(t, []uuid.UUID{fix}, g.Heads())
	assert.False(t, g.Conflicted())
}

func TestDisjointOriginalsConflict(t *testing.T) {
	vs := ids(2)
	g := NewGraph()
	g.Add(Version{ID: vs[0]})
	g.Add(Version{ID: vs[1]})

	assert.Len(t, g.Heads(), 2)
	assert.True(t, g.Conflicted())
}

func TestOutOfOrderArrivalBuffers(t *testing.T) {
	vs := ids(3)
	g := NewGraph()

	// the newest edit arrives first; it must not take effect yet
	g.Add(Version{ID: vs[2], Supersedes: []uuid.UUID{vs[1]}})
	assert.Empty(t, g.Heads())
	assert.Equal(t, 1, g.Blocked())

	g.Add(Version{ID: vs[1], Supersedes: []uuid.UUID{vs[0]}})
	assert.Equal(t, 2, g.Blocked())

	// the original unblocks the whole chain
	g.Add(Version{ID: vs[0]})
	assert.Equal(t, 0, g.Blocked())
	assert.Equal(t, []uuid.UUID{vs[2]}, g.Heads())
}

func TestPartialResolutionKeepsRemainingHead(t *testing.T) {
	vs := ids(4)
	g := NewGraph()
	g.Add(Version{ID: vs[0]})
	g.Add(Version{ID: vs[1], Supersedes: []uuid.UUID{vs[0]}})
	g.Add(Version{ID: vs[2], Supersedes: []uuid.UUID{vs[0]}})
	g.Add(Version{ID: vs[3], Supersedes: []uuid.UUID{vs[0]}})

	assert.Len(t, g.Heads(), 3)

	// supersede only two of the three heads
	fix := uuid.New()
	g.Add(Version{ID: fix, Supersedes: []uuid.UUID{vs[1], vs[2]}})
	heads := g.Heads()
	assert.Len(t, heads, 2)
	assert.Contains(t, heads, fix)
	assert.Contains(t, heads, vs[3])
	assert.True(t, g.Conflicted())
}

func TestDuplicateAddIgnored(t *testing.T) {
	v := uuid.New()
	g := NewGraph()
	g.Add(Version{ID: v})
	g.Add(Version{ID: v})

	assert.Equal(t, []uuid.UUID{v}, g.Heads())
}

func TestOrderIndependence(t *testing.T) {
	// diamond plus a dangling branch, admitted in many shuffled orders
	vs := ids(5)
	versions := []Version{
		{ID: vs[0]},
		{ID: vs[1], Supersedes: []uuid.UUID{vs[0]}},
		{ID: vs[2], Supersedes: []uuid.UUID{vs[0]}},
		{ID: vs[3], Supersedes: []uuid.UUID{vs[1], vs[2]}},
		{ID: vs[4], Supersedes: []uuid.UUID{vs[1]}},
	}

	want := Build(versions).Heads()
	assert.Len(t, want, 2)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]Version, len(versions))
		copy(shuffled, versions)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		g := NewGraph()
		for _, v := range shuffled {
			g.Add(v)
		}
		assert.Equal(t, want, g.Heads())
	}
}
