package replika

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReference(t *testing.T) {
	g := newRegistry()
	r := newTestReplica("a", 1)

	h1, added := g.reference(r)
	assert.True(t, added)
	h2, added := g.reference(r)
	assert.False(t, added)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, g.count())

	e, ok := g.get(h1)
	require.True(t, ok)
	assert.Equal(t, PermAll, e.perms)
}

func TestRegistryDereference(t *testing.T) {
	g := newRegistry()
	r := newTestReplica("a", 1)
	h, _ := g.reference(r)

	_, ok := g.dereference(r)
	assert.True(t, ok)
	_, ok = g.dereference(r)
	assert.False(t, ok)

	_, ok = g.get(h)
	assert.False(t, ok)
	assert.Equal(t, 0, g.count())
}

func TestRegistryHandlesAreNotReused(t *testing.T) {
	g := newRegistry()
	r1 := newTestReplica("a", 1)
	h1, _ := g.reference(r1)
	g.dereference(r1)

	r2 := newTestReplica("b", 2)
	h2, _ := g.reference(r2)
	assert.NotEqual(t, h1, h2)
}

func TestRegistryFindByID(t *testing.T) {
	g := newRegistry()
	r1 := newTestReplica("a", 10)
	r2 := newTestReplica("b", 20)
	g.reference(r1)
	g.reference(r2)

	h, e, ok := g.findByID(20)
	require.True(t, ok)
	assert.Equal(t, r2, e.replica.(*testReplica))
	got, _ := g.get(h)
	assert.Equal(t, e, got)

	_, _, ok = g.findByID(30)
	assert.False(t, ok)
}
