package replika

import (
	"time"

	"github.com/rollforge/replika/utils"
)

// registered is the engine-owned record for one tracked replica.
type registered struct {
	replica         Replica
	perms           Perm
	lastDeserialize time.Time
}

// registry is the authoritative set of locally tracked replicas. Every
// handle stored in any participant's command list or mirror resolves
// here; dereferencing purges the handle from all participants before the
// entry is dropped, so a stale handle is never dereferenced blindly.
type registry struct {
	next    Handle
	entries *utils.OMap[Handle, *registered]
	handles map[Replica]Handle
}

func newRegistry() *registry {
	return &registry{
		entries: utils.NewOMap[Handle, *registered](),
		handles: make(map[Replica]Handle),
	}
}

// reference adds the replica if it is not tracked yet. Duplicate calls
// are no-ops. Returns the handle and whether the call added the entry.
func (g *registry) reference(r Replica) (Handle, bool) {
	if h, ok := g.handles[r]; ok {
		return h, false
	}
	g.next++
	h := g.next
	g.handles[r] = h
	g.entries.Set(h, &registered{replica: r, perms: PermAll})
	return h, true
}

func (g *registry) handleOf(r Replica) (Handle, bool) {
	h, ok := g.handles[r]
	return h, ok
}

func (g *registry) get(h Handle) (*registered, bool) {
	return g.entries.Get(h)
}

func (g *registry) lookup(r Replica) (Handle, *registered, bool) {
	h, ok := g.handles[r]
	if !ok {
		return 0, nil, false
	}
	e, _ := g.entries.Get(h)
	return h, e, e != nil
}

// dereference drops the entry. The caller purges participants first.
func (g *registry) dereference(r Replica) (Handle, bool) {
	h, ok := g.handles[r]
	if !ok {
		return 0, false
	}
	delete(g.handles, r)
	g.entries.Delete(h)
	return h, true
}

func (g *registry) count() int {
	return g.entries.Len()
}

func (g *registry) at(i int) (Replica, bool) {
	_, e, ok := g.entries.At(i)
	if !ok {
		return nil, false
	}
	return e.replica, true
}

// findByID scans for a replica carrying the given network identifier.
// Used when no NetworkIDLookup is injected; linear, but registries are
// small and the lookup path replaces this in real deployments.
func (g *registry) findByID(id NetworkID) (h Handle, e *registered, ok bool) {
	g.entries.Range(func(key Handle, val *registered) bool {
		if val.replica.NetworkID() == id {
			h, e, ok = key, val, true
			return false
		}
		return true
	})
	return
}
