package replika

import (
	"github.com/cespare/xxhash"
	"github.com/puzpuzpuz/xsync/v3"
)

// NetworkIDLookup resolves application-assigned identifiers to replicas.
// The engine consults it for every incoming message; without one it
// falls back to scanning its registry, which is fine for small object
// counts.
type NetworkIDLookup interface {
	Find(id NetworkID) (Replica, bool)
}

// IDMap is the stock NetworkIDLookup: a concurrent identifier registry
// the application fills as it assigns identifiers. Safe for use from
// hooks and from outside the tick.
type IDMap struct {
	m *xsync.MapOf[NetworkID, Replica]
}

func NewIDMap() *IDMap {
	return &IDMap{m: xsync.NewMapOf[NetworkID, Replica]()}
}

// Assign binds the identifier. Rebinding an identifier to a different
// replica replaces the old binding.
func (im *IDMap) Assign(id NetworkID, r Replica) {
	if id == UnassignedID {
		return
	}
	im.m.Store(id, r)
}

func (im *IDMap) Find(id NetworkID) (Replica, bool) {
	return im.m.Load(id)
}

// Release forgets the identifier, typically alongside Dereference.
func (im *IDMap) Release(id NetworkID) {
	im.m.Delete(id)
}

// NameID derives a stable nonzero identifier from an entity name, for
// topologies where both sides can name objects deterministically instead
// of coordinating identifier assignment.
func NameID(name string) NetworkID {
	id := NetworkID(xxhash.Sum64String(name))
	if id == UnassignedID {
		id = 1
	}
	return id
}
