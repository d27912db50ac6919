package replika

import (
	"github.com/rollforge/replika/protocol"
)

// targets resolves the (addr, broadcast) addressing convention: addr
// names one participant, or with broadcast set the one to exclude (empty
// addr excludes nobody).
func (m *Manager) targets(addr string, broadcast bool) (ps []*participant) {
	if !broadcast {
		if p, ok := m.parts.Get(addr); ok {
			ps = append(ps, p)
		}
		return
	}
	m.parts.Range(func(key string, p *participant) bool {
		if key != addr {
			ps = append(ps, p)
		}
		return true
	})
	return
}

// AddParticipant opts a connected peer into replication traffic. Only
// participants get engine packets, and engine packets from anyone else
// are dropped. Duplicate calls are ignored.
func (m *Manager) AddParticipant(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parts.Has(addr) {
		return
	}
	p := newParticipant(addr)
	p.callDownloadComplete = true
	m.parts.Set(addr, p)
	participantGauge.Set(float64(m.parts.Len()))

	if !m.opts.AutoConstruct {
		return
	}
	c := cmdExplicitConstruct
	if m.opts.DefaultScope {
		c |= cmdScopeTrue
	}
	for i := 0; i < m.reg.count(); i++ {
		r, _ := m.reg.at(i)
		if h, ok := m.reg.handleOf(r); ok {
			p.enqueue(h, c)
		}
	}
}

// RemoveParticipant drops the peer and flushes its queues with no wire
// side effects. Idempotent; also invoked on disconnect events.
func (m *Manager) RemoveParticipant(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeParticipantLocked(addr)
}

func (m *Manager) removeParticipantLocked(addr string) {
	if m.parts.Delete(addr) {
		participantGauge.Set(float64(m.parts.Len()))
	}
}

func (m *Manager) ParticipantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parts.Len()
}

// Construct signals that the object should be created on the targeted
// participants. Nothing happens until the next Tick, and nothing at all
// is created locally; the remote side gets the construction-resolution
// callback. Participants that already have the object are skipped.
func (m *Manager) Construct(r Replica, addr string, broadcast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.construct(r, addr, broadcast, false)
}

// ConstructImplicit queues a construction that assumes the object
// already exists remotely, as with statically placed level objects: a
// bare construction header goes out and no send hook runs, but the
// mirror entry is created so scope and serialize traffic can flow.
func (m *Manager) ConstructImplicit(r Replica, addr string, broadcast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.construct(r, addr, broadcast, true)
}

func (m *Manager) construct(r Replica, addr string, broadcast bool, implicit bool) {
	h, added := m.reg.reference(r)
	if added {
		replicaGauge.Set(float64(m.reg.count()))
	}
	c := cmdExplicitConstruct
	if implicit {
		c = cmdImplicitConstruct
	}
	for _, p := range m.targets(addr, broadcast) {
		if _, constructed := p.mirror[h]; constructed {
			continue
		}
		p.enqueue(h, c)
	}
}

// Destruct tells the targeted participants to tear the object down. The
// message goes out immediately to every target whose mirror holds the
// object, and all pending commands for it on those participants are
// cancelled. Nothing is deleted locally; pair with Dereference for that.
func (m *Manager) Destruct(r Replica, addr string, broadcast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, _, ok := m.reg.lookup(r)
	if !ok {
		return
	}
	id := r.NetworkID()
	for _, p := range m.targets(addr, broadcast) {
		if _, constructed := p.mirror[h]; !constructed {
			continue
		}
		s := protocol.NewStream(nil)
		res := r.SendDestruction(p.addr, s)
		if res == CancelProcess {
			continue
		}
		if id != UnassignedID {
			m.send(p.addr, protocol.Records{buildDestruction(id, s.Bytes())})
			sentCounter.WithLabelValues("destruction").Inc()
		}
		p.purge(h)
	}
}

// Reference makes sure the object is tracked so commands and incoming
// packets that name it are honored. Construct, SetScope and
// SignalSerializeNeeded reference implicitly; remotely created objects
// are referenced by the engine when the construction-resolution callback
// returns them. Duplicate calls are ignored.
func (m *Manager) Reference(r Replica) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, added := m.reg.reference(r); added {
		replicaGauge.Set(float64(m.reg.count()))
	}
}

// Dereference forgets the object: it is removed from the registry and
// purged from every participant's queues and mirrors. No messages are
// sent. Call it before freeing the object; the engine never detects a
// dangling replica on its own.
func (m *Manager) Dereference(r Replica) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.reg.handleOf(r)
	if !ok {
		return
	}
	m.parts.Range(func(_ string, p *participant) bool {
		p.purge(h)
		return true
	})
	m.reg.dereference(r)
	replicaGauge.Set(float64(m.reg.count()))
}

// SetScope changes the object's visibility on the targeted participants.
// Serialize messages only flow to participants that have the object in
// scope. A scope change to true also synthesizes an immediate serialize
// when the object has the serialize permission.
func (m *Manager) SetScope(r Replica, inScope bool, addr string, broadcast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, added := m.reg.reference(r)
	if added {
		replicaGauge.Set(float64(m.reg.count()))
	}
	c := cmdScopeFalse
	if inScope {
		c = cmdScopeTrue
	}
	for _, p := range m.targets(addr, broadcast) {
		p.enqueue(h, c)
	}
}

// SignalSerializeNeeded marks the object's state dirty for the targeted
// participants; the next Tick calls SendSerialize for each one that has
// the object constructed and in scope.
func (m *Manager) SignalSerializeNeeded(r Replica, addr string, broadcast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, added := m.reg.reference(r)
	if added {
		replicaGauge.Set(float64(m.reg.count()))
	}
	for _, p := range m.targets(addr, broadcast) {
		p.enqueue(h, cmdSerialize)
	}
}

// EnableReplicaInterfaces turns hook permission bits on for the object.
func (m *Manager) EnableReplicaInterfaces(r Replica, perms Perm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, e, ok := m.reg.lookup(r); ok {
		e.perms |= perms
	}
}

// DisableReplicaInterfaces turns hook permission bits off. Disabling
// receive bits on authoritative objects keeps remote peers from driving
// them.
func (m *Manager) DisableReplicaInterfaces(r Replica, perms Perm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, e, ok := m.reg.lookup(r); ok {
		e.perms &^= perms
	}
}

// IsConstructed reports whether a construction for the object has been
// emitted to (or received from) the participant and no destruction has.
func (m *Manager) IsConstructed(r Replica, addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.reg.handleOf(r)
	if !ok {
		return false
	}
	p, ok := m.parts.Get(addr)
	if !ok {
		return false
	}
	_, constructed := p.mirror[h]
	return constructed
}

// IsInScope reports the object's scope bit on the participant.
func (m *Manager) IsInScope(r Replica, addr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.reg.handleOf(r)
	if !ok {
		return false
	}
	p, ok := m.parts.Get(addr)
	if !ok {
		return false
	}
	mo := p.mirror[h]
	return mo != nil && mo.inScope
}

// ReplicaCount returns how many replicas are registered.
func (m *Manager) ReplicaCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.count()
}

// ReplicaAt enumerates registered replicas by index, 0 to
// ReplicaCount()-1. The order is arbitrary but stable within a tick;
// dereferencing shifts later indexes down.
func (m *Manager) ReplicaAt(i int) Replica {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, _ := m.reg.at(i)
	return r
}
