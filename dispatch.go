package replika

import (
	"time"

	"github.com/rollforge/replika/protocol"
)

// phase A outcome for one received command
type drainAction byte

const (
	drainNext  drainAction = iota // command consumed, keep draining
	drainDefer                    // requeue at head, stop draining this tick
	drainStop                     // abort this participant's tick
	drainFatal                    // abort and remove the participant
)

// Tick runs one dispatch cycle: per participant, drain the received
// commands, emit the outbound command list in dependency order, then the
// download-complete message if the initial construction batch is done.
// Drive it after the transport drains, typically on a fixed interval.
func (m *Manager) Tick() {
	m.TickAt(m.clock())
}

// TickAt is Tick with an explicit current time.
func (m *Manager) TickAt(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, addr := range m.parts.Keys() {
		p, ok := m.parts.Get(addr)
		if !ok {
			continue
		}
		m.tickParticipant(p, now)
	}
}

func (m *Manager) tickParticipant(p *participant, now time.Time) {
	switch m.drainReceived(p, now) {
	case drainFatal:
		m.removeParticipantLocked(p.addr)
		return
	case drainStop:
		return
	}

	out, abort := m.emitCommands(p, now)
	if !abort {
		out = m.emitDownloadComplete(p, now, out)
	}
	m.send(p.addr, out)
}

// drainReceived is Phase A: pop pending received commands in arrival
// order and dispatch each. A deferred construction goes back to the
// head so the order it guards is preserved across ticks.
func (m *Manager) drainReceived(p *participant, now time.Time) drainAction {
	for len(p.pending) > 0 {
		rc := p.pending[0]
		p.pending = p.pending[1:]
		switch m.processReceived(p, rc, now) {
		case drainDefer:
			p.pending = append([]*receivedCommand{rc}, p.pending...)
			return drainNext
		case drainStop:
			return drainStop
		case drainFatal:
			return drainFatal
		}
	}
	return drainNext
}

func (m *Manager) processReceived(p *participant, rc *receivedCommand, now time.Time) drainAction {
	switch rc.kind {
	case KindConstruction:
		return m.receiveConstruction(p, rc)
	case KindDestruction:
		return m.receiveDestruction(p, rc, now)
	case KindScopeChange:
		return m.receiveScopeChange(p, rc)
	case KindSerialize:
		return m.receiveSerialize(p, rc, now)
	case KindDownloadComplete:
		if m.cb != nil {
			if res := m.cb.ReceiveDownloadComplete(m, rc.from, protocol.NewStream(rc.payload)); res == StopProcessing {
				return drainStop
			}
		}
	}
	return drainNext
}

func (m *Manager) receiveConstruction(p *participant, rc *receivedCommand) drainAction {
	if _, ok := m.destroyed.Get(rc.id); ok {
		droppedCounter.WithLabelValues("destroyed").Inc()
		return drainNext
	}
	if _, _, ok := m.resolve(rc.id); ok {
		// remote constructed an identifier we already carry; our mirror
		// entry stays the record of truth
		droppedCounter.WithLabelValues("duplicate_construction").Inc()
		m.log.Debug("duplicate construction", "addr", rc.from, "id", rc.id)
		return drainNext
	}
	if m.cb == nil {
		droppedCounter.WithLabelValues("no_callbacks").Inc()
		return drainNext
	}

	verdict, r := m.cb.ReceiveConstruction(m, rc.from, rc.id, rc.ts, protocol.NewStream(rc.payload))
	switch verdict {
	case ConstructOk:
		if r == nil {
			m.log.Warn("construction accepted but no object returned", "addr", rc.from, "id", rc.id)
			return drainNext
		}
		h, added := m.reg.reference(r)
		if added {
			replicaGauge.Set(float64(m.reg.count()))
		}
		e, _ := m.reg.get(h)
		if e.perms&PermReceiveConstruction == 0 {
			droppedCounter.WithLabelValues("permission").Inc()
			return drainNext
		}
		p.mirror[h] = &remoteObject{inScope: m.opts.DefaultScope}
		// the object exists on both sides now; pending constructions
		// against this participant would be duplicates
		if mask, pending := p.commands.Get(h); pending {
			mask &^= cmdConstructAny
			if mask == 0 {
				p.commands.Delete(h)
			} else {
				p.commands.Set(h, mask)
			}
		}
	case ConstructDefer:
		deferredCounter.WithLabelValues("construction_receive").Inc()
		return drainDefer
	case ConstructCancel:
		droppedCounter.WithLabelValues("callback_cancel").Inc()
	case ConstructFatal:
		m.log.Error("construction callback fatal, removing participant", "addr", rc.from, "id", rc.id)
		return drainFatal
	}
	return drainNext
}

func (m *Manager) receiveDestruction(p *participant, rc *receivedCommand, now time.Time) drainAction {
	h, e, ok := m.resolve(rc.id)
	if !ok {
		droppedCounter.WithLabelValues("unknown_id").Inc()
		return drainNext
	}
	res := e.replica.ReceiveDestruction(rc.from, protocol.NewStream(rc.payload))
	delete(p.mirror, h)
	delete(p.serialOut, h)
	m.destroyed.Add(rc.id, now)
	if res == StopProcessing {
		return drainStop
	}
	return drainNext
}

func (m *Manager) receiveScopeChange(p *participant, rc *receivedCommand) drainAction {
	h, e, ok := m.resolve(rc.id)
	if !ok {
		droppedCounter.WithLabelValues("unknown_id").Inc()
		return drainNext
	}
	mo := p.mirror[h]
	if mo == nil {
		droppedCounter.WithLabelValues("not_constructed").Inc()
		return drainNext
	}
	if e.perms&PermReceiveScopeChange == 0 {
		droppedCounter.WithLabelValues("permission").Inc()
		return drainNext
	}
	res := e.replica.ReceiveScopeChange(rc.from, rc.inScope, protocol.NewStream(rc.payload))
	switch res {
	case CancelProcess:
		return drainNext
	case StopProcessing:
		mo.inScope = rc.inScope
		return drainStop
	}
	mo.inScope = rc.inScope
	return drainNext
}

func (m *Manager) receiveSerialize(p *participant, rc *receivedCommand, now time.Time) drainAction {
	h, e, ok := m.resolve(rc.id)
	if !ok {
		droppedCounter.WithLabelValues("unknown_id").Inc()
		return drainNext
	}
	mo := p.mirror[h]
	if mo == nil || !mo.inScope {
		droppedCounter.WithLabelValues("out_of_scope").Inc()
		return drainNext
	}
	if e.perms&PermSerialize == 0 {
		droppedCounter.WithLabelValues("permission").Inc()
		return drainNext
	}
	if m.opts.SequencedSerialize && rc.hasSeq {
		if last, seen := p.serialIn[rc.id]; seen && rc.seq <= last {
			droppedCounter.WithLabelValues("stale_serialize").Inc()
			return drainNext
		}
		p.serialIn[rc.id] = rc.seq
	}
	res := e.replica.ReceiveSerialize(rc.from, rc.ts, protocol.NewStream(rc.payload))
	if res == ProcessingDone {
		e.lastDeserialize = now
	}
	if res == StopProcessing {
		return drainStop
	}
	return drainNext
}

// emitCommands is Phase B: walk the outbound command list in order. For
// each entry the active flags run in dependency order, explicit
// construction first, then implicit, scope change, serialize; a
// cancelled construction cancels the dependents, a missing network
// identifier defers the whole entry to the next tick.
func (m *Manager) emitCommands(p *participant, now time.Time) (out protocol.Records, abort bool) {
	for _, h := range p.commands.Keys() {
		mask, ok := p.commands.Get(h)
		if !ok {
			continue
		}
		e, ok := m.reg.get(h)
		if !ok {
			// registry purge should have removed this entry already
			p.commands.Delete(h)
			continue
		}
		r := e.replica

		// permission short-circuit clears only the gated flags
		if mask&cmdExplicitConstruct != 0 && e.perms&PermSendConstruction == 0 {
			mask &^= cmdExplicitConstruct
		}
		if mask&cmdScopeAny != 0 && e.perms&PermSendScopeChange == 0 {
			mask &^= cmdScopeAny
		}
		if mask&cmdSerialize != 0 && e.perms&PermSerialize == 0 {
			mask &^= cmdSerialize
		}
		if mask == 0 {
			p.commands.Delete(h)
			continue
		}

		id := r.NetworkID()
		if id == UnassignedID {
			// every wire message names the identifier; wait for it
			deferredCounter.WithLabelValues("no_network_id").Inc()
			p.commands.Set(h, mask)
			continue
		}

		stop := false

		if mask&cmdExplicitConstruct != 0 {
			s := protocol.NewStream(nil)
			res := r.SendConstruction(now, p.addr, s)
			if res == CancelProcess || s.Len() == 0 {
				// construction cancelled: its dependents go with it
				cancelledCounter.WithLabelValues("construction").Inc()
				p.commands.Delete(h)
				continue
			}
			out = append(out, buildConstruction(id, now, s.Stamped(), s.Bytes()))
			sentCounter.WithLabelValues("construction").Inc()
			p.mirror[h] = &remoteObject{inScope: m.opts.DefaultScope, lastSend: now}
			mask &^= cmdConstructAny
			stop = res == StopProcessing
		} else if mask&cmdImplicitConstruct != 0 {
			out = append(out, buildConstruction(id, now, false, nil))
			sentCounter.WithLabelValues("construction").Inc()
			p.mirror[h] = &remoteObject{inScope: m.opts.DefaultScope, lastSend: now}
			mask &^= cmdImplicitConstruct
		}

		if !stop && mask&cmdScopeAny != 0 {
			want := mask&cmdScopeTrue != 0
			mo := p.mirror[h]
			if mo == nil || mo.inScope == want {
				// not constructed there, or already in the commanded state
				mask &^= cmdScopeAny
			} else {
				s := protocol.NewStream(nil)
				res := r.SendScopeChange(want, p.addr, s)
				if res == CancelProcess || s.Len() == 0 {
					cancelledCounter.WithLabelValues("scope_change").Inc()
					mask &^= cmdScopeAny
				} else {
					out = append(out, buildScopeChange(id, want, s.Bytes()))
					sentCounter.WithLabelValues("scope_change").Inc()
					mo.inScope = want
					mask &^= cmdScopeAny
					if want && e.perms&PermSerialize != 0 {
						mask |= cmdSerialize
					}
					stop = res == StopProcessing
				}
			}
		}

		if !stop && mask&cmdSerialize != 0 {
			mo := p.mirror[h]
			if mo == nil || !mo.inScope {
				mask &^= cmdSerialize
			} else {
				s := protocol.NewStream(nil)
				res := r.SendSerialize(now, p.addr, s)
				switch {
				case res == CancelProcess:
					cancelledCounter.WithLabelValues("serialize").Inc()
					mask &^= cmdSerialize
				case s.Len() == 0:
					// nothing to say this tick; the signal stands
				default:
					var seq uint32
					hasSeq := false
					if m.opts.SequencedSerialize {
						p.serialOut[h]++
						seq, hasSeq = p.serialOut[h], true
					}
					out = append(out, buildSerialize(id, now, s.Stamped(), seq, hasSeq, s.Bytes()))
					sentCounter.WithLabelValues("serialize").Inc()
					mo.lastSend = now
					mask &^= cmdSerialize
					stop = res == StopProcessing
				}
			}
		}

		if mask == 0 {
			p.commands.Delete(h)
		} else {
			p.commands.Set(h, mask)
		}
		if stop {
			return out, true
		}
	}
	return out, false
}

// emitDownloadComplete is Phase C: once the command list holds no more
// construction entries, tell the participant the initial download is
// done. Fires at most once per participant.
func (m *Manager) emitDownloadComplete(p *participant, now time.Time, out protocol.Records) protocol.Records {
	if !p.callDownloadComplete || p.hasConstructPending() {
		return out
	}
	p.callDownloadComplete = false
	s := protocol.NewStream(nil)
	if m.cb != nil {
		if res := m.cb.SendDownloadComplete(m, p.addr, now, s); res == CancelProcess {
			return out
		}
	}
	sentCounter.WithLabelValues("download_complete").Inc()
	return append(out, buildDownloadComplete(s.Bytes()))
}
