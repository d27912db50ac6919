package replika

import (
	"github.com/rollforge/replika/protocol"
)

// OnReceive decodes a batch of incoming records from one peer and queues
// them on that peer's participant. No application callback fires here:
// payload interpretation waits for the next Tick, which is what lets the
// application assign a network identifier, or construct a missing
// object, between arrival and dispatch.
//
// Packets from peers that are not participants are dropped silently, as
// are records that do not parse. Safe to call from transport goroutines.
func (m *Manager) OnReceive(from string, recs protocol.Records) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.parts.Get(from)
	if !ok {
		droppedCounter.WithLabelValues("unknown_sender").Add(float64(len(recs)))
		m.log.Debug("drop from non-participant", "addr", from, "records", len(recs))
		return
	}

	for _, rec := range recs {
		rc, err := parseMessage(from, rec, m.opts.SequencedSerialize)
		if err != nil {
			droppedCounter.WithLabelValues("malformed").Inc()
			m.log.Error("drop malformed message", "addr", from, "err", err)
			continue
		}
		receivedCounter.WithLabelValues(kindLabel(rc.kind)).Inc()
		p.pending = append(p.pending, rc)
	}
}

func kindLabel(kind byte) string {
	switch kind {
	case KindConstruction:
		return "construction"
	case KindDestruction:
		return "destruction"
	case KindScopeChange:
		return "scope_change"
	case KindSerialize:
		return "serialize"
	case KindDownloadComplete:
		return "download_complete"
	default:
		return "unknown"
	}
}
