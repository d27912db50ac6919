package replika

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollforge/replika/protocol"
)

// testCallbacks scripts the construction-resolution callback.
type testCallbacks struct {
	BaseCallbacks

	verdicts []ConstructVerdict // consumed in order; empty means ConstructOk
	ids      *IDMap

	constructed      []NetworkID
	downloadComplete int
}

func newTestCallbacks(ids *IDMap) *testCallbacks {
	return &testCallbacks{ids: ids}
}

func (c *testCallbacks) nextVerdict() ConstructVerdict {
	if len(c.verdicts) == 0 {
		return ConstructOk
	}
	v := c.verdicts[0]
	c.verdicts = c.verdicts[1:]
	return v
}

func (c *testCallbacks) ReceiveConstruction(m *Manager, from string, id NetworkID, ts time.Time, in *protocol.Stream) (ConstructVerdict, Replica) {
	v := c.nextVerdict()
	if v != ConstructOk {
		return v, nil
	}
	name, err := in.ReadString()
	if err != nil {
		return ConstructCancel, nil
	}
	r := newTestReplica(name, id)
	if c.ids != nil {
		c.ids.Assign(id, r)
	}
	c.constructed = append(c.constructed, id)
	return ConstructOk, r
}

func (c *testCallbacks) ReceiveDownloadComplete(m *Manager, from string, in *protocol.Stream) Result {
	c.downloadComplete++
	return ProcessingDone
}

func constructionRecord(id NetworkID, name string) []byte {
	s := protocol.NewStream(nil)
	s.WriteString(name)
	return buildConstruction(id, time.Time{}, false, s.Bytes())
}

func TestReceiveConstruction(t *testing.T) {
	m, _ := newTestManager(Options{})
	ids := NewIDMap()
	cb := newTestCallbacks(ids)
	m.SetCallbacks(cb)
	m.SetNetworkIDLookup(ids)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{constructionRecord(500, "rock")})
	m.Tick()

	require.Equal(t, []NetworkID{500}, cb.constructed)
	assert.Equal(t, 1, m.ReplicaCount())

	r, ok := ids.Find(500)
	require.True(t, ok)
	assert.True(t, m.IsConstructed(r, "peer"))
	assert.False(t, m.IsInScope(r, "peer"), "default scope is false")
}

func TestReceiveConstructionDuplicate(t *testing.T) {
	m, _ := newTestManager(Options{})
	ids := NewIDMap()
	cb := newTestCallbacks(ids)
	m.SetCallbacks(cb)
	m.SetNetworkIDLookup(ids)
	m.AddParticipant("peer")

	rec := constructionRecord(500, "rock")
	m.OnReceive("peer", protocol.Records{rec, rec})
	m.Tick()
	m.OnReceive("peer", protocol.Records{rec})
	m.Tick()

	assert.Equal(t, []NetworkID{500}, cb.constructed, "duplicates are dropped")
}

func TestReceiveConstructionDefer(t *testing.T) {
	m, _ := newTestManager(Options{})
	ids := NewIDMap()
	cb := newTestCallbacks(ids)
	cb.verdicts = []ConstructVerdict{ConstructDefer}
	m.SetCallbacks(cb)
	m.SetNetworkIDLookup(ids)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{
		constructionRecord(500, "first"),
		constructionRecord(501, "second"),
	})

	m.Tick()
	assert.Empty(t, cb.constructed, "defer stops the queue for this tick")

	m.Tick()
	assert.Equal(t, []NetworkID{500, 501}, cb.constructed, "deferred command keeps its place at the head")
}

func TestReceiveConstructionFatal(t *testing.T) {
	m, _ := newTestManager(Options{})
	cb := newTestCallbacks(nil)
	cb.verdicts = []ConstructVerdict{ConstructFatal}
	m.SetCallbacks(cb)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{constructionRecord(500, "bomb")})
	m.Tick()

	assert.Equal(t, 0, m.ParticipantCount(), "fatal removes the participant")
}

func TestReceiveFromNonParticipant(t *testing.T) {
	m, _ := newTestManager(Options{})
	cb := newTestCallbacks(nil)
	m.SetCallbacks(cb)

	m.OnReceive("stranger", protocol.Records{constructionRecord(500, "spoof")})
	m.Tick()

	assert.Empty(t, cb.constructed)
}

func TestReceiveDestruction(t *testing.T) {
	m, _ := newTestManager(Options{DefaultScope: true})
	ids := NewIDMap()
	m.SetCallbacks(newTestCallbacks(ids))
	m.SetNetworkIDLookup(ids)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{constructionRecord(500, "brief")})
	m.Tick()
	r, ok := ids.Find(500)
	require.True(t, ok)
	tr := r.(*testReplica)

	m.OnReceive("peer", protocol.Records{buildDestruction(500, nil)})
	m.Tick()
	assert.Equal(t, 1, tr.recvDestructions)
	assert.False(t, m.IsConstructed(r, "peer"))

	// a late construction for a recently destroyed identifier is dropped
	m.OnReceive("peer", protocol.Records{constructionRecord(500, "zombie")})
	m.Tick()
	assert.False(t, m.IsConstructed(r, "peer"))
}

func TestReceiveScopeAndSerialize(t *testing.T) {
	m, _ := newTestManager(Options{})
	ids := NewIDMap()
	m.SetCallbacks(newTestCallbacks(ids))
	m.SetNetworkIDLookup(ids)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{constructionRecord(500, "puppet")})
	m.Tick()
	r, _ := ids.Find(500)
	tr := r.(*testReplica)

	// serialize while out of scope is dropped
	m.OnReceive("peer", protocol.Records{buildSerialize(500, time.Time{}, false, 0, false, []byte{1})})
	m.Tick()
	assert.Equal(t, 0, tr.recvSerializes)

	m.OnReceive("peer", protocol.Records{buildScopeChange(500, true, []byte{1})})
	m.Tick()
	assert.Equal(t, 1, tr.recvScopeChanges)
	assert.True(t, m.IsInScope(r, "peer"))

	m.OnReceive("peer", protocol.Records{buildSerialize(500, time.Time{}, false, 0, false, []byte{1})})
	m.Tick()
	assert.Equal(t, 1, tr.recvSerializes)
}

func TestReceiveScopeUnknownIdentifier(t *testing.T) {
	m, _ := newTestManager(Options{})
	m.SetCallbacks(newTestCallbacks(nil))
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{buildScopeChange(999, true, []byte{1})})
	m.Tick() // the drop is silent and registers nothing
	assert.Equal(t, 0, m.ReplicaCount())
}

func TestReceiveSequencedSerializeDropsStale(t *testing.T) {
	m, _ := newTestManager(Options{SequencedSerialize: true})
	ids := NewIDMap()
	m.SetCallbacks(newTestCallbacks(ids))
	m.SetNetworkIDLookup(ids)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{constructionRecord(500, "seq")})
	m.Tick()
	m.OnReceive("peer", protocol.Records{buildScopeChange(500, true, []byte{1})})
	m.Tick()
	r, _ := ids.Find(500)
	tr := r.(*testReplica)

	now := time.Time{}
	m.OnReceive("peer", protocol.Records{
		buildSerialize(500, now, false, 2, true, []byte{1}),
		buildSerialize(500, now, false, 1, true, []byte{1}), // stale
		buildSerialize(500, now, false, 3, true, []byte{1}),
	})
	m.Tick()
	assert.Equal(t, 2, tr.recvSerializes)
}

func TestReceiveDownloadComplete(t *testing.T) {
	m, _ := newTestManager(Options{})
	cb := newTestCallbacks(nil)
	m.SetCallbacks(cb)
	m.AddParticipant("peer")

	m.OnReceive("peer", protocol.Records{buildDownloadComplete(nil)})
	m.Tick()
	assert.Equal(t, 1, cb.downloadComplete)
}

// the round-trip property: construct, scope=true, serialize from one
// side arrive as exactly one construction, one scope change and one
// serialize, in that order
func TestRoundTripOrdering(t *testing.T) {
	a, senderA := newTestManager(Options{})
	b := NewManager(testLogger(), Options{})
	ids := NewIDMap()
	cb := newTestCallbacks(ids)
	b.SetCallbacks(cb)
	b.SetNetworkIDLookup(ids)

	a.AddParticipant("b")
	b.AddParticipant("a")

	r := newTestReplica("ball", 900)
	a.Construct(r, "b", false)
	a.SetScope(r, true, "b", false)
	a.SignalSerializeNeeded(r, "b", false)
	a.Tick()

	// ship A's output to B as if the transport delivered it
	b.OnReceive("a", senderA.sent["b"])
	b.Tick()

	require.Equal(t, []NetworkID{900}, cb.constructed)
	remote, ok := ids.Find(900)
	require.True(t, ok)
	tr := remote.(*testReplica)
	assert.Equal(t, 1, tr.recvScopeChanges)
	assert.Equal(t, 1, tr.recvSerializes)
	assert.True(t, b.IsInScope(remote, "a"))
}
