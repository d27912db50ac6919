package replika

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rollforge/replika/protocol"
	"github.com/rollforge/replika/utils"
)

// Sender is the transport half the engine writes to. All engine traffic
// for a peer goes out in tick-sized batches on the configured channel.
// The TCP transport carries one ordered stream and ignores the channel
// byte; it exists so a multi-channel transport can slot in.
type Sender interface {
	Send(addr string, channel byte, recs protocol.Records) error
}

// how many recently destroyed identifiers to remember; late traffic for
// them is dropped instead of resurrecting the object through the
// construction-resolution callback
const destroyedCacheSize = 1024

// Manager is the replication engine. One instance serves one transport
// peer; all state is in memory and rebuilds from fresh connections.
//
// The dispatch core is logically single-threaded: one mutex guards the
// registry and every participant, transport receive goroutines only
// append to pending queues under it, and Tick runs the three dispatch
// phases under it. Hooks run with the lock held and must not re-enter
// operations that mutate the same participant.
type Manager struct {
	mu   sync.Mutex
	log  utils.Logger
	opts Options

	reg   *registry
	parts *utils.OMap[string, *participant]

	cb     Callbacks
	lookup NetworkIDLookup
	sender Sender

	destroyed *lru.Cache[NetworkID, time.Time]

	clock func() time.Time
}

func NewManager(log utils.Logger, opts Options) *Manager {
	cache, _ := lru.New[NetworkID, time.Time](destroyedCacheSize)
	return &Manager{
		log:       log,
		opts:      opts,
		reg:       newRegistry(),
		parts:     utils.NewOMap[string, *participant](),
		destroyed: cache,
		clock:     time.Now,
	}
}

// SetCallbacks installs the engine-level callback set. Required before
// any construction can be received.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// SetNetworkIDLookup installs the identifier registry used to resolve
// incoming identifiers. Without one the engine falls back to scanning
// its own registry.
func (m *Manager) SetNetworkIDLookup(lookup NetworkIDLookup) {
	m.mu.Lock()
	m.lookup = lookup
	m.mu.Unlock()
}

// SetAutoParticipateNewConnections makes OnConnect add the new peer as a
// participant. Peers already connected when the toggle flips are not
// added retroactively. Defaults to false.
func (m *Manager) SetAutoParticipateNewConnections(auto bool) {
	m.mu.Lock()
	m.opts.AutoParticipate = auto
	m.mu.Unlock()
}

// SetAutoConstructToNewParticipants synthesizes construct commands for
// every registered replica when a participant is added. Defaults to
// false.
func (m *Manager) SetAutoConstructToNewParticipants(auto bool) {
	m.mu.Lock()
	m.opts.AutoConstruct = auto
	m.mu.Unlock()
}

// SetDefaultScope sets the in-scope bit newly constructed mirror entries
// start with. Defaults to false, meaning serialize traffic does not flow
// until a scope change.
func (m *Manager) SetDefaultScope(scope bool) {
	m.mu.Lock()
	m.opts.DefaultScope = scope
	m.mu.Unlock()
}

// SetSendChannel routes all engine sends onto the given transport
// channel. Defaults to 0.
func (m *Manager) SetSendChannel(channel byte) {
	m.mu.Lock()
	m.opts.SendChannel = channel
	m.mu.Unlock()
}

// OnAttach hands the engine its transport send side.
func (m *Manager) OnAttach(sender Sender) {
	m.mu.Lock()
	m.sender = sender
	m.mu.Unlock()
}

// OnConnect is the transport's new-connection event.
func (m *Manager) OnConnect(addr string) {
	m.mu.Lock()
	auto := m.opts.AutoParticipate
	m.mu.Unlock()
	if auto {
		m.AddParticipant(addr)
	}
	m.log.Info("connect", "addr", addr, "participate", auto)
}

// OnCloseConnection is the transport's connection-teardown event. The
// participant's pending state is flushed with no wire side effects.
func (m *Manager) OnCloseConnection(addr string) {
	m.RemoveParticipant(addr)
	m.log.Info("connection closed", "addr", addr)
}

// OnDisconnect is the transport's shutdown event; every participant is
// flushed.
func (m *Manager) OnDisconnect() {
	m.mu.Lock()
	for _, addr := range m.parts.Keys() {
		m.parts.Delete(addr)
	}
	participantGauge.Set(0)
	m.mu.Unlock()
	m.log.Info("transport disconnected, participants flushed")
}

func (m *Manager) participant(addr string) (*participant, bool) {
	return m.parts.Get(addr)
}

// resolve maps a network identifier to a registered replica, through the
// injected lookup when there is one. An object the lookup knows but the
// registry does not is treated as unknown; only referenced replicas get
// engine traffic.
func (m *Manager) resolve(id NetworkID) (Handle, *registered, bool) {
	if m.lookup != nil {
		r, ok := m.lookup.Find(id)
		if !ok {
			return 0, nil, false
		}
		return m.reg.lookup(r)
	}
	return m.reg.findByID(id)
}

// send pushes a batch to the transport, if one is attached.
func (m *Manager) send(addr string, recs protocol.Records) {
	if m.sender == nil || len(recs) == 0 {
		return
	}
	if err := m.sender.Send(addr, m.opts.SendChannel, recs); err != nil {
		m.log.Error("send failed", "addr", addr, "err", err)
	}
}
