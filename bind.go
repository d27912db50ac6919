package replika

import (
	"context"
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rollforge/replika/protocol"
	"github.com/rollforge/replika/transport"
	"github.com/rollforge/replika/utils"
)

// enough for several ticks of a busy world; a peer further behind than
// this is torn down rather than allowed to stall everyone
const maxOutQueueBytes = 1 << 22

var ErrPeerUnknown = errors.New("no connection for participant")

// Link adapts a Manager to the transport layer. Give its Install and
// Destroy methods to transport.NewNet; it owns one outbound queue per
// connection, feeds the write loops from them, and drains incoming
// records into the manager.
type Link struct {
	m      *Manager
	queues *xsync.MapOf[string, *utils.FDQueue[protocol.Records]]
}

func NewLink(m *Manager) *Link {
	l := &Link{
		m:      m,
		queues: xsync.NewMapOf[string, *utils.FDQueue[protocol.Records]](),
	}
	m.OnAttach(l)
	return l
}

// Install is the transport install callback.
func (l *Link) Install(name string) transport.Session {
	out := utils.NewFDQueue[protocol.Records](maxOutQueueBytes)
	l.queues.Store(name, out)
	l.m.OnConnect(name)
	return &linkSession{name: name, link: l, out: out}
}

// Destroy is the transport destroy callback.
func (l *Link) Destroy(name string) {
	if out, ok := l.queues.LoadAndDelete(name); ok {
		_ = out.Close()
	}
	l.m.OnCloseConnection(name)
}

// Send implements Sender. The TCP transport is a single ordered stream,
// so the channel byte is accepted and ignored here.
func (l *Link) Send(addr string, _ byte, recs protocol.Records) error {
	out, ok := l.queues.Load(addr)
	if !ok {
		return ErrPeerUnknown
	}
	err := out.Drain(context.Background(), recs)
	if errors.Is(err, utils.ErrOverflow) {
		// closing the queue ends the write loop, which tears the peer down
		_ = out.Close()
	}
	return err
}

type linkSession struct {
	name string
	link *Link
	out  *utils.FDQueue[protocol.Records]
}

func (s *linkSession) Feed(ctx context.Context) (protocol.Records, error) {
	return s.out.Feed(ctx)
}

func (s *linkSession) Drain(ctx context.Context, recs protocol.Records) error {
	s.link.m.OnReceive(s.name, recs)
	return nil
}

func (s *linkSession) Close() error {
	return s.out.Close()
}
