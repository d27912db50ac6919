package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rollforge/replika/protocol"
	"github.com/rollforge/replika/utils"
)

// Peer pumps one connection: the read loop reassembles TLV records from
// the socket and Drains them into the session, the write loop Feeds
// outgoing batches and writes them with writev.
type Peer struct {
	closed atomic.Bool
	wg     sync.WaitGroup
	cancel context.CancelFunc

	conn    net.Conn
	session Session
}

func (p *Peer) keepRead(ctx context.Context) error {
	var buf bytes.Buffer

	for !p.closed.Load() {
		if buf.Available() < TypicalMTU {
			buf.Grow(TypicalMTU)
		}

		idle := buf.AvailableBuffer()[:buf.Available()]
		if n, err := p.conn.Read(idle); err != nil {
			if errors.Is(err, io.EOF) {
				// remote closed cleanly
				return nil
			}
			return err
		} else {
			buf.Write(idle[:n])
		}

		recs, err := protocol.Split(&buf)
		if err != nil && !errors.Is(err, protocol.ErrIncomplete) {
			return err
		}
		if len(recs) == 0 {
			// a record is still being reassembled
			continue
		}

		if err := p.session.Drain(ctx, recs); err != nil {
			return err
		}
	}

	return nil
}

func (p *Peer) keepWrite(ctx context.Context) error {
	for !p.closed.Load() {
		recs, err := p.session.Feed(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, utils.ErrClosed) {
				return nil
			}
			return err
		}

		b := net.Buffers(recs)
		for len(b) > 0 {
			if _, err = b.WriteTo(p.conn); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Peer) Keep(ctx context.Context) (rerr, werr, cerr error) {
	p.wg.Add(2) // read & write
	defer p.wg.Add(-2)

	if p.closed.Load() {
		return nil, nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	readErrCh, writeErrCh := make(chan error, 1), make(chan error, 1)
	go func() { readErrCh <- p.keepRead(ctx) }()
	go func() { writeErrCh <- p.keepWrite(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case rerr = <-readErrCh:
			if errors.Is(rerr, net.ErrClosed) {
				// we probably closed it ourselves
				rerr = nil
			}
			// unblock the write loop waiting on its session
			cancel()
		case werr = <-writeErrCh:
			// closing the socket cancels the blocked read
			cerr = p.conn.Close()
			cancel()
		}

		p.closed.Store(true)
	}

	_ = p.session.Close()
	return
}

func (p *Peer) Close() {
	p.closed.Store(true)
	if p.cancel != nil {
		p.cancel()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.wg.Wait()
	p.conn = nil
}
