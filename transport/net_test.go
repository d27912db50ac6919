package transport

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rollforge/replika/protocol"
	"github.com/rollforge/replika/utils"
)

// pipeSession splits a connection into an inbound and an outbound queue,
// the way the engine link does: the write loop feeds from out, the read
// loop drains into in.
type pipeSession struct {
	in, out *utils.FDQueue[protocol.Records]
}

func newPipeSession() *pipeSession {
	return &pipeSession{
		in:  utils.NewFDQueue[protocol.Records](1 << 20),
		out: utils.NewFDQueue[protocol.Records](1 << 20),
	}
}

func (s *pipeSession) Feed(ctx context.Context) (protocol.Records, error) {
	return s.out.Feed(ctx)
}

func (s *pipeSession) Drain(ctx context.Context, recs protocol.Records) error {
	return s.in.Drain(ctx, recs)
}

func (s *pipeSession) Close() error {
	_ = s.out.Close()
	return s.in.Close()
}

func TestNetConnect(t *testing.T) {
	loop := "tcp://127.0.0.1:32100"
	ctx := context.Background()

	log := utils.NewDefaultLogger(slog.LevelDebug)

	lSes := newPipeSession()
	l := NewNet(log, nil, func(_ string) Session { return lSes }, func(_ string) {})

	err := l.Listen(ctx, loop)
	assert.Nil(t, err)

	cSes := newPipeSession()
	c := NewNet(log, nil, func(_ string) Session { return cSes }, func(_ string) {})

	err = c.Connect(ctx, loop)
	assert.Nil(t, err)

	// send a record
	err = cSes.out.Drain(ctx, protocol.Records{protocol.Record('M', []byte("Hi there"))})
	assert.Nil(t, err)

	feedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rec, err := lSes.in.Feed(feedCtx)
	assert.Nil(t, err)
	assert.Greater(t, len(rec), 0)

	lit, body, rest := protocol.TakeAny(rec[0])
	assert.Equal(t, uint8('M'), lit)
	assert.Equal(t, "Hi there", string(body))
	assert.Equal(t, 0, len(rest))

	// respond to that
	err = lSes.out.Drain(ctx, protocol.Records{protocol.Record('M', []byte("Re: Hi there"))})
	assert.NoError(t, err)

	rerec, err := cSes.in.Feed(feedCtx)
	assert.NoError(t, err)
	assert.Greater(t, len(rerec), 0)

	relit, rebody, rerest := protocol.TakeAny(rerec[0])
	assert.Equal(t, uint8('M'), relit)
	assert.Equal(t, "Re: Hi there", string(rebody))
	assert.Equal(t, 0, len(rerest))

	// cleanup
	err = c.Close()
	assert.Nil(t, err)

	err = l.Close()
	assert.Nil(t, err)
}

func TestNetConnectDuplicate(t *testing.T) {
	log := utils.NewDefaultLogger(slog.LevelDebug)
	ctx := context.Background()

	c := NewNet(log, nil, func(_ string) Session { return newPipeSession() }, func(_ string) {})

	err := c.Connect(ctx, "tcp://127.0.0.1:32101")
	assert.Nil(t, err)
	err = c.Connect(ctx, "tcp://127.0.0.1:32101")
	assert.ErrorIs(t, err, ErrAddressDuplicated)

	_ = c.Close()
}

func TestParseAddr(t *testing.T) {
	ct, addr, err := parseAddr("tcp://10.0.0.1:9000")
	assert.Nil(t, err)
	assert.Equal(t, TCP, ct)
	assert.Equal(t, "10.0.0.1:9000", addr)

	ct, _, err = parseAddr("tls://10.0.0.1:9000")
	assert.Nil(t, err)
	assert.Equal(t, TLS, ct)

	_, _, err = parseAddr("quic://10.0.0.1:9000")
	assert.ErrorIs(t, err, ErrAddressInvalid)
}
