package ipm

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.viam.com/test"

	"aiobridge/logging"
	"aiobridge/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu   sync.Mutex
	envs []protocol.Envelope
	got  chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 64)}
}

func (c *collector) handle(env protocol.Envelope) {
	c.mu.Lock()
	c.envs = append(c.envs, env)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) waitFor(t *testing.T, n int) []protocol.Envelope {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for envelope %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.envs...)
}

func TestStreamChannelRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)
	hostConn, remoteConn := net.Pipe()
	host := NewStreamChannel(hostConn, 4, logger)
	remote := NewStreamChannel(remoteConn, 4, logger)

	atRemote := newCollector()
	remote.OnReceive(atRemote.handle)
	atHost := newCollector()
	host.OnReceive(atHost.handle)

	req := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindReadRequest, Block: true, Pin: 10}
	test.That(t, host.Send(req), test.ShouldBeNil)
	got := atRemote.waitFor(t, 1)
	test.That(t, got[0], test.ShouldResemble, req)

	ack := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindReadAck, Block: true, Pin: 10, Value: 512}
	test.That(t, remote.Send(ack), test.ShouldBeNil)
	got = atHost.waitFor(t, 1)
	test.That(t, got[0], test.ShouldResemble, ack)

	test.That(t, CloseAll(host, remote), test.ShouldBeNil)
}

func TestStreamChannelPreservesOrder(t *testing.T) {
	logger := logging.NewTestLogger(t)
	hostConn, remoteConn := net.Pipe()
	host := NewStreamChannel(hostConn, 32, logger)
	remote := NewStreamChannel(remoteConn, 32, logger)
	defer CloseAll(host, remote)

	atRemote := newCollector()
	remote.OnReceive(atRemote.handle)

	for i := uint32(0); i < 20; i++ {
		env := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindReadRequest, Pin: 10 + i%5, Value: i}
		test.That(t, host.Send(env), test.ShouldBeNil)
	}

	got := atRemote.waitFor(t, 20)
	for i, env := range got {
		test.That(t, env.Value, test.ShouldEqual, uint32(i))
	}
}

func TestStreamChannelSendAfterClose(t *testing.T) {
	hostConn, remoteConn := net.Pipe()
	defer remoteConn.Close()
	host := NewStreamChannel(hostConn, 1, logging.NewTestLogger(t))

	test.That(t, host.Close(), test.ShouldBeNil)
	test.That(t, host.Close(), test.ShouldBeNil)

	err := host.Send(protocol.Envelope{Kind: protocol.KindOpen})
	test.That(t, errors.Is(err, ErrNotReady), test.ShouldBeTrue)
}

// stuckPort never completes a Write until it is closed.
type stuckPort struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func (p *stuckPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

func (p *stuckPort) Write(b []byte) (int, error) {
	<-p.closed
	return 0, io.ErrClosedPipe
}

func (p *stuckPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func TestStreamChannelQueueFull(t *testing.T) {
	port := &stuckPort{closed: make(chan struct{})}
	ch := NewStreamChannel(port, 1, logging.NewTestLogger(t))
	defer ch.Close()

	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = ch.Send(protocol.Envelope{Kind: protocol.KindReadRequest, Pin: 10})
	}
	test.That(t, errors.Is(err, ErrQueueFull), test.ShouldBeTrue)
}

func TestPipeRoundTrip(t *testing.T) {
	host, remote := Pipe(4, logging.NewTestLogger(t))
	defer CloseAll(host, remote)

	atRemote := newCollector()
	remote.OnReceive(atRemote.handle)

	req := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindOpen, Block: true, Pin: 12}
	test.That(t, host.Send(req), test.ShouldBeNil)
	test.That(t, atRemote.waitFor(t, 1)[0], test.ShouldResemble, req)
}

func TestPipeQueueFullAndClosed(t *testing.T) {
	host, remote := Pipe(1, logging.NewTestLogger(t))

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	remote.OnReceive(func(protocol.Envelope) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	env := protocol.Envelope{Kind: protocol.KindReadRequest, Pin: 10}
	test.That(t, host.Send(env), test.ShouldBeNil)
	<-entered
	test.That(t, host.Send(env), test.ShouldBeNil)
	test.That(t, errors.Is(host.Send(env), ErrQueueFull), test.ShouldBeTrue)

	close(release)
	test.That(t, remote.Close(), test.ShouldBeNil)
	test.That(t, errors.Is(host.Send(env), ErrNotReady), test.ShouldBeTrue)
	test.That(t, host.Close(), test.ShouldBeNil)
}

func TestFakeChannelReplies(t *testing.T) {
	fake := NewFakeChannel()
	atHost := newCollector()
	fake.OnReceive(atHost.handle)
	fake.SetReply(func(sent protocol.Envelope) []protocol.Envelope {
		return []protocol.Envelope{{ID: sent.ID, Kind: protocol.KindOpenAck, Block: sent.Block, Pin: sent.Pin}}
	})

	test.That(t, fake.Send(protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindOpen, Block: true, Pin: 11}), test.ShouldBeNil)
	got := atHost.waitFor(t, 1)
	test.That(t, got[0].Kind, test.ShouldEqual, protocol.KindOpenAck)
	test.That(t, fake.Sent(), test.ShouldHaveLength, 1)

	fake.SetSendError(ErrNotReady)
	test.That(t, fake.Send(protocol.Envelope{}), test.ShouldEqual, ErrNotReady)
	test.That(t, fake.Sent(), test.ShouldHaveLength, 1)

	test.That(t, fake.Close(), test.ShouldBeNil)
	test.That(t, fake.Closed, test.ShouldBeTrue)
}

// idlePort reports one idle read timeout, then a single frame once ready is closed,
// then blocks until closed.
type idlePort struct {
	mu        sync.Mutex
	reads     int
	frame     []byte
	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func (p *idlePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	p.reads++
	n := p.reads
	p.mu.Unlock()

	switch n {
	case 1:
		return 0, io.EOF
	case 2:
		select {
		case <-p.ready:
			return copy(b, p.frame), nil
		case <-p.closed:
			return 0, io.EOF
		}
	}
	<-p.closed
	return 0, io.EOF
}

func (p *idlePort) Write(b []byte) (int, error) {
	return len(b), nil
}

func (p *idlePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func TestStreamChannelSurvivesIdleReadTimeout(t *testing.T) {
	ack := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindReadAck, Block: true, Pin: 10, Value: 512}
	frame, err := protocol.EncodeFrame(protocol.MessageDest, ack.Bytes())
	test.That(t, err, test.ShouldBeNil)

	port := &idlePort{frame: frame, ready: make(chan struct{}), closed: make(chan struct{})}
	ch := NewStreamChannel(port, 1, logging.NewTestLogger(t))
	defer ch.Close()

	got := newCollector()
	ch.OnReceive(got.handle)
	close(port.ready)
	test.That(t, got.waitFor(t, 1)[0], test.ShouldResemble, ack)

	port.mu.Lock()
	reads := port.reads
	port.mu.Unlock()
	test.That(t, reads, test.ShouldBeGreaterThanOrEqualTo, 2)
}
