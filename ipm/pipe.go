package ipm

import (
	"sync"

	"go.uber.org/zap"

	"aiobridge/protocol"
)

// PipeEnd is one side of an in-memory channel pair. Each end delivers to its hook from
// its own goroutine, so the two sides never share an execution context.
type PipeEnd struct {
	name   string
	logger *zap.SugaredLogger
	peer   *PipeEnd
	inbox  chan protocol.Envelope

	handlerMu sync.RWMutex
	handler   Handler

	closeMu sync.RWMutex
	closed  bool

	stopChan chan struct{}
	doneChan chan struct{}
}

// Pipe returns two connected ends, each with an inbox of queueSize envelopes.
func Pipe(queueSize int, logger *zap.SugaredLogger) (*PipeEnd, *PipeEnd) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := newPipeEnd("host", queueSize, logger)
	b := newPipeEnd("remote", queueSize, logger)
	a.peer, b.peer = b, a

	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

func newPipeEnd(name string, queueSize int, logger *zap.SugaredLogger) *PipeEnd {
	return &PipeEnd{
		name:     name,
		logger:   logger.Named(name),
		inbox:    make(chan protocol.Envelope, queueSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Send queues env in the peer's inbox.
func (p *PipeEnd) Send(env protocol.Envelope) error {
	if p.isClosed() || p.peer.isClosed() {
		return ErrNotReady
	}

	select {
	case p.peer.inbox <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnReceive installs the receive hook.
func (p *PipeEnd) OnReceive(h Handler) {
	p.handlerMu.Lock()
	p.handler = h
	p.handlerMu.Unlock()
}

// Close stops this end's delivery goroutine. The peer keeps running but its sends fail.
func (p *PipeEnd) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	p.closeMu.Unlock()

	close(p.stopChan)
	<-p.doneChan
	return nil
}

func (p *PipeEnd) isClosed() bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	return p.closed
}

func (p *PipeEnd) deliverLoop() {
	defer close(p.doneChan)

	for {
		select {
		case <-p.stopChan:
			return
		case env := <-p.inbox:
			p.handlerMu.RLock()
			h := p.handler
			p.handlerMu.RUnlock()
			if h == nil {
				p.logger.Debugw("no receive hook installed, dropping", "envelope", env)
				continue
			}
			h(env)
		}
	}
}
