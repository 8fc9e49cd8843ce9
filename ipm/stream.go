package ipm

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"aiobridge/protocol"
)

// StreamChannel frames envelopes over a byte stream such as a serial port.
// Outgoing envelopes go through a bounded queue drained by a writer goroutine;
// a reader goroutine decodes frames and calls the receive hook.
type StreamChannel struct {
	port   io.ReadWriteCloser
	logger *zap.SugaredLogger

	txQueue chan protocol.Envelope

	handlerMu sync.RWMutex
	handler   Handler

	closeMu sync.RWMutex
	closed  bool

	decoder *protocol.FrameDecoder
	seq     uint8

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewStreamChannel starts the reader and writer goroutines on port.
func NewStreamChannel(port io.ReadWriteCloser, queueSize int, logger *zap.SugaredLogger) *StreamChannel {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &StreamChannel{
		port:     port,
		logger:   logger,
		txQueue:  make(chan protocol.Envelope, queueSize),
		decoder:  protocol.NewFrameDecoder(4 * protocol.MessageLengthMax),
		seq:      protocol.MessageDest,
		stopChan: make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Send queues env for the writer goroutine.
func (c *StreamChannel) Send(env protocol.Envelope) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrNotReady
	}

	select {
	case c.txQueue <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnReceive installs the receive hook.
func (c *StreamChannel) OnReceive(h Handler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// Close stops both goroutines and closes the port. Envelopes still queued are dropped.
func (c *StreamChannel) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	close(c.stopChan)
	// closing the port unblocks a reader parked in Read
	err := c.port.Close()
	c.wg.Wait()
	return err
}

func (c *StreamChannel) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case env := <-c.txQueue:
			if err := c.writeEnvelope(env); err != nil {
				c.logger.Warnw("dropping envelope", "envelope", env, "error", err)
			}
		}
	}
}

func (c *StreamChannel) writeEnvelope(env protocol.Envelope) error {
	msg, err := protocol.EncodeFrame(c.seq, env.Bytes())
	if err != nil {
		return err
	}

	n, err := c.port.Write(msg)
	if err != nil {
		return errors.Wrap(err, "write frame")
	}
	if n != len(msg) {
		return errors.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	c.seq = protocol.NextSequence(c.seq)
	return nil
}

func (c *StreamChannel) readLoop() {
	defer c.wg.Done()

	buffer := make([]byte, 256)
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		n, err := c.port.Read(buffer)
		if n > 0 {
			for _, frame := range c.decoder.Feed(buffer[:n]) {
				c.dispatch(frame)
			}
		}
		// a serial port with a read timeout reports an idle tick as (0, io.EOF);
		// only Close ends the loop
		if err != nil {
			select {
			case <-c.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func (c *StreamChannel) dispatch(frame protocol.Frame) {
	env, err := protocol.DecodeEnvelope(frame.Payload)
	if err != nil {
		c.logger.Warnw("discarding frame", "seq", frame.Sequence, "resyncs", c.decoder.Resyncs(), "error", err)
		return
	}

	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		c.logger.Debugw("no receive hook installed", "envelope", env)
		return
	}
	h(env)
}

// CloseAll closes every non-nil channel and combines their errors.
func CloseAll(channels ...Channel) error {
	var err error
	for _, ch := range channels {
		if ch != nil {
			err = multierr.Append(err, ch.Close())
		}
	}
	return err
}
