// Package aio reads analog-input pins owned by another core.
//
// The Engine turns handle operations into envelopes on an ipm.Channel and matches the
// replies. Blocking requests share a single wait signal and are serialized, so only one is
// ever outstanding. Asynchronous reads register a per-pin callback; replies are queued and
// the callbacks run later on whichever goroutine calls Serve or RunPending, never on the
// channel's receive goroutine.
package aio

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"aiobridge/ipm"
	"aiobridge/protocol"
)

// Defaults for Options fields left at zero.
const (
	DefaultTimeout          = 500 * time.Millisecond
	DefaultQueueSize        = 16
	DefaultMaxSubscriptions = 5
)

// Options tunes an Engine.
type Options struct {
	// Timeout bounds every blocking request.
	Timeout time.Duration
	// QueueSize is the depth of the deferred callback queue.
	QueueSize int
	// MaxSubscriptions caps live async registrations.
	MaxSubscriptions int
	// Clock drives timeouts; tests pass a mock.
	Clock clock.Clock
}

// Engine multiplexes one channel across blocking callers and async subscribers.
type Engine struct {
	ch      ipm.Channel
	logger  *zap.SugaredLogger
	clock   clock.Clock
	timeout time.Duration

	// blockMu is the single blocking slot: arm, send, wait, consume.
	blockMu sync.Mutex
	signal  chan struct{}

	store pinStore
	reg   *registry
	work  chan work
}

// NewEngine wires an engine to ch and installs its receive hook.
func NewEngine(ch ipm.Channel, logger *zap.SugaredLogger, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxSubscriptions <= 0 {
		opts.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	e := &Engine{
		ch:      ch,
		logger:  logger,
		clock:   opts.Clock,
		timeout: opts.Timeout,
		signal:  make(chan struct{}, 1),
		reg:     newRegistry(opts.MaxSubscriptions),
		work:    make(chan work, opts.QueueSize),
	}
	ch.OnReceive(e.handleEnvelope)
	return e
}

// Open asks the peripheral core to prepare a pin and returns a handle once it acknowledges.
// The pin number itself is not range checked here.
func (e *Engine) Open(ctx context.Context, opts OpenOptions) (*PinHandle, error) {
	if opts.Device == nil {
		return nil, errors.Wrap(ErrInvalidArguments, "device")
	}
	if opts.Pin == nil {
		return nil, errors.Wrap(ErrInvalidArguments, "pin")
	}

	env := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindOpen, Block: true, Pin: *opts.Pin}
	if err := e.roundTrip(ctx, env); err != nil {
		return nil, err
	}

	return &PinHandle{
		engine: e,
		Device: *opts.Device,
		Pin:    PinID(*opts.Pin),
		Name:   truncateName(opts.Name),
		Raw:    opts.Raw,
	}, nil
}

// Read requests a fresh sample and waits for it.
func (e *Engine) Read(ctx context.Context, pin PinID) (float64, error) {
	if !pin.Valid() {
		return 0, errors.Wrapf(ErrInvalidPin, "%s", pin)
	}

	env := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindReadRequest, Block: true, Pin: uint32(pin)}
	if err := e.roundTrip(ctx, env); err != nil {
		return 0, err
	}
	v, _ := e.store.get(pin)
	return v, nil
}

// ReadAsync registers cb for pin on behalf of owner and requests a sample without waiting.
// A registration already present for pin is reused and its callback replaced.
func (e *Engine) ReadAsync(pin PinID, owner *PinHandle, cb Callback) error {
	_, err := e.readAsync(pin, owner, cb)
	return err
}

// readAsync also returns the registration, which stays in place when the send fails.
func (e *Engine) readAsync(pin PinID, owner *PinHandle, cb Callback) (*registration, error) {
	if !pin.Valid() {
		return nil, errors.Wrapf(ErrInvalidPin, "%s", pin)
	}
	reg, err := e.reg.registerOrReuse(pin, owner, cb)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", pin)
	}

	env := protocol.Envelope{ID: protocol.MsgIDAIO, Kind: protocol.KindReadRequest, Pin: uint32(pin)}
	if err := e.ch.Send(env); err != nil {
		return reg, errors.Wrapf(ErrChannelUnavailable, "send %s: %v", env.Kind, err)
	}
	return reg, nil
}

// Abort is accepted for every pin and does nothing.
func (e *Engine) Abort(pin PinID) error {
	return nil
}

// Close is accepted for every pin and does nothing; see PinHandle.Release.
func (e *Engine) Close(pin PinID) error {
	return nil
}

// Subscriptions returns the number of live async registrations.
func (e *Engine) Subscriptions() int {
	return e.reg.len()
}

// LastAsyncValue returns the last reading recorded on pin's registration.
func (e *Engine) LastAsyncValue(pin PinID) (float64, bool) {
	return e.reg.lookup(pin)
}

func (e *Engine) roundTrip(ctx context.Context, env protocol.Envelope) error {
	e.blockMu.Lock()
	defer e.blockMu.Unlock()

	// a reply that arrived after an earlier timeout must not satisfy this request
	select {
	case <-e.signal:
	default:
	}

	if err := e.ch.Send(env); err != nil {
		return errors.Wrapf(ErrChannelUnavailable, "send %s: %v", env.Kind, err)
	}

	timer := e.clock.Timer(e.timeout)
	defer timer.Stop()

	select {
	case <-e.signal:
		return nil
	case <-timer.C:
		e.logger.Warnw("reply timed out", "request", env, "timeout", e.timeout)
		return errors.Wrapf(ErrTimeout, "%s pin %d", env.Kind, env.Pin)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) raise() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// handleEnvelope is the receive hook. It runs on the channel's goroutine and never blocks.
func (e *Engine) handleEnvelope(env protocol.Envelope) {
	if env.ID != protocol.MsgIDAIO {
		e.logger.Debugw("ignoring envelope for another service", "envelope", env)
		return
	}

	switch env.Kind {
	case protocol.KindOpenAck:
		e.logger.Infow("pin opened", "pin", env.Pin)
	case protocol.KindReadAck:
		if !e.handleReadAck(env) {
			// a blocked reader must time out rather than see a stale value
			return
		}
	default:
		e.logger.Warnw("unsupported reply", "envelope", env)
	}

	if env.Block {
		e.raise()
	}
}

// handleReadAck reports false when the reply is discarded for naming an unknown pin.
func (e *Engine) handleReadAck(env protocol.Envelope) bool {
	pin := PinID(env.Pin)
	if !pin.Valid() {
		e.logger.Warnw("reading for invalid pin", "pin", env.Pin, "value", env.Value)
		return false
	}
	value := float64(env.Value)

	if env.Block {
		e.store.set(pin, value)
		return true
	}

	if w, ok := e.reg.deliver(pin, value); ok {
		e.enqueue(w)
	}
	return true
}
