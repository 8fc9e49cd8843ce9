// Package remote is the peripheral-owning side of the link: it answers open and read
// requests from a Sampler.
package remote

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"aiobridge/aio"
	"aiobridge/ipm"
	"aiobridge/protocol"
)

// ErrNoChannel is returned by Sample for pins without an analog channel.
var ErrNoChannel = errors.New("no analog channel for pin")

// Sampler reads one analog input.
type Sampler interface {
	Sample(pin aio.PinID) (uint32, error)
}

// Responder answers requests arriving on a channel.
type Responder struct {
	ch      ipm.Channel
	sampler Sampler
	logger  *zap.SugaredLogger

	dropReplies atomic.Bool
	served      atomic.Uint64
}

// NewResponder installs the responder as ch's receive hook.
func NewResponder(ch ipm.Channel, sampler Sampler, logger *zap.SugaredLogger) *Responder {
	r := &Responder{ch: ch, sampler: sampler, logger: logger}
	ch.OnReceive(r.handle)
	return r
}

// SetDropReplies makes the responder swallow every request, as a stalled core would.
func (r *Responder) SetDropReplies(drop bool) {
	r.dropReplies.Store(drop)
}

// Served returns how many replies were sent.
func (r *Responder) Served() uint64 {
	return r.served.Load()
}

func (r *Responder) handle(req protocol.Envelope) {
	if req.ID != protocol.MsgIDAIO {
		return
	}
	if r.dropReplies.Load() {
		r.logger.Debugw("dropping request", "request", req)
		return
	}

	reply := protocol.Envelope{ID: req.ID, Block: req.Block, Pin: req.Pin}
	switch req.Kind {
	case protocol.KindOpen:
		reply.Kind = protocol.KindOpenAck
	case protocol.KindReadRequest:
		v, err := r.sampler.Sample(aio.PinID(req.Pin))
		if err != nil {
			r.logger.Warnw("sample failed", "pin", req.Pin, "error", err)
			return
		}
		reply.Kind = protocol.KindReadAck
		reply.Value = v
	default:
		r.logger.Warnw("unsupported request", "request", req)
		return
	}

	if err := r.ch.Send(reply); err != nil {
		r.logger.Warnw("reply not sent", "reply", reply, "error", err)
		return
	}
	r.served.Add(1)
}

// StaticSampler returns fixed values, settable at runtime.
type StaticSampler struct {
	mu     sync.Mutex
	values [aio.NumPins]uint32
}

// NewStaticSampler seeds the sampler from values; pins outside A0..A4 are ignored.
func NewStaticSampler(values map[aio.PinID]uint32) *StaticSampler {
	s := &StaticSampler{}
	for pin, v := range values {
		s.Set(pin, v)
	}
	return s
}

// Set changes the value reported for pin.
func (s *StaticSampler) Set(pin aio.PinID, v uint32) {
	if !pin.Valid() {
		return
	}
	s.mu.Lock()
	s.values[pin-aio.A0] = v
	s.mu.Unlock()
}

func (s *StaticSampler) Sample(pin aio.PinID) (uint32, error) {
	if !pin.Valid() {
		return 0, errors.Wrapf(ErrNoChannel, "%s", pin)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[pin-aio.A0], nil
}
