package ipm

import (
	"sync"

	"aiobridge/protocol"
)

// FakeChannel records sent envelopes and plays scripted replies for tests.
type FakeChannel struct {
	mu      sync.Mutex
	sent    []protocol.Envelope
	handler Handler
	replies sync.WaitGroup

	// SendError, if set, is returned by Send and nothing is recorded.
	SendError error

	// Reply, if set, is called for every successful Send. The returned envelopes are
	// delivered in order from a separate goroutine, like a remote core answering.
	Reply func(sent protocol.Envelope) []protocol.Envelope

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChannel creates a FakeChannel with no scripted replies.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{}
}

// Send records env and schedules any scripted replies.
func (f *FakeChannel) Send(env protocol.Envelope) error {
	f.mu.Lock()
	if f.SendError != nil {
		err := f.SendError
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, env)
	reply := f.Reply
	f.mu.Unlock()

	if reply == nil {
		return nil
	}
	replies := reply(env)
	if len(replies) == 0 {
		return nil
	}
	f.replies.Add(1)
	go func() {
		defer f.replies.Done()
		for _, r := range replies {
			f.Deliver(r)
		}
	}()
	return nil
}

// OnReceive installs the receive hook.
func (f *FakeChannel) OnReceive(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Deliver runs the receive hook on the calling goroutine.
func (f *FakeChannel) Deliver(env protocol.Envelope) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(env)
	}
}

// Sent returns a copy of everything sent so far.
func (f *FakeChannel) Sent() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.sent...)
}

// SetReply swaps the scripted responder.
func (f *FakeChannel) SetReply(reply func(sent protocol.Envelope) []protocol.Envelope) {
	f.mu.Lock()
	f.Reply = reply
	f.mu.Unlock()
}

// SetSendError swaps the error returned by Send.
func (f *FakeChannel) SetSendError(err error) {
	f.mu.Lock()
	f.SendError = err
	f.mu.Unlock()
}

// Wait blocks until every scripted reply has been delivered.
func (f *FakeChannel) Wait() {
	f.replies.Wait()
}

// Close waits for in-flight replies and marks the channel closed.
func (f *FakeChannel) Close() error {
	f.replies.Wait()
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded envelopes and scripted behavior.
func (f *FakeChannel) Reset() {
	f.replies.Wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.SendError = nil
	f.Reply = nil
	f.Closed = false
}
