// Package ipm carries envelopes between the requesting core and the peripheral-owning core.
//
// A Channel is fire-and-forget: a nil error from Send means the envelope was queued locally,
// not that the remote side has seen it. Replies arrive on the single receive hook installed
// with OnReceive, which runs on the channel's own goroutine.
package ipm

import (
	"github.com/pkg/errors"

	"aiobridge/protocol"
)

var (
	// ErrQueueFull is returned when the local transmit queue cannot take another envelope.
	ErrQueueFull = errors.New("ipm: transmit queue full")
	// ErrNotReady is returned when the channel is closed or was never started.
	ErrNotReady = errors.New("ipm: channel not ready")
)

// Handler receives every envelope the remote side sends.
type Handler func(env protocol.Envelope)

// Channel is one end of an inter-processor link.
type Channel interface {
	// Send queues env for transmission.
	Send(env protocol.Envelope) error

	// OnReceive installs the receive hook, replacing any previous one.
	OnReceive(h Handler)

	// Close stops delivery and releases the underlying transport.
	Close() error
}

// DefaultQueueSize is the transmit/inbox depth used when a caller passes zero.
const DefaultQueueSize = 16
