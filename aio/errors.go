package aio

import "github.com/pkg/errors"

var (
	// ErrInvalidArguments is returned by Open when device or pin is missing.
	ErrInvalidArguments = errors.New("aio: missing required field")
	// ErrInvalidPin is returned for a pin outside A0..A4.
	ErrInvalidPin = errors.New("aio: invalid pin")
	// ErrChannelUnavailable is returned when the request could not be handed to the channel.
	ErrChannelUnavailable = errors.New("aio: channel unavailable")
	// ErrTimeout is returned when the peripheral core does not answer a blocking request in time.
	ErrTimeout = errors.New("aio: reply timed out")
	// ErrAllocationFailure is returned when no more subscriptions can be registered.
	ErrAllocationFailure = errors.New("aio: subscription table full")
)
