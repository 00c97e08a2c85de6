package kprocessor

import "errors"

var (
	// ErrUnknownPort is returned when forwarding to a port the stage did not
	// declare.
	ErrUnknownPort = errors.New("unknown output port")

	// ErrChannelClosed is returned when forwarding after the stage's outputs
	// were closed.
	ErrChannelClosed = errors.New("output channel closed")

	// ErrInvalidLifecycle is returned when a source emits messages out of the
	// Begin, Data*, Commit order, or with non-increasing sequence ids.
	ErrInvalidLifecycle = errors.New("invalid transaction lifecycle")
)
