package session

import "errors"

// Session errors.
var (
	// ErrClosed is returned when submitting to a daemon that has stopped
	// or is stopping.
	ErrClosed = errors.New("session closed")

	// ErrPeerClosed is the exit reason when the broker closed the stream.
	ErrPeerClosed = errors.New("connection closed by peer")

	// ErrClientClosed is the exit reason after Close.
	ErrClientClosed = errors.New("session closed by client")

	// ErrInvalidTopic marks an inbound topic that is not valid UTF-8.
	ErrInvalidTopic = errors.New("topic is not valid UTF-8")
)
