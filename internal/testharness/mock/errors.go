package mock

import "errors"

// Mock package errors.
var (
	// ErrBrokerClosed is returned after Close.
	ErrBrokerClosed = errors.New("mock broker closed")

	// ErrConnClosed is returned when operating on a closed connection.
	ErrConnClosed = errors.New("mock connection closed")

	// ErrNoConfig is returned when the client closed before sending Config.
	ErrNoConfig = errors.New("client sent no config frame")
)
