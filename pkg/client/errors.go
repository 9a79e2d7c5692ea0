package client

import (
	"errors"
	"fmt"

	"github.com/relaymq/relay-go/pkg/session"
)

// ErrorKind classifies handshake and connect failures.
type ErrorKind int

const (
	// KindAddress means the host and port did not form a usable address.
	KindAddress ErrorKind = iota
	// KindIO means a socket read, write or dial failed.
	KindIO
	// KindDecode means bytes from the broker could not be decoded.
	KindDecode
	// KindTLS means the TLS configuration or handshake failed.
	KindTLS
	// KindHandshake means the broker's handshake violated the protocol.
	KindHandshake
	// KindUTF8 means text from the broker was not valid UTF-8. The session
	// reports it as session.ErrInvalidTopic and keeps running.
	KindUTF8
)

func (k ErrorKind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindIO:
		return "io"
	case KindDecode:
		return "decode"
	case KindTLS:
		return "tls"
	case KindHandshake:
		return "handshake"
	case KindUTF8:
		return "utf8"
	default:
		return "unknown"
	}
}

// Handshake errors.
var (
	// ErrConnectClose means the broker closed the connection before
	// sending Info.
	ErrConnectClose = errors.New("connection closed during handshake")

	// ErrHandshakeParse means the first frame was not Info.
	ErrHandshakeParse = errors.New("expected info frame")

	// ErrClientPushOrPull means the builder enabled neither push nor pull.
	ErrClientPushOrPull = errors.New("client must support push or pull")

	// ErrServerPushOrPull means the broker shares no delivery mode with
	// the client.
	ErrServerPushOrPull = errors.New("server supports neither of the client's modes")
)

// Error is returned by Connect.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("relay %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("relay %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a Connect error, or KindUTF8 for
// session.ErrInvalidTopic. The second result is false for anything else.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	if errors.Is(err, session.ErrInvalidTopic) {
		return KindUTF8, true
	}
	return 0, false
}
