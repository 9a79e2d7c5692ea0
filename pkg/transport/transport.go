package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultConnectTimeout bounds the TCP dial.
const DefaultConnectTimeout = 30 * time.Second

// Kind identifies the concrete transport variant.
type Kind uint8

const (
	// KindPlain is an unencrypted TCP stream.
	KindPlain Kind = iota
	// KindTLS is a TLS stream over TCP.
	KindTLS
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "PLAIN"
	case KindTLS:
		return "TLS"
	default:
		return "UNKNOWN"
	}
}

// Transport is a bidirectional byte stream to the broker. The variant is
// fixed once the handshake has finished. Errors from the underlying
// connection are returned verbatim.
//
// A Transport supports one concurrent reader and one concurrent writer.
type Transport interface {
	io.ReadWriteCloser

	// Flush pushes buffered writes to the network.
	Flush() error

	// Kind reports whether the stream is plain or TLS.
	Kind() Kind

	// RemoteAddr returns the broker address.
	RemoteAddr() net.Addr
}

// PlainStream is a Transport over an unencrypted connection.
type PlainStream struct {
	conn net.Conn
}

// NewPlainStream wraps an established connection.
func NewPlainStream(conn net.Conn) *PlainStream {
	return &PlainStream{conn: conn}
}

// Dial opens a plain TCP connection to addr. A zero timeout uses
// DefaultConnectTimeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*PlainStream, error) {
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewPlainStream(conn), nil
}

func (s *PlainStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *PlainStream) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Flush is a no-op: writes go straight to the socket.
func (s *PlainStream) Flush() error { return nil }

func (s *PlainStream) Close() error { return s.conn.Close() }

// Kind returns KindPlain.
func (s *PlainStream) Kind() Kind { return KindPlain }

// RemoteAddr returns the broker address.
func (s *PlainStream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// SetWriteDeadline bounds pending and future writes.
func (s *PlainStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// Conn returns the underlying connection.
func (s *PlainStream) Conn() net.Conn { return s.conn }

// TLSStream is a Transport over TLS.
type TLSStream struct {
	conn *tls.Conn
}

// UpgradeTLS runs a client TLS handshake over an established plain stream.
// On failure the underlying connection is left open; the caller owns it.
func UpgradeTLS(ctx context.Context, plain *PlainStream, config *tls.Config) (*TLSStream, error) {
	if config == nil {
		return nil, errors.New("tls config is required")
	}
	conn := tls.Client(plain.conn, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return &TLSStream{conn: conn}, nil
}

func (s *TLSStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *TLSStream) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Flush is a no-op: each Write emits complete TLS records.
func (s *TLSStream) Flush() error { return nil }

// Close sends close_notify and closes the connection.
func (s *TLSStream) Close() error { return s.conn.Close() }

// Kind returns KindTLS.
func (s *TLSStream) Kind() Kind { return KindTLS }

// RemoteAddr returns the broker address.
func (s *TLSStream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// SetWriteDeadline bounds pending and future writes.
func (s *TLSStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// ConnectionState returns the negotiated TLS parameters.
func (s *TLSStream) ConnectionState() tls.ConnectionState { return s.conn.ConnectionState() }

// WriteDeadliner is implemented by transports whose writes can be bounded.
// The session uses it so teardown never blocks on a stalled peer.
type WriteDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// IsClosed reports whether err means the stream has ended, either by the
// peer or because it was closed locally.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var (
	_ Transport      = (*PlainStream)(nil)
	_ Transport      = (*TLSStream)(nil)
	_ WriteDeadliner = (*PlainStream)(nil)
	_ WriteDeadliner = (*TLSStream)(nil)
)
