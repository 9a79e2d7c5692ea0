package client

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/subscription"
	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

// Builder configures and opens a client connection.
type Builder struct {
	host string
	port int

	tlsDomain string
	tlsConfig transport.TLSConfig

	caps            wire.Capability
	maxMessageTotal int
	queueSize       int
	keepAlive       transport.KeepAliveConfig
	connectTimeout  time.Duration

	logger         *slog.Logger
	protocolLogger log.Logger
}

// NewBuilder returns a builder for the broker at host:port. At least one
// of SupportPush or SupportPull must be called before Connect.
func NewBuilder(host string, port int) *Builder {
	return &Builder{
		host:            host,
		port:            port,
		maxMessageTotal: subscription.DefaultCapacity,
		queueSize:       session.DefaultQueueSize,
		keepAlive:       transport.DefaultKeepAliveConfig(),
		connectTimeout:  transport.DefaultConnectTimeout,
	}
}

// SetTLSDomain enables the TLS upgrade when the broker offers it. The
// domain is used for SNI and certificate verification.
func (b *Builder) SetTLSDomain(domain string) *Builder {
	b.tlsDomain = domain
	return b
}

// SetTLSConfig sets trust roots, a client certificate or verification
// overrides for the TLS upgrade. The server name is always the TLS domain.
func (b *Builder) SetTLSConfig(cfg *transport.TLSConfig) *Builder {
	if cfg != nil {
		b.tlsConfig = *cfg
	}
	return b
}

// SupportPush lets the broker push messages to this client.
func (b *Builder) SupportPush() *Builder {
	b.caps |= wire.CapPush
	return b
}

// SupportPull lets this client pull messages from the broker.
func (b *Builder) SupportPull() *Builder {
	b.caps |= wire.CapPull
	return b
}

// SetMaxMessageTotal sets the buffer capacity of each subscription.
func (b *Builder) SetMaxMessageTotal(n int) *Builder {
	if n > 0 {
		b.maxMessageTotal = n
	}
	return b
}

// SetActionQueueSize sets the capacity of the daemon's action queue.
func (b *Builder) SetActionQueueSize(n int) *Builder {
	if n > 0 {
		b.queueSize = n
	}
	return b
}

// SetKeepAlive sets the ping schedule.
func (b *Builder) SetKeepAlive(cfg transport.KeepAliveConfig) *Builder {
	b.keepAlive = cfg
	return b
}

// SetConnectTimeout bounds dialling and the handshake.
func (b *Builder) SetConnectTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.connectTimeout = d
	}
	return b
}

// SetLogger sets the operational logger.
func (b *Builder) SetLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// SetProtocolLogger enables protocol capture.
func (b *Builder) SetProtocolLogger(logger log.Logger) *Builder {
	b.protocolLogger = logger
	return b
}

// Capabilities returns the push/pull bits the client will offer.
func (b *Builder) Capabilities() wire.Capability {
	return b.caps
}

// Address returns host:port.
func (b *Builder) Address() string {
	return net.JoinHostPort(b.host, strconv.Itoa(b.port))
}

// Connect dials the broker, runs the handshake and starts the session
// daemon. On error the connection is closed.
func (b *Builder) Connect(ctx context.Context) (*Client, error) {
	if b.caps&(wire.CapPush|wire.CapPull) == 0 {
		return nil, newError(KindHandshake, "connect", ErrClientPushOrPull)
	}

	if b.port <= 0 || b.port > 65535 {
		return nil, newError(KindAddress, "resolve", &net.AddrError{Err: "invalid port", Addr: b.Address()})
	}
	addr, err := net.ResolveTCPAddr("tcp", b.Address())
	if err != nil {
		return nil, newError(KindAddress, "resolve", err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	connID := newConnectionID()
	logger = logger.With("conn_id", connID)

	plain, err := transport.Dial(ctx, addr.String(), b.connectTimeout)
	if err != nil {
		return nil, newError(KindIO, "dial", err)
	}

	hs := &handshake{
		builder: b,
		plain:   plain,
		connID:  connID,
		logger:  logger,
		plog:    log.OrNoop(b.protocolLogger),
	}
	res, err := hs.run(ctx)
	if err != nil {
		hs.plog.Log(log.ErrorEventFor(connID, log.LayerSession, err, "handshake"))
		_ = plain.Close()
		return nil, err
	}

	c := newClient(b, res, connID, logger)
	logger.Info("connected",
		"addr", addr.String(),
		"mode", res.mode,
		"transport", res.transport.Kind(),
		"max_message_length", res.info.MaxMessageLength)
	return c, nil
}
