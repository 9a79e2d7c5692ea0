package client

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/subscription"
	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

// ServerInfo is what the broker announced in its Info frame.
type ServerInfo struct {
	Version          uint8
	Capabilities     wire.Capability
	MaxMessageLength uint32
}

// Client is a connected session. Its methods are safe for concurrent use.
type Client struct {
	daemon *session.Daemon
	mode   session.Mode
	info   ServerInfo
	maxLen *atomic.Uint32

	maxMessageTotal int
	connID          string
	kind            transport.Kind
	remote          net.Addr
	logger          *slog.Logger
}

func newConnectionID() string {
	return uuid.New().String()
}

func newClient(b *Builder, res *handshakeResult, connID string, logger *slog.Logger) *Client {
	maxLen := new(atomic.Uint32)
	maxLen.Store(res.info.MaxMessageLength)

	d := session.New(res.transport, session.Config{
		Mode:             res.mode,
		KeepAlive:        b.keepAlive,
		QueueSize:        b.queueSize,
		MaxMessageLength: maxLen,
		Decoder:          res.decoder,
		Pending:          res.pending,
		ConnectionID:     connID,
		Logger:           logger,
		ProtocolLogger:   b.protocolLogger,
	})
	d.Start()

	return &Client{
		daemon: d,
		mode:   res.mode,
		info: ServerInfo{
			Version:          res.info.Version,
			Capabilities:     res.info.Capabilities,
			MaxMessageLength: res.info.MaxMessageLength,
		},
		maxLen:          maxLen,
		maxMessageTotal: b.maxMessageTotal,
		connID:          connID,
		kind:            res.transport.Kind(),
		remote:          res.transport.RemoteAddr(),
		logger:          logger,
	}
}

// Subscribe registers topic with the broker and returns a stream of its
// messages. It returns once the daemon has sent the Sub frame and routed
// the topic. A later Subscribe to the same topic replaces this one and
// ends its stream.
func (c *Client) Subscribe(ctx context.Context, topic string) (*subscription.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, sink := subscription.New(topic, c.maxMessageTotal)
	done := make(chan error, 1)

	if err := c.daemon.Submit(ctx, session.Subscribe(topic, sink, done)); err != nil {
		return nil, err
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return sub, nil
	case <-c.daemon.Done():
		select {
		case err := <-done:
			if err == nil {
				// Routed, then torn down. The stream is already closed.
				return sub, nil
			}
			return nil, err
		default:
			return nil, session.ErrClosed
		}
	case <-ctx.Done():
		// The daemon may still apply it; the route drops on first delivery.
		sub.Close()
		return nil, ctx.Err()
	}
}

// Publish queues a Pub frame for topic. It returns once the request is
// queued; write errors are logged by the daemon.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.daemon.Submit(ctx, session.Publish(topic, bytes.Clone(payload), nil))
}

// PublishString is Publish for text payloads.
func (c *Client) PublishString(ctx context.Context, topic, payload string) error {
	return c.daemon.Submit(ctx, session.Publish(topic, []byte(payload), nil))
}

// Mode returns the negotiated delivery mode.
func (c *Client) Mode() session.Mode {
	return c.mode
}

// MaxMessageLength returns the broker's maximum message length.
func (c *Client) MaxMessageLength() uint32 {
	return c.maxLen.Load()
}

// ServerInfo returns the broker's Info announcement.
func (c *Client) ServerInfo() ServerInfo {
	return c.info
}

// ConnectionID returns the identifier used in logs for this session.
func (c *Client) ConnectionID() string {
	return c.connID
}

// TransportKind reports whether the session was upgraded to TLS.
func (c *Client) TransportKind() transport.Kind {
	return c.kind
}

// RemoteAddr returns the broker address.
func (c *Client) RemoteAddr() net.Addr {
	return c.remote
}

// Topics returns the topics currently routed to a subscription.
func (c *Client) Topics() []string {
	return c.daemon.Topics()
}

// Stats returns the daemon counters.
func (c *Client) Stats() session.Stats {
	return c.daemon.Stats()
}

// Done is closed when the session has ended and been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.daemon.Done()
}

// Err returns why the session ended, or nil while it is running.
func (c *Client) Err() error {
	return c.daemon.Err()
}

// Close applies any queued requests, unsubscribes from every topic and
// closes the connection. It blocks until teardown is complete.
func (c *Client) Close() error {
	return c.daemon.Close()
}
