// Package mock provides an in-process Relay broker for tests.
package mock

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/relaymq/relay-go/pkg/discovery"
	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

// Options configures a Broker.
type Options struct {
	// Capabilities announced in Info (default: push|pull). CapTLS is added
	// when TLSConfig is set.
	Capabilities wire.Capability

	// Version announced in Info (default: wire.ProtocolVersion).
	Version uint8

	// MaxMessageLength announced in Info (default: 4096).
	MaxMessageLength uint32

	// TLSConfig enables the upgrade for clients whose Config asks for it.
	TLSConfig *tls.Config

	// Greeting replaces the Info frame sent on accept.
	Greeting *wire.Frame

	// CloseOnAccept closes every connection before sending anything.
	CloseOnAccept bool

	// NoAutoPong disables answering Ping with Pong.
	NoAutoPong bool

	// NoRouting disables forwarding Pub frames to subscribers.
	NoRouting bool

	// Advertise, if set, registers the broker over mDNS under this
	// instance name for as long as it runs.
	Advertise string

	// AdvertiseInterface restricts the advertisement to one interface.
	AdvertiseInterface string
}

// Broker accepts client connections, runs the broker side of the
// handshake and records every frame it receives.
type Broker struct {
	opts Options
	ln   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	accepted   chan *Conn
	advertiser *discovery.MDNSAdvertiser

	mu    sync.Mutex
	conns []*Conn
}

// NewBroker starts a broker on a random loopback port.
func NewBroker(opts Options) (*Broker, error) {
	if opts.Capabilities == wire.CapNone {
		opts.Capabilities = wire.CapPush | wire.CapPull
	}
	if opts.TLSConfig != nil {
		opts.Capabilities |= wire.CapTLS
	}
	if opts.Version == 0 {
		opts.Version = wire.ProtocolVersion
	}
	if opts.MaxMessageLength == 0 {
		opts.MaxMessageLength = 4096
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	b := &Broker{
		opts:     opts,
		ln:       ln,
		ctx:      ctx,
		cancel:   cancel,
		g:        g,
		accepted: make(chan *Conn, 16),
	}
	if opts.Advertise != "" {
		if err := b.advertise(); err != nil {
			cancel()
			_ = ln.Close()
			return nil, err
		}
	}

	g.Go(b.acceptLoop)
	return b, nil
}

func (b *Broker) advertise() error {
	b.advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: b.opts.AdvertiseInterface,
	})
	return b.advertiser.Advertise(&discovery.BrokerInfo{
		InstanceName:     b.opts.Advertise,
		Port:             uint16(b.Port()),
		Version:          b.opts.Version,
		Capabilities:     b.opts.Capabilities,
		MaxMessageLength: b.opts.MaxMessageLength,
	})
}

// Addr returns the listen address.
func (b *Broker) Addr() string {
	return b.ln.Addr().String()
}

// Host returns the listen host.
func (b *Broker) Host() string {
	host, _, _ := net.SplitHostPort(b.Addr())
	return host
}

// Port returns the listen port.
func (b *Broker) Port() int {
	_, port, _ := net.SplitHostPort(b.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// Accept waits for the next client to complete the handshake.
func (b *Broker) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-b.accepted:
		return c, nil
	case <-b.ctx.Done():
		return nil, ErrBrokerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Conns returns every connection accepted so far.
func (b *Broker) Conns() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.conns)
}

// Close stops accepting, closes every connection and waits for all
// connection goroutines to exit.
func (b *Broker) Close() error {
	if b.advertiser != nil {
		b.advertiser.Stop()
	}
	b.cancel()
	_ = b.ln.Close()
	for _, c := range b.Conns() {
		_ = c.Close()
	}
	err := b.g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (b *Broker) acceptLoop() error {
	for {
		raw, err := b.ln.Accept()
		if err != nil {
			if b.ctx.Err() != nil {
				return nil
			}
			return err
		}
		c := newConn(b, raw)
		b.mu.Lock()
		b.conns = append(b.conns, c)
		b.mu.Unlock()

		b.g.Go(func() error {
			c.serve()
			return nil
		})
	}
}

// route forwards a published message to every subscriber of topic,
// including the publisher.
func (b *Broker) route(topic string, payload []byte) {
	for _, c := range b.Conns() {
		if c.Subscribed(topic) {
			_ = c.Send(wire.NewMsg(topic, payload))
		}
	}
}

func (b *Broker) greeting() *wire.Frame {
	if b.opts.Greeting != nil {
		return b.opts.Greeting
	}
	return wire.NewInfo(b.opts.Version, b.opts.Capabilities, b.opts.MaxMessageLength)
}

// NewTLSConfig is a convenience wrapper for brokers that terminate TLS.
func NewTLSConfig(cert tls.Certificate) (*tls.Config, error) {
	return transport.NewServerTLSConfig(cert)
}
