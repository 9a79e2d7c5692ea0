package mock

import (
	"context"
	"crypto/tls"
	"net"
	"slices"
	"sync"

	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

// Conn is the broker side of one client connection.
type Conn struct {
	broker *Broker
	raw    net.Conn

	wmu    sync.Mutex
	stream net.Conn

	mu       sync.Mutex
	config   *wire.Frame
	frames   []wire.Frame
	topics   map[string]struct{}
	isTLS    bool
	changed  chan struct{}
	closed   bool
	closeErr error

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(b *Broker, raw net.Conn) *Conn {
	return &Conn{
		broker:  b,
		raw:     raw,
		stream:  raw,
		topics:  make(map[string]struct{}),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Config returns the client's Config frame.
func (c *Conn) Config() wire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config == nil {
		return wire.Frame{}
	}
	return *c.config
}

// TLS reports whether the connection was upgraded.
func (c *Conn) TLS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isTLS
}

// Frames returns every frame received after Config.
func (c *Conn) Frames() []wire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.frames)
}

// Topics returns the topics the client is subscribed to, sorted.
func (c *Conn) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Subscribed reports whether the client is subscribed to topic.
func (c *Conn) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

// WaitFrame waits for a received frame of the given kind, starting after
// the first skip frames of that kind.
func (c *Conn) WaitFrame(ctx context.Context, kind wire.Kind, skip int) (wire.Frame, error) {
	for {
		c.mu.Lock()
		seen := 0
		for _, f := range c.frames {
			if f.Kind != kind {
				continue
			}
			if seen == skip {
				c.mu.Unlock()
				return f, nil
			}
			seen++
		}
		changed, closed := c.changed, c.closed
		c.mu.Unlock()

		if closed {
			return wire.Frame{}, ErrConnClosed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return wire.Frame{}, ctx.Err()
		}
	}
}

// Err returns the read error that ended the connection, if it was not a
// plain close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Done is closed when the client disconnects or the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send writes a frame to the client.
func (c *Conn) Send(f *wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes bytes to the client unchanged.
func (c *Conn) SendRaw(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.stream.Write(data); err != nil {
		return err
	}
	return nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
		c.mu.Lock()
		c.closed = true
		c.notifyLocked()
		c.mu.Unlock()
		close(c.done)
	})
	return err
}

func (c *Conn) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Conn) serve() {
	defer c.Close()
	b := c.broker

	if b.opts.CloseOnAccept {
		return
	}
	if err := c.Send(b.greeting()); err != nil {
		return
	}

	dec := wire.NewDecoder(0)
	buf := make([]byte, 4096)
	var pending []wire.Frame

	for c.Config().Kind == 0 {
		n, err := c.stream.Read(buf)
		if n > 0 {
			frames, derr := dec.Feed(buf[:n])
			if derr != nil {
				return
			}
			for i := range frames {
				if c.config == nil && frames[i].Kind == wire.KindConfig {
					c.mu.Lock()
					c.config = &frames[i]
					c.mu.Unlock()
					pending = frames[i+1:]
					break
				}
			}
		}
		if err != nil {
			return
		}
	}

	cfg := c.Config()
	if cfg.Capabilities.Has(wire.CapTLS) && b.opts.TLSConfig != nil {
		tc := tls.Server(c.raw, b.opts.TLSConfig)
		if err := tc.HandshakeContext(b.ctx); err != nil {
			return
		}
		c.wmu.Lock()
		c.stream = tc
		c.wmu.Unlock()
		c.mu.Lock()
		c.isTLS = true
		c.mu.Unlock()
		dec.Reset()
		pending = nil
	}

	select {
	case b.accepted <- c:
	default:
	}

	for i := range pending {
		c.handle(pending[i])
	}
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			frames, derr := dec.Feed(buf[:n])
			for _, f := range frames {
				c.handle(f)
			}
			if derr != nil {
				return
			}
		}
		if err != nil {
			if !transport.IsClosed(err) {
				c.mu.Lock()
				c.closeErr = err
				c.mu.Unlock()
			}
			return
		}
	}
}

func (c *Conn) handle(f wire.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	switch f.Kind {
	case wire.KindSub:
		c.topics[string(f.Topic)] = struct{}{}
	case wire.KindUnSub:
		for _, t := range f.TopicStrings() {
			delete(c.topics, t)
		}
	}
	c.notifyLocked()
	c.mu.Unlock()

	b := c.broker
	switch f.Kind {
	case wire.KindPing:
		if !b.opts.NoAutoPong {
			_ = c.Send(wire.NewPong())
		}
	case wire.KindPub:
		if !b.opts.NoRouting {
			b.route(string(f.Topic), f.Payload)
		}
	}
}
