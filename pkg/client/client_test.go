package client_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymq/relay-go/internal/testharness/mock"
	"github.com/relaymq/relay-go/pkg/client"
	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func startBroker(t *testing.T, opts mock.Options) *mock.Broker {
	t.Helper()
	b, err := mock.NewBroker(opts)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func connect(t *testing.T, b *client.Builder) *client.Client {
	t.Helper()
	c, err := b.Connect(testContext(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) kinds(dir log.Direction) []wire.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wire.Kind
	for _, e := range r.events {
		if e.Layer != log.LayerWire || e.Direction != dir {
			continue
		}
		if e.Message != nil {
			out = append(out, e.Message.Kind)
		}
	}
	return out
}

func TestClientEndToEnd(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{MaxMessageLength: 8192})

	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush().SupportPull())
	assert.Equal(t, session.ModePushAndPull, c.Mode())
	assert.Equal(t, uint32(8192), c.MaxMessageLength())
	assert.Equal(t, transport.KindPlain, c.TransportKind())
	assert.NotEmpty(t, c.ConnectionID())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.CapPush|wire.CapPull, conn.Config().Capabilities)

	sub, err := c.Subscribe(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, c.Topics())

	require.NoError(t, c.PublishString(ctx, "weather", "sunny"))

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sunny", string(msg))

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Err(), session.ErrClientClosed)

	unsub, err := conn.WaitFrame(ctx, wire.KindUnSub, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, unsub.TopicStrings())

	_, err = sub.Next(ctx)
	assert.Error(t, err)
}

func TestClientPublishOrder(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{NoRouting: true})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPull())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, c.PublishString(ctx, "t", p))
	}
	_, err = conn.WaitFrame(ctx, wire.KindPub, 2)
	require.NoError(t, err)

	var got []string
	for _, f := range conn.Frames() {
		if f.Kind == wire.KindPub {
			got = append(got, string(f.Payload))
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestClientModeNegotiation(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{Capabilities: wire.CapPush})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush().SupportPull())
	assert.Equal(t, session.ModePush, c.Mode())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.CapPush, conn.Config().Capabilities)

	require.NoError(t, conn.Send(wire.NewTurnPull()))
	reply, err := conn.WaitFrame(ctx, wire.KindErr, 0)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonPullUnsupported, reply.Reason)

	require.NoError(t, conn.Send(wire.NewTurnPush()))
	_, err = conn.WaitFrame(ctx, wire.KindOk, 0)
	require.NoError(t, err)
}

func TestConnectErrors(t *testing.T) {
	t.Run("no mode", func(t *testing.T) {
		_, err := client.NewBuilder("127.0.0.1", 1).Connect(testContext(t))
		assert.ErrorIs(t, err, client.ErrClientPushOrPull)
	})

	t.Run("bad address", func(t *testing.T) {
		_, err := client.NewBuilder("127.0.0.1", 70000).SupportPush().Connect(testContext(t))
		kind, ok := client.KindOf(err)
		require.True(t, ok, "err = %v", err)
		assert.Equal(t, client.KindAddress, kind)
	})

	t.Run("no shared mode", func(t *testing.T) {
		broker := startBroker(t, mock.Options{Capabilities: wire.CapPull})
		_, err := client.NewBuilder(broker.Host(), broker.Port()).SupportPush().Connect(testContext(t))
		assert.ErrorIs(t, err, client.ErrServerPushOrPull)
	})

	t.Run("closed before info", func(t *testing.T) {
		broker := startBroker(t, mock.Options{CloseOnAccept: true})
		_, err := client.NewBuilder(broker.Host(), broker.Port()).SupportPush().Connect(testContext(t))
		assert.ErrorIs(t, err, client.ErrConnectClose)
	})

	t.Run("wrong first frame", func(t *testing.T) {
		broker := startBroker(t, mock.Options{Greeting: wire.NewPing()})
		_, err := client.NewBuilder(broker.Host(), broker.Port()).SupportPush().Connect(testContext(t))
		assert.ErrorIs(t, err, client.ErrHandshakeParse)
		kind, _ := client.KindOf(err)
		assert.Equal(t, client.KindHandshake, kind)
	})
}

func TestKindOfInvalidTopic(t *testing.T) {
	kind, ok := client.KindOf(fmt.Errorf("msg frame: %w", session.ErrInvalidTopic))
	require.True(t, ok)
	assert.Equal(t, client.KindUTF8, kind)
	assert.Equal(t, "utf8", kind.String())

	_, ok = client.KindOf(session.ErrClosed)
	assert.False(t, ok)
}

func TestClientTLS(t *testing.T) {
	ctx := testContext(t)
	cert, pool, err := mock.GenerateCertificate("broker.test")
	require.NoError(t, err)
	tlsConfig, err := mock.NewTLSConfig(cert)
	require.NoError(t, err)

	broker := startBroker(t, mock.Options{TLSConfig: tlsConfig})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).
		SupportPush().
		SetTLSDomain("broker.test").
		SetTLSConfig(&transport.TLSConfig{RootCAs: pool}))
	assert.Equal(t, transport.KindTLS, c.TransportKind())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)
	assert.True(t, conn.TLS())
	assert.True(t, conn.Config().Capabilities.Has(wire.CapTLS))

	sub, err := c.Subscribe(ctx, "secure")
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, "secure", []byte("x")))
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), msg)
}

func TestClientTLSUntrusted(t *testing.T) {
	cert, _, err := mock.GenerateCertificate("broker.test")
	require.NoError(t, err)
	tlsConfig, err := mock.NewTLSConfig(cert)
	require.NoError(t, err)

	broker := startBroker(t, mock.Options{TLSConfig: tlsConfig})
	_, err = client.NewBuilder(broker.Host(), broker.Port()).
		SupportPush().
		SetTLSDomain("broker.test").
		Connect(testContext(t))

	kind, ok := client.KindOf(err)
	require.True(t, ok, "err = %v", err)
	assert.Equal(t, client.KindTLS, kind)
}

func TestClientTLSNotOffered(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush().SetTLSDomain("broker.test"))
	assert.Equal(t, transport.KindPlain, c.TransportKind())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)
	assert.False(t, conn.Config().Capabilities.Has(wire.CapTLS))
}

func TestClientPeerClose(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("client did not notice peer close")
	}
	assert.ErrorIs(t, c.Err(), session.ErrPeerClosed)

	_, err = c.Subscribe(ctx, "t")
	assert.ErrorIs(t, err, session.ErrClosed)
	assert.ErrorIs(t, c.Publish(ctx, "t", nil), session.ErrClosed)
}

func TestClientKeepAlive(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{})
	plog := &recordingLogger{}
	connect(t, client.NewBuilder(broker.Host(), broker.Port()).
		SupportPush().
		SetKeepAlive(transport.KeepAliveConfig{Interval: 20 * time.Millisecond}).
		SetProtocolLogger(plog))

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)
	_, err = conn.WaitFrame(ctx, wire.KindPing, 1)
	require.NoError(t, err)

	assert.Contains(t, plog.kinds(log.DirectionIn), wire.KindInfo)
	assert.Contains(t, plog.kinds(log.DirectionOut), wire.KindConfig)
}

func TestSubscribeReplacesPrevious(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush())

	first, err := c.Subscribe(ctx, "t")
	require.NoError(t, err)
	second, err := c.Subscribe(ctx, "t")
	require.NoError(t, err)

	_, err = first.Next(ctx)
	assert.Error(t, err)

	require.NoError(t, c.PublishString(ctx, "t", "hi"))
	msg, err := second.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(msg))
}

func TestSubscribeCanceledContext(t *testing.T) {
	broker := startBroker(t, mock.Options{})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub, err := c.Subscribe(ctx, "t")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sub)
	assert.Empty(t, c.Topics())
}

func TestSubscribeCanceledWhileWaiting(t *testing.T) {
	broker := startBroker(t, mock.Options{})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush())

	// Cancellation races the daemon applying the request. Either the call
	// reports the cancellation, or it returns a routed subscription.
	for range 20 {
		ctx, cancel := context.WithCancel(context.Background())
		go cancel()
		sub, err := c.Subscribe(ctx, "t")
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
			assert.Nil(t, sub)
			continue
		}
		require.NotNil(t, sub)
		assert.Equal(t, "t", sub.Topic())
		assert.Contains(t, c.Topics(), "t")
	}
}

func TestClientDeliversOnlyAfterSubscribe(t *testing.T) {
	ctx := testContext(t)
	broker := startBroker(t, mock.Options{
		Capabilities:     wire.CapPush | wire.CapPull,
		MaxMessageLength: 4096,
	})
	c := connect(t, client.NewBuilder(broker.Host(), broker.Port()).SupportPush().SupportPull())
	assert.Equal(t, client.ServerInfo{Version: 1, Capabilities: wire.CapPush | wire.CapPull, MaxMessageLength: 4096}, c.ServerInfo())

	conn, err := broker.Accept(ctx)
	require.NoError(t, err)

	payload := []byte{1, 2, 3}

	// No route yet: the message is read and dropped.
	require.NoError(t, conn.Send(wire.NewMsg("t1", payload)))
	require.Eventually(t, func() bool { return c.Stats().FramesIn == 1 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, c.Stats().Delivered)
	assert.NoError(t, c.Err())

	sub, err := c.Subscribe(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, sub.Len())

	require.NoError(t, conn.Send(wire.NewMsg("t1", payload)))
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, msg)

	// A following frame proves nothing else was queued for t1.
	require.NoError(t, conn.Send(wire.NewTurnPush()))
	_, err = conn.WaitFrame(ctx, wire.KindOk, 0)
	require.NoError(t, err)
	assert.Zero(t, sub.Len())
	assert.Equal(t, uint64(1), c.Stats().Delivered)
	assert.Equal(t, uint64(3), c.Stats().FramesIn)
}
