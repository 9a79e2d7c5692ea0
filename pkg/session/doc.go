// Package session implements the long-lived daemon that owns a Relay
// connection after the handshake.
//
// The daemon runs one goroutine that services exactly one event per
// iteration:
//
//   - bytes read from the transport, decoded into frames and dispatched
//     in arrival order
//   - an Action (subscribe or publish) taken from the bounded action
//     queue, in enqueue order
//   - the keepalive timer, which sends a Ping and lengthens the next wait
//
// A second goroutine does nothing but block on Read and hand chunks to the
// loop, so the transport has one reader and one writer.
//
// # Routing
//
// Inbound Msg frames are routed by topic to the Sink registered by the
// most recent Subscribe for that topic. A failed delivery (buffer full or
// consumer gone) removes the route.
//
// # Teardown
//
// Whatever ends the loop (peer close, repeated read failures or Close),
// the daemon writes one UnSub frame listing every routed topic, closes
// every sink and then closes the transport.
package session
