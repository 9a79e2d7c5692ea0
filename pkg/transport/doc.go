// Package transport provides the byte-stream layer of a Relay session.
//
// The transport layer handles:
//   - The Transport interface over plain TCP or TLS
//   - Upgrading an established TCP stream to TLS after the handshake
//   - Writing length-prefixed frames with optional protocol capture
//   - The escalating keepalive interval
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Frames (pkg/wire)    │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│      TLS (optional upgrade)    │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// The Info/Config exchange always happens in clear text. When both sides
// agree on TLS the client starts the TLS handshake directly after writing
// its Config frame and every later frame is encrypted.
//
// # Keep-Alive
//
// The client pings the broker on an escalating schedule:
//   - Base interval: 30 seconds
//   - Each unanswered ping adds 10 seconds
//   - At most 5 misses are counted, so the wait never exceeds 80 seconds
//
// A pong resets the schedule. Missed pongs never close the connection;
// detecting a dead peer is left to the read side.
package transport
