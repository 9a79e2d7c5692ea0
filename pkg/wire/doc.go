// Package wire defines the frame format of the Relay pub/sub protocol.
//
// Every frame on the connection is a 4-byte big-endian length prefix
// followed by a CBOR map with integer keys:
//
//	{
//	  1: kind,            // uint8, see Kind
//	  2: topic,           // bytes: Sub, Pub, Msg
//	  3: payload,         // bytes: Pub, Msg
//	  4: topics,          // [bytes]: UnSub
//	  5: reason,          // text: Err
//	  6: version,         // uint8: Info
//	  7: capabilities,    // uint16 mask: Info, Config
//	  8: maxMessageLength // uint32: Info
//	}
//
// # Handshake
//
// The broker opens with an Info frame advertising its protocol version,
// capability mask and maximum message length. The client answers with a
// Config frame carrying the negotiated capabilities. If both sides agree
// on TLS the connection is upgraded right after the Config frame.
//
// # Streaming Decode
//
// A TCP read may carry a partial frame or several frames. Decoder keeps
// the unconsumed bytes between calls to Feed and returns every complete
// frame in arrival order.
package wire
