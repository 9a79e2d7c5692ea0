// Package subscription implements per-topic delivery from the session
// daemon to application code.
//
// New returns two ends of one bounded queue:
//   - Sink is held by the session daemon's routing table. Deliver never
//     blocks; it fails when the buffer is full or the consumer is gone.
//   - Subscription is handed to the application. Messages are consumed by
//     blocking pull (Next), a callback loop (Handle, HandleString), a raw
//     channel (C) or a range-over-func iterator (All, Strings).
//
// # Lifecycle
//
// A failed delivery tells the daemon to drop the route, so a consumer that
// falls behind by more than the buffer capacity loses its subscription.
// There is no redelivery: the message that hit the full buffer is lost.
//
// The stream ends when the daemon closes the Sink (route replaced, delivery
// failure or session teardown) or when the application calls Close.
package subscription
