package session

import "github.com/relaymq/relay-go/pkg/wire"

// Mode is the delivery mode negotiated at handshake. It never changes for
// the life of a session.
type Mode uint8

const (
	// ModePush allows the broker to push messages to the client.
	ModePush Mode = iota + 1
	// ModePull allows the client to pull messages from the broker.
	ModePull
	// ModePushAndPull allows both.
	ModePushAndPull
)

// ModeFromCapability derives the mode from a capability mask. The second
// result is false if the mask has neither push nor pull.
func ModeFromCapability(c wire.Capability) (Mode, bool) {
	switch {
	case c.Has(wire.CapPush | wire.CapPull):
		return ModePushAndPull, true
	case c.Has(wire.CapPush):
		return ModePush, true
	case c.Has(wire.CapPull):
		return ModePull, true
	default:
		return 0, false
	}
}

// CanPush reports whether the broker may switch the session to push.
func (m Mode) CanPush() bool {
	return m == ModePush || m == ModePushAndPull
}

// CanPull reports whether the broker may switch the session to pull.
func (m Mode) CanPull() bool {
	return m == ModePull || m == ModePushAndPull
}

// Capability returns the push/pull bits of the mode.
func (m Mode) Capability() wire.Capability {
	var c wire.Capability
	if m.CanPush() {
		c |= wire.CapPush
	}
	if m.CanPull() {
		c |= wire.CapPull
	}
	return c
}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePush:
		return "PUSH"
	case ModePull:
		return "PULL"
	case ModePushAndPull:
		return "PUSH_AND_PULL"
	default:
		return "UNKNOWN"
	}
}
