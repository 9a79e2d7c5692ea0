package client

import (
	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/wire"
)

// SelectMode negotiates the delivery mode from the broker's and the
// client's capability masks. Only the push and pull bits are considered.
func SelectMode(server, client wire.Capability) (session.Mode, error) {
	const modes = wire.CapPush | wire.CapPull

	if client&modes == 0 {
		return 0, newError(KindHandshake, "select mode", ErrClientPushOrPull)
	}
	mode, ok := session.ModeFromCapability(server & client & modes)
	if !ok {
		return 0, newError(KindHandshake, "select mode", ErrServerPushOrPull)
	}
	return mode, nil
}
