package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/wire"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// createTestLogFile writes a short session capture: handshake, one
// subscription, a publish, an inbound message and the keepalive exchange.
func createTestLogFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.rlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	const conn = "c0ffee00-1111-2222-3333-444455556666"
	frames := []struct {
		dir log.Direction
		f   *wire.Frame
	}{
		{log.DirectionIn, &wire.Frame{Kind: wire.KindInfo, Version: 1, Capabilities: wire.CapPush | wire.CapPull, MaxMessageLength: 4096}},
		{log.DirectionOut, &wire.Frame{Kind: wire.KindConfig, Capabilities: wire.CapPush}},
		{log.DirectionOut, &wire.Frame{Kind: wire.KindSub, Topic: []byte("sensors/temp")}},
		{log.DirectionOut, &wire.Frame{Kind: wire.KindPub, Topic: []byte("sensors/temp"), Payload: []byte("21.5")}},
		{log.DirectionIn, &wire.Frame{Kind: wire.KindMsg, Topic: []byte("sensors/temp"), Payload: []byte("21.5")}},
		{log.DirectionOut, &wire.Frame{Kind: wire.KindPing}},
		{log.DirectionIn, &wire.Frame{Kind: wire.KindPong}},
		{log.DirectionOut, &wire.Frame{Kind: wire.KindUnSub, Topics: [][]byte{[]byte("sensors/temp")}}},
	}
	for i, fr := range frames {
		ev := log.FrameEventFor(conn, fr.dir, fr.f)
		ev.Timestamp = baseTime.Add(time.Duration(i) * time.Second)
		logger.Log(ev)
	}

	state := log.StateEventFor(conn, log.StateEntitySession, "ACTIVE", "CLOSED", "client closed")
	state.Timestamp = baseTime.Add(10 * time.Second)
	logger.Log(state)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}
