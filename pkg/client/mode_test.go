package client

import (
	"errors"
	"testing"

	"github.com/relaymq/relay-go/pkg/session"
	"github.com/relaymq/relay-go/pkg/wire"
)

func TestSelectMode(t *testing.T) {
	var (
		none = wire.CapNone
		push = wire.CapPush
		pull = wire.CapPull
		both = wire.CapPush | wire.CapPull
	)

	tests := []struct {
		server, client wire.Capability
		want           session.Mode
		err            error
	}{
		{none, none, 0, ErrClientPushOrPull},
		{both, none, 0, ErrClientPushOrPull},
		{both, wire.CapTLS, 0, ErrClientPushOrPull},
		{none, push, 0, ErrServerPushOrPull},
		{none, both, 0, ErrServerPushOrPull},
		{pull, push, 0, ErrServerPushOrPull},
		{push, pull, 0, ErrServerPushOrPull},
		{push, push, session.ModePush, nil},
		{push, both, session.ModePush, nil},
		{both, push, session.ModePush, nil},
		{pull, pull, session.ModePull, nil},
		{pull, both, session.ModePull, nil},
		{both, pull, session.ModePull, nil},
		{both, both, session.ModePushAndPull, nil},
		{both | wire.CapTLS, both, session.ModePushAndPull, nil},
	}

	for _, tt := range tests {
		t.Run(tt.server.String()+"_"+tt.client.String(), func(t *testing.T) {
			got, err := SelectMode(tt.server, tt.client)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("SelectMode() error = %v, want %v", err, tt.err)
				}
				if kind, _ := KindOf(err); kind != KindHandshake {
					t.Errorf("kind = %v, want %v", kind, KindHandshake)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectMode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SelectMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Exhaustive over the push/pull bits: a mode is selected exactly when both
// sides share a bit, and it never grants more than either side offered.
func TestSelectModeExhaustive(t *testing.T) {
	masks := []wire.Capability{wire.CapNone, wire.CapPush, wire.CapPull, wire.CapPush | wire.CapPull}
	for _, s := range masks {
		for _, c := range masks {
			mode, err := SelectMode(s, c)
			if s&c == 0 {
				if err == nil {
					t.Errorf("SelectMode(%v, %v) = %v, want error", s, c, mode)
				}
				continue
			}
			if err != nil {
				t.Errorf("SelectMode(%v, %v) error = %v", s, c, err)
				continue
			}
			if mode.Capability() != s&c {
				t.Errorf("SelectMode(%v, %v) = %v, want bits %v", s, c, mode, s&c)
			}
		}
	}
}
