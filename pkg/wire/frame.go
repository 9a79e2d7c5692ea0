package wire

import (
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion is the highest protocol version this package speaks.
const ProtocolVersion uint8 = 1

// Kind identifies the type of a frame.
type Kind uint8

// Frame kinds.
const (
	KindInfo     Kind = 1
	KindConfig   Kind = 2
	KindPing     Kind = 3
	KindPong     Kind = 4
	KindSub      Kind = 5
	KindUnSub    Kind = 6
	KindPub      Kind = 7
	KindMsg      Kind = 8
	KindTurnPush Kind = 9
	KindTurnPull Kind = 10
	KindOk       Kind = 11
	KindErr      Kind = 12
)

// IsValid returns true if the kind is a known frame kind.
func (k Kind) IsValid() bool {
	return k >= KindInfo && k <= KindErr
}

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "INFO"
	case KindConfig:
		return "CONFIG"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindSub:
		return "SUB"
	case KindUnSub:
		return "UNSUB"
	case KindPub:
		return "PUB"
	case KindMsg:
		return "MSG"
	case KindTurnPush:
		return "TURN_PUSH"
	case KindTurnPull:
		return "TURN_PULL"
	case KindOk:
		return "OK"
	case KindErr:
		return "ERR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Capability is a bit mask of protocol features.
type Capability uint16

// Capability bits.
const (
	CapPush Capability = 1 << 0
	CapPull Capability = 1 << 1
	CapTLS  Capability = 1 << 2
)

// CapNone is the empty capability mask.
const CapNone Capability = 0

// Has returns true if every bit of o is set in c.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

// String returns the set bits joined with "|", e.g. "push|tls".
func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	var parts []string
	if c.Has(CapPush) {
		parts = append(parts, "push")
	}
	if c.Has(CapPull) {
		parts = append(parts, "pull")
	}
	if c.Has(CapTLS) {
		parts = append(parts, "tls")
	}
	if rest := c &^ (CapPush | CapPull | CapTLS); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint16(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseCapability parses a comma or pipe separated list such as "push,tls".
func ParseCapability(s string) (Capability, error) {
	var c Capability
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "push":
			c |= CapPush
		case "pull":
			c |= CapPull
		case "tls":
			c |= CapTLS
		case "", "none":
		default:
			return CapNone, fmt.Errorf("unknown capability %q", f)
		}
	}
	return c, nil
}

// Frame validation errors.
var (
	ErrUnknownKind  = errors.New("unknown frame kind")
	ErrMissingTopic = errors.New("frame requires a topic")
)

// Frame is a single protocol frame. Only the fields relevant to Kind are set.
type Frame struct {
	Kind             Kind       `cbor:"1,keyasint"`
	Topic            []byte     `cbor:"2,keyasint,omitempty"`
	Payload          []byte     `cbor:"3,keyasint,omitempty"`
	Topics           [][]byte   `cbor:"4,keyasint,omitempty"`
	Reason           string     `cbor:"5,keyasint,omitempty"`
	Version          uint8      `cbor:"6,keyasint,omitempty"`
	Capabilities     Capability `cbor:"7,keyasint,omitempty"`
	MaxMessageLength uint32     `cbor:"8,keyasint,omitempty"`
}

// Validate checks the fields required by the frame kind.
func (f *Frame) Validate() error {
	if !f.Kind.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(f.Kind))
	}
	switch f.Kind {
	case KindSub, KindPub, KindMsg:
		if len(f.Topic) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingTopic, f.Kind)
		}
	}
	return nil
}

// NewInfo creates the broker greeting.
func NewInfo(version uint8, caps Capability, maxMessageLength uint32) *Frame {
	return &Frame{Kind: KindInfo, Version: version, Capabilities: caps, MaxMessageLength: maxMessageLength}
}

// NewConfig creates the client's answer to Info.
func NewConfig(caps Capability) *Frame {
	return &Frame{Kind: KindConfig, Capabilities: caps}
}

// NewPing creates a keepalive Ping frame.
func NewPing() *Frame { return &Frame{Kind: KindPing} }

// NewPong creates a keepalive answer.
func NewPong() *Frame { return &Frame{Kind: KindPong} }

// NewSub creates a subscribe request for topic.
func NewSub(topic string) *Frame {
	return &Frame{Kind: KindSub, Topic: []byte(topic)}
}

// NewUnSub creates an unsubscribe request for every topic in topics.
// An empty list is valid and still produces a frame.
func NewUnSub(topics []string) *Frame {
	f := &Frame{Kind: KindUnSub}
	if len(topics) > 0 {
		f.Topics = make([][]byte, len(topics))
		for i, t := range topics {
			f.Topics[i] = []byte(t)
		}
	}
	return f
}

// NewPub creates a publish request.
func NewPub(topic string, payload []byte) *Frame {
	return &Frame{Kind: KindPub, Topic: []byte(topic), Payload: payload}
}

// NewMsg creates a delivery frame as sent by the broker.
func NewMsg(topic string, payload []byte) *Frame {
	return &Frame{Kind: KindMsg, Topic: []byte(topic), Payload: payload}
}

// NewTurnPush creates a broker request to switch the session to push delivery.
func NewTurnPush() *Frame { return &Frame{Kind: KindTurnPush} }

// NewTurnPull creates a broker request to switch the session to pull delivery.
func NewTurnPull() *Frame { return &Frame{Kind: KindTurnPull} }

// NewOk creates a positive reply.
func NewOk() *Frame { return &Frame{Kind: KindOk} }

// NewErr creates a negative reply carrying reason.
func NewErr(reason string) *Frame { return &Frame{Kind: KindErr, Reason: reason} }

// TopicStrings returns Topics as strings.
func (f *Frame) TopicStrings() []string {
	if len(f.Topics) == 0 {
		return nil
	}
	out := make([]string, len(f.Topics))
	for i, t := range f.Topics {
		out[i] = string(t)
	}
	return out
}

// String returns a short human readable description of the frame.
func (f *Frame) String() string {
	switch f.Kind {
	case KindInfo:
		return fmt.Sprintf("INFO{v=%d caps=%s max=%d}", f.Version, f.Capabilities, f.MaxMessageLength)
	case KindConfig:
		return fmt.Sprintf("CONFIG{caps=%s}", f.Capabilities)
	case KindSub:
		return fmt.Sprintf("SUB{%q}", f.Topic)
	case KindUnSub:
		return fmt.Sprintf("UNSUB{%q}", f.TopicStrings())
	case KindPub, KindMsg:
		return fmt.Sprintf("%s{%q %dB}", f.Kind, f.Topic, len(f.Payload))
	case KindErr:
		return fmt.Sprintf("ERR{%q}", f.Reason)
	default:
		return f.Kind.String()
	}
}
