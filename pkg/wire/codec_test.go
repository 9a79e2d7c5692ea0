package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodePrefixesLength(t *testing.T) {
	data, err := Encode(NewPub("news", []byte("hello")))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	n := binary.BigEndian.Uint32(data)
	if int(n) != len(data)-LengthPrefixSize {
		t.Errorf("length prefix = %d, want %d", n, len(data)-LengthPrefixSize)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	f := NewInfo(ProtocolVersion, CapPush|CapPull|CapTLS, 4096)

	a := MustEncode(f)
	b := MustEncode(f)
	if !bytes.Equal(a, b) {
		t.Errorf("encoding differs between calls:\n%x\n%x", a, b)
	}
}

func TestEncodeRejectsInvalidFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  error
	}{
		{"zero kind", &Frame{}, ErrUnknownKind},
		{"kind out of range", &Frame{Kind: 200}, ErrUnknownKind},
		{"sub without topic", &Frame{Kind: KindSub}, ErrMissingTopic},
		{"pub without topic", &Frame{Kind: KindPub, Payload: []byte("x")}, ErrMissingTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.frame)
			if !errors.Is(err, tt.want) {
				t.Errorf("Encode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeBodyFields(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		check func(t *testing.T, f *Frame)
	}{
		{
			name:  "info",
			frame: NewInfo(1, CapPush|CapTLS, 65536),
			check: func(t *testing.T, f *Frame) {
				if f.Version != 1 || f.Capabilities != CapPush|CapTLS || f.MaxMessageLength != 65536 {
					t.Errorf("got %s", f)
				}
			},
		},
		{
			name:  "unsub",
			frame: NewUnSub([]string{"x", "y"}),
			check: func(t *testing.T, f *Frame) {
				got := f.TopicStrings()
				if len(got) != 2 || got[0] != "x" || got[1] != "y" {
					t.Errorf("Topics = %v, want [x y]", got)
				}
			},
		},
		{
			name:  "unsub empty",
			frame: NewUnSub(nil),
			check: func(t *testing.T, f *Frame) {
				if f.Kind != KindUnSub || len(f.Topics) != 0 {
					t.Errorf("got %s", f)
				}
			},
		},
		{
			name:  "msg",
			frame: NewMsg("a/b", []byte{0, 1, 2}),
			check: func(t *testing.T, f *Frame) {
				if string(f.Topic) != "a/b" || !bytes.Equal(f.Payload, []byte{0, 1, 2}) {
					t.Errorf("got %s", f)
				}
			},
		},
		{
			name:  "err",
			frame: NewErr("Client not support push"),
			check: func(t *testing.T, f *Frame) {
				if f.Reason != "Client not support push" {
					t.Errorf("Reason = %q", f.Reason)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := EncodeBody(tt.frame)
			if err != nil {
				t.Fatalf("EncodeBody failed: %v", err)
			}
			f, err := DecodeBody(body)
			if err != nil {
				t.Fatalf("DecodeBody failed: %v", err)
			}
			if f.Kind != tt.frame.Kind {
				t.Errorf("Kind = %s, want %s", f.Kind, tt.frame.Kind)
			}
			tt.check(t, f)
		})
	}
}

func TestDecodeBodyIgnoresUnknownKeys(t *testing.T) {
	body, err := Marshal(map[int]any{1: uint8(KindPing), 99: "future"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	f, err := DecodeBody(body)
	if err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}
	if f.Kind != KindPing {
		t.Errorf("Kind = %s, want PING", f.Kind)
	}
}

func TestCapability(t *testing.T) {
	c := CapPush | CapTLS
	if !c.Has(CapPush) || c.Has(CapPull) {
		t.Errorf("Has() wrong for %s", c)
	}
	if got := c.String(); got != "push|tls" {
		t.Errorf("String() = %q, want push|tls", got)
	}
	if got := CapNone.String(); got != "none" {
		t.Errorf("String() = %q, want none", got)
	}

	parsed, err := ParseCapability("pull, tls")
	if err != nil {
		t.Fatalf("ParseCapability failed: %v", err)
	}
	if parsed != CapPull|CapTLS {
		t.Errorf("ParseCapability = %s, want pull|tls", parsed)
	}
	if _, err := ParseCapability("push,bogus"); err == nil {
		t.Error("expected error for unknown capability")
	}
}
