package wire

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecoderSingleFrame(t *testing.T) {
	d := NewDecoder(0)

	frames, err := d.Feed(MustEncode(NewPing()))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != KindPing {
		t.Fatalf("frames = %v, want [PING]", frames)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}
}

func TestDecoderMultipleFramesInOneRead(t *testing.T) {
	d := NewDecoder(0)

	var data []byte
	data = append(data, MustEncode(NewMsg("a", []byte("1")))...)
	data = append(data, MustEncode(NewPong())...)
	data = append(data, MustEncode(NewMsg("b", []byte("2")))...)

	frames, err := d.Feed(data)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	want := []Kind{KindMsg, KindPong, KindMsg}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, k := range want {
		if frames[i].Kind != k {
			t.Errorf("frames[%d].Kind = %s, want %s", i, frames[i].Kind, k)
		}
	}
	if string(frames[2].Topic) != "b" {
		t.Errorf("order not preserved: last topic = %q", frames[2].Topic)
	}
}

func TestDecoderPartialFrames(t *testing.T) {
	d := NewDecoder(0)
	data := MustEncode(NewPub("topic", []byte("payload")))

	// Byte at a time, including a split length prefix.
	for i := 0; i < len(data)-1; i++ {
		frames, err := d.Feed(data[i : i+1])
		if err != nil {
			t.Fatalf("Feed(%d) failed: %v", i, err)
		}
		if len(frames) != 0 {
			t.Fatalf("Feed(%d) returned %d frames early", i, len(frames))
		}
	}

	frames, err := d.Feed(data[len(data)-1:])
	if err != nil {
		t.Fatalf("final Feed failed: %v", err)
	}
	if len(frames) != 1 || string(frames[0].Payload) != "payload" {
		t.Fatalf("frames = %v", frames)
	}
}

func TestDecoderKeepsTrailingPartial(t *testing.T) {
	d := NewDecoder(0)
	first := MustEncode(NewPing())
	second := MustEncode(NewMsg("t", []byte("v")))

	frames, err := d.Feed(append(append([]byte{}, first...), second[:3]...))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if d.Buffered() != 3 {
		t.Errorf("Buffered() = %d, want 3", d.Buffered())
	}

	frames, err = d.Feed(second[3:])
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 1 || frames[0].Kind != KindMsg {
		t.Fatalf("frames = %v, want [MSG]", frames)
	}
}

func TestDecoderRejectsOversizedFrame(t *testing.T) {
	d := NewDecoder(16)

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 17)

	_, err := d.Feed(prefix[:])
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("Feed() error = %v, want ErrFrameTooLarge", err)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d after error, want 0", d.Buffered())
	}
}

func TestDecoderEmptyFrame(t *testing.T) {
	d := NewDecoder(0)

	_, err := d.Feed([]byte{0, 0, 0, 0})
	if !errors.Is(err, ErrFrameEmpty) {
		t.Fatalf("Feed() error = %v, want ErrFrameEmpty", err)
	}
}

func TestDecoderGarbageDiscardsRemainder(t *testing.T) {
	d := NewDecoder(0)

	good := MustEncode(NewPing())
	bad := []byte{0, 0, 0, 2, 0xff, 0xff}
	tail := MustEncode(NewPong())

	data := append(append(append([]byte{}, good...), bad...), tail...)
	frames, err := d.Feed(data)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if len(frames) != 1 || frames[0].Kind != KindPing {
		t.Errorf("frames before error = %v, want [PING]", frames)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}

	// Stream recovers on the next clean frame.
	frames, err = d.Feed(tail)
	if err != nil || len(frames) != 1 {
		t.Fatalf("Feed after error = %v, %v", frames, err)
	}
}

func TestDecoderSkipsUnknownKind(t *testing.T) {
	d := NewDecoder(0)

	body, err := Marshal(&Frame{Kind: 42, Topic: []byte("future")})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	unknown := binary.BigEndian.AppendUint32(nil, uint32(len(body)))
	unknown = append(unknown, body...)

	var data []byte
	data = append(data, MustEncode(NewMsg("a", []byte("1")))...)
	data = append(data, unknown...)
	data = append(data, MustEncode(NewPong())...)

	frames, err := d.Feed(data)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Kind != KindMsg || frames[1].Kind != KindPong {
		t.Fatalf("frames = %v, want [MSG PONG]", frames)
	}
	if d.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", d.Skipped())
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}
}
