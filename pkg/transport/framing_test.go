package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/wire"
)

type recordingLogger struct {
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) { r.events = append(r.events, e) }

type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (f *flushCounter) Flush() error {
	f.flushes++
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestFrameWriterWritesDecodableFrames(t *testing.T) {
	var buf flushCounter
	fw := NewFrameWriter(&buf)

	if err := fw.WriteFrame(wire.NewSub("news")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := fw.WriteFrame(wire.NewPub("news", []byte("hi"))); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if buf.flushes != 2 {
		t.Errorf("flushes = %d, want 2", buf.flushes)
	}

	frames, err := wire.NewDecoder(0).Feed(buf.Bytes())
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Kind != wire.KindSub || frames[1].Kind != wire.KindPub {
		t.Errorf("frames = %v", frames)
	}
}

func TestFrameWriterRejectsInvalidFrame(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	if err := fw.WriteFrame(&wire.Frame{Kind: wire.KindSub}); !errors.Is(err, wire.ErrMissingTopic) {
		t.Errorf("WriteFrame() error = %v, want ErrMissingTopic", err)
	}
	if buf.Len() != 0 {
		t.Error("invalid frame reached the writer")
	}
}

func TestFrameWriterWrapsWriteErrors(t *testing.T) {
	fw := NewFrameWriter(failingWriter{})
	err := fw.WriteFrame(wire.NewPing())
	if err == nil || err.Error() != "write PING: broken pipe" {
		t.Errorf("WriteFrame() error = %v", err)
	}
}

func TestFrameWriterLogsTransportAndWireEvents(t *testing.T) {
	var buf bytes.Buffer
	rec := &recordingLogger{}
	fw := NewFrameWriter(&buf)
	fw.SetLogger(rec, "conn-1")

	if err := fw.WriteFrame(wire.NewPub("t", make([]byte, 2*MaxLogFrameDataSize))); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	if len(rec.events) != 2 {
		t.Fatalf("got %d events, want 2", len(rec.events))
	}
	frame := rec.events[0]
	if frame.Layer != log.LayerTransport || frame.Frame == nil {
		t.Fatalf("first event = %+v", frame)
	}
	if !frame.Frame.Truncated || len(frame.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("large frame not truncated: %d bytes", len(frame.Frame.Data))
	}
	if frame.Frame.Size != buf.Len() {
		t.Errorf("Size = %d, want %d", frame.Frame.Size, buf.Len())
	}

	msg := rec.events[1]
	if msg.Layer != log.LayerWire || msg.Message == nil || msg.Message.Kind != wire.KindPub {
		t.Errorf("second event = %+v", msg)
	}
	if msg.ConnectionID != "conn-1" || msg.Direction != log.DirectionOut {
		t.Errorf("conn/dir = %q/%s", msg.ConnectionID, msg.Direction)
	}
}
