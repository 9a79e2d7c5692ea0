package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/wire"
)

// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
// Larger frames are truncated in log events.
const MaxLogFrameDataSize = 4096

// flusher is implemented by writers that buffer, including every Transport.
type flusher interface {
	Flush() error
}

// FrameWriter encodes frames and writes them with their length prefix.
// If the underlying writer has a Flush method it is called after every
// frame.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// SetLogger configures protocol capture for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame encodes f, writes it in a single call and flushes.
// Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(f *wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", f.Kind, err)
	}
	if fl, ok := fw.w.(flusher); ok {
		if err := fl.Flush(); err != nil {
			return fmt.Errorf("flush %s: %w", f.Kind, err)
		}
	}

	if fw.logger != nil {
		fw.logger.Log(MakeFrameEvent(fw.connID, log.DirectionOut, data))
		fw.logger.Log(log.FrameEventFor(fw.connID, log.DirectionOut, f))
	}
	return nil
}

// MakeFrameEvent creates a transport-layer log event for raw frame bytes
// (length prefix included).
func MakeFrameEvent(connID string, direction log.Direction, data []byte) log.Event {
	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      frameData,
			Truncated: truncated,
		},
	}
}
