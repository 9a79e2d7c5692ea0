package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/relaymq/relay-go/pkg/wire"
)

func TestFileLoggerWritesDecodableEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(FrameEventFor("conn-123", DirectionOut, wire.NewSub("news")))
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.ConnectionID != "conn-123" {
		t.Errorf("ConnectionID: got %q, want conn-123", decoded.ConnectionID)
	}
	if decoded.Message == nil || decoded.Message.Topic != "news" {
		t.Errorf("Message: got %+v", decoded.Message)
	}
}

func TestFileLoggerAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")

	for _, id := range []string{"conn-1", "conn-2"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(StateEventFor(id, StateEntityConnection, "", "CONNECTED", ""))
		logger.Close()
	}

	read := readAll(t, path, Filter{})
	if len(read) != 2 {
		t.Fatalf("expected 2 events, got %d", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[1].ConnectionID != "conn-2" {
		t.Errorf("got %q, %q", read[0].ConnectionID, read[1].ConnectionID)
	}
}

func TestFileLoggerConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.rlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				logger.Log(FrameEventFor("conn-"+string(rune('A'+i)), DirectionIn, wire.NewPong()))
			}
		}()
	}
	wg.Wait()
	logger.Close()

	if got := len(readAll(t, path, Filter{})); got != writers*perWriter {
		t.Errorf("event count: got %d, want %d", got, writers*perWriter)
	}
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "client.rlog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// Dropped silently.
	logger.Log(FrameEventFor("c", DirectionIn, wire.NewPing()))
}
