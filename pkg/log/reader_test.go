package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaymq/relay-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	var read []Event
	for event, err := range reader.All() {
		if err != nil {
			t.Fatalf("reading events: %v", err)
		}
		read = append(read, event)
	}
	return read
}

func msgEvent(connID string, dir Direction, f *wire.Frame) Event {
	return FrameEventFor(connID, dir, f)
}

func TestReaderIteratesEventsInOrder(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Direction: DirectionIn, Layer: LayerSession, Category: CategoryState},
	}

	read := readAll(t, createTestLogFile(t, events), Filter{})
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[2].ConnectionID != "conn-3" {
		t.Errorf("order = %q..%q, want conn-1..conn-3", read[0].ConnectionID, read[2].ConnectionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rlog")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if event, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []Event{
		msgEvent("conn-A", DirectionOut, wire.NewSub("news")),
		msgEvent("conn-A", DirectionIn, wire.NewMsg("news", []byte("hi"))),
		msgEvent("conn-B", DirectionOut, wire.NewPub("weather", []byte("rain"))),
		msgEvent("conn-A", DirectionOut, wire.NewUnSub([]string{"news", "sport"})),
		msgEvent("conn-B", DirectionOut, wire.NewPing()),
		StateEventFor("conn-A", StateEntitySession, "ACTIVE", "CLOSED", "peer closed"),
	}
	for i := range events {
		events[i].Timestamp = base.Add(time.Duration(i) * time.Minute)
	}
	path := createTestLogFile(t, events)

	out := DirectionOut
	session := LayerSession
	control := CategoryControl
	pub := wire.KindPub
	start := base.Add(2 * time.Minute)
	end := base.Add(4 * time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"none", Filter{}, 6},
		{"connection", Filter{ConnectionID: "conn-A"}, 4},
		{"direction", Filter{Direction: &out}, 4},
		{"layer", Filter{Layer: &session}, 1},
		{"category", Filter{Category: &control}, 1},
		{"kind", Filter{Kind: &pub}, 1},
		{"topic matches single and list", Filter{Topic: "news"}, 3},
		{"topic only in unsub list", Filter{Topic: "sport"}, 1},
		{"time range", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{ConnectionID: "conn-A", Direction: &out, Topic: "news"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, path, tt.filter)
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderAllStopsEarly(t *testing.T) {
	events := make([]Event, 5)
	for i := range events {
		events[i] = msgEvent("conn", DirectionIn, wire.NewPong())
	}
	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	n := 0
	for range reader.All() {
		n++
		if n == 2 {
			break
		}
	}

	// The iterator is a view over Next, so the rest is still readable.
	rest := 0
	for range reader.All() {
		rest++
	}
	if rest != 3 {
		t.Errorf("remaining events = %d, want 3", rest)
	}
}
