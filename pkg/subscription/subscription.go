package subscription

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// Subscription errors.
var (
	// ErrClosed ends a stream: the daemon closed the sink or the consumer
	// closed the subscription.
	ErrClosed = errors.New("subscription closed")

	// ErrFull is returned by Deliver when the buffer is at capacity.
	ErrFull = errors.New("subscription buffer full")

	// ErrConsumerGone is returned by Deliver after Subscription.Close.
	ErrConsumerGone = errors.New("subscription consumer gone")

	// ErrInvalidUTF8 is yielded by Strings for payloads that are not text.
	ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")
)

// DefaultCapacity is the buffer size used when New is given zero.
const DefaultCapacity = 10

// stream is the state shared by both ends.
type stream struct {
	topic string
	ch    chan []byte

	// mu orders sends against close(ch).
	mu     sync.Mutex
	closed bool

	gone     atomic.Bool
	goneOnce sync.Once
	goneCh   chan struct{}
}

// New creates a subscription for topic with the given buffer capacity.
// Capacity <= 0 selects DefaultCapacity.
func New(topic string, capacity int) (*Subscription, *Sink) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &stream{
		topic:  topic,
		ch:     make(chan []byte, capacity),
		goneCh: make(chan struct{}),
	}
	return &Subscription{s: s}, &Sink{s: s}
}

// Sink is the daemon's end of a subscription.
type Sink struct {
	s *stream
}

// Topic returns the subscribed topic.
func (k *Sink) Topic() string {
	return k.s.topic
}

// Deliver queues msg without blocking. Any error means the route should
// be dropped.
func (k *Sink) Deliver(msg []byte) error {
	if k.s.gone.Load() {
		return ErrConsumerGone
	}

	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if k.s.closed {
		return ErrClosed
	}
	select {
	case k.s.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Close ends the stream. Buffered messages remain readable. Safe to call
// more than once.
func (k *Sink) Close() {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()

	if !k.s.closed {
		k.s.closed = true
		close(k.s.ch)
	}
}

// Gone reports whether the consumer has called Close.
func (k *Sink) Gone() bool {
	return k.s.gone.Load()
}

// Subscription is the application's end of a subscription.
type Subscription struct {
	s *stream
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.s.topic
}

// C returns the message channel. It is closed when the daemon drops the
// route or the session ends.
func (s *Subscription) C() <-chan []byte {
	return s.s.ch
}

// Len returns the number of buffered messages.
func (s *Subscription) Len() int {
	return len(s.s.ch)
}

// Next blocks until a message arrives, the stream ends (ErrClosed) or ctx
// is done.
func (s *Subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-s.s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-s.s.goneCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handle calls fn for every message until the stream ends. It returns nil
// when the stream ends and ctx.Err() when ctx is done.
func (s *Subscription) Handle(ctx context.Context, fn func([]byte)) error {
	for {
		msg, err := s.Next(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(msg)
	}
}

// HandleString is like Handle but passes each payload as text. Invalid
// UTF-8 sequences are replaced with U+FFFD.
func (s *Subscription) HandleString(ctx context.Context, fn func(string)) error {
	return s.Handle(ctx, func(msg []byte) {
		fn(strings.ToValidUTF8(string(msg), "�"))
	})
}

// All returns an iterator over messages. Iteration ends with the stream.
func (s *Subscription) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			select {
			case msg, ok := <-s.s.ch:
				if !ok || !yield(msg) {
					return
				}
			case <-s.s.goneCh:
				return
			}
		}
	}
}

// Strings returns an iterator over messages as text. Payloads that are not
// valid UTF-8 are yielded with ErrInvalidUTF8; iteration continues.
func (s *Subscription) Strings() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for msg := range s.All() {
			var err error
			if !utf8.Valid(msg) {
				err = ErrInvalidUTF8
			}
			if !yield(string(msg), err) {
				return
			}
		}
	}
}

// Close detaches the consumer. The daemon's next delivery for this topic
// fails and the route is dropped. Pending Next calls return ErrClosed.
func (s *Subscription) Close() {
	s.s.goneOnce.Do(func() {
		s.s.gone.Store(true)
		close(s.s.goneCh)
	})
}
