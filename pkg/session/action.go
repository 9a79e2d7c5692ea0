package session

import "github.com/relaymq/relay-go/pkg/subscription"

// ActionKind distinguishes queued requests.
type ActionKind uint8

const (
	ActionSubscribe ActionKind = iota
	ActionPublish
)

// String returns the action kind name.
func (k ActionKind) String() string {
	switch k {
	case ActionSubscribe:
		return "SUBSCRIBE"
	case ActionPublish:
		return "PUBLISH"
	default:
		return "UNKNOWN"
	}
}

// Action is a request from application code to the daemon.
type Action struct {
	Kind    ActionKind
	Topic   string
	Payload []byte
	Sink    *subscription.Sink

	// Done, if set, receives the outcome once the action has been applied.
	// It must have room for one value.
	Done chan<- error
}

// Subscribe creates an action that sends a Sub frame and routes topic to sink.
func Subscribe(topic string, sink *subscription.Sink, done chan<- error) Action {
	return Action{Kind: ActionSubscribe, Topic: topic, Sink: sink, Done: done}
}

// Publish creates an action that sends a Pub frame.
func Publish(topic string, payload []byte, done chan<- error) Action {
	return Action{Kind: ActionPublish, Topic: topic, Payload: payload, Done: done}
}

func (a Action) complete(err error) {
	if a.Done != nil {
		a.Done <- err
	}
}
