package log

import (
	"time"

	"github.com/relaymq/relay-go/pkg/wire"
)

// controlTypes maps control frame kinds to their event type.
var controlTypes = map[wire.Kind]ControlMsgType{
	wire.KindPing:     ControlMsgPing,
	wire.KindPong:     ControlMsgPong,
	wire.KindTurnPush: ControlMsgTurnPush,
	wire.KindTurnPull: ControlMsgTurnPull,
	wire.KindOk:       ControlMsgOk,
	wire.KindErr:      ControlMsgErr,
}

// FrameEventFor builds the wire-layer event for a decoded frame.
// Control frames are categorised as CategoryControl, everything else as
// CategoryMessage.
func FrameEventFor(connID string, dir Direction, f *wire.Frame) Event {
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
	}

	if ct, ok := controlTypes[f.Kind]; ok {
		event.Category = CategoryControl
		event.ControlMsg = &ControlMsgEvent{Type: ct, Reason: f.Reason}
		return event
	}

	event.Category = CategoryMessage
	event.Message = &MessageEvent{
		Kind:             f.Kind,
		Topic:            string(f.Topic),
		Topics:           f.TopicStrings(),
		PayloadSize:      len(f.Payload),
		Capabilities:     f.Capabilities,
		Version:          f.Version,
		MaxMessageLength: f.MaxMessageLength,
	}
	return event
}

// StateEventFor builds a state change event.
func StateEventFor(connID string, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        LayerSession,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// ErrorEventFor builds an error event.
func ErrorEventFor(connID string, layer Layer, err error, context string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
