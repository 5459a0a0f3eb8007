package events

import "nftsettle/core/types"

// Event represents a structured state change emitted by the settlement
// engines.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC feed,
// indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while
// discarding all events. It is useful when a component wants to optionally
// expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload is implemented by events that carry a broadcastable payload.
type Payload interface {
	Event() *types.Event
}

// Wrapped adapts a raw typed event into the Event/Payload pair expected by
// emitters.
type Wrapped struct {
	Evt *types.Event
}

// EventType satisfies the Event interface.
func (w Wrapped) EventType() string {
	if w.Evt == nil {
		return ""
	}
	return w.Evt.Type
}

// Event satisfies the Payload interface.
func (w Wrapped) Event() *types.Event { return w.Evt }

// Wrap packages a raw event for emission. Nil events wrap to an empty type.
func Wrap(evt *types.Event) Wrapped { return Wrapped{Evt: evt} }
