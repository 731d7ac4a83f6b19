// Package eventbus provides in-process publish/subscribe buses used to fan
// out control events to metrics, logs and HTTP streams.
package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus is the untyped bus seen by publishers of heterogeneous events.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus, a TypedBus over Event.
type Bus struct {
	TypedBus[Event]
}

// New creates a new Bus.
func New() *Bus { return &Bus{} }

var _ EventBus = (*Bus)(nil)
