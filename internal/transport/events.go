package transport

import "github.com/GriffinCanCode/tracekit/internal/shared/id"

// EventType classifies transport events
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventHandshake    EventType = "handshake"
	EventUnsolicited  EventType = "unsolicited"
	EventLaunched     EventType = "launched"
	EventStopped      EventType = "stopped"
)

// Event reports something that happened outside a caller's control flow
type Event struct {
	Type   EventType
	ConnID id.ConnID
	Detail string
	Err    error
}

// EventHandler receives transport events. It is called synchronously and
// must not block.
type EventHandler func(Event)
