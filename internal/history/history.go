package history

import (
	"context"
	"time"
)

// EventType classifies a supervision session event.
type EventType string

const (
	EventTransition  EventType = "transition"   // orchestrator state change
	EventProbe       EventType = "probe"        // connectivity probe outcome
	EventProcessExit EventType = "process_exit" // supervised child exit
	EventTermination EventType = "termination"  // shutdown action on a child
)

// Event is one auditable occurrence within a session, exported to external
// analytics/statistics systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Session    string    `json:"session"` // opaque session id, one per orchestrator run
	Name       string    `json:"name"`    // process name, probe target, or state name
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for session events. Implementations must be safe for
// concurrent use; Send failures are logged by the caller, never fatal.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
