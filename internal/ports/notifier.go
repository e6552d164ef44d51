package ports

import (
	"time"
)

// EventKind classifies an outbound notification.
type EventKind string

const (
	EventBan    EventKind = "ban"
	EventAppeal EventKind = "appeal"
)

// Event is the payload handed to the notifier after a response decision is
// finalized. Delivery is a detached task: at-least-once, no retry, failures
// logged and never surfaced to the requester.
type Event struct {
	Kind      EventKind     `json:"event"`
	Origin    string        `json:"origin,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"-"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notifier dispatches events to an external channel (chat webhook).
//
// Thread Safety: Notify MUST be safe for concurrent calls and MUST NOT
// block the request path; implementations buffer and drop on overflow.
type Notifier interface {
	Notify(event Event)
	Close()
}
