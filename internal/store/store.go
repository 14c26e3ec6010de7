package store

import "time"

// Event is the storage representation of a controller event, shaped for the
// snapshot endpoint and the SSE stream.
type Event struct {
	// Key identifies the slot the event occupies, e.g. "server-update" or
	// "service-update:VXSQL1/SQLAgent".
	Key string `json:"key"`

	// Type is the event's wire name, e.g. "connection-status".
	Type string `json:"type"`

	// Data is the JSON-ready payload.
	Data any `json:"data"`

	// At is when the event was recorded.
	At time.Time `json:"at"`
}

// Store defines the interface for storing and subscribing to events.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores an event and notifies all subscribers. Events are keyed
	// by Key, so subsequent updates replace previous values.
	Update(ev Event)

	// GetAll returns the latest event for every key, ordered by key.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []Event

	// Subscribe returns a channel that receives events.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
