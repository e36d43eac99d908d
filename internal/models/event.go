package models

import "time"

// Event represents an audit trail entry for a signal lifecycle action.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`  // e.g., "signal.create", "signal.approve"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	ActorID   *string   `json:"actorId,omitempty"`
	SignalID  *string   `json:"signalId,omitempty"` // Nullable for system-wide events
	CreatedAt time.Time `json:"createdAt"`
}
