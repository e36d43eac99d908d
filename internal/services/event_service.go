package services

import (
	"context"
	"time"

	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/store"
)

const (
	DefaultEventLimit = 20
	MaxEventLimit     = 200
)

// EventServiceProvider defines the interface for audit event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, actorID, signalID *string) error
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EventService records and reads the audit trail.
type EventService struct {
	events store.EventStore
	now    func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(events store.EventStore) *EventService {
	return &EventService{events: events, now: time.Now}
}

// CreateEvent appends an event to the audit trail.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, actorID, signalID *string) error {
	return s.events.Create(ctx, models.Event{
		Type:      eventType,
		Level:     level,
		Message:   message,
		ActorID:   actorID,
		SignalID:  signalID,
		CreatedAt: s.now(),
	})
}

// GetRecentEvents retrieves the most recent events. The limit is clamped to
// [1, MaxEventLimit] with DefaultEventLimit for non-positive values.
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	return s.events.Recent(ctx, limit)
}

// PruneEvents deletes events older than the retention window.
func (s *EventService) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.events.DeleteBefore(ctx, s.now().Add(-olderThan))
}
