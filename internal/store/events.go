package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/signaldesk-be/internal/models"
)

// EventRepository implements EventStore.
type EventRepository struct {
	s *Store
}

// Create appends an event to the audit trail.
func (r *EventRepository) Create(ctx context.Context, event models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := r.s.exec(ctx,
		`INSERT INTO events (id, type, level, message, actor_id, signal_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.Level, event.Message,
		nullStringPtr(event.ActorID), nullStringPtr(event.SignalID), timestamp(event.CreatedAt),
	)
	return classify("create event", err)
}

// Recent returns the latest events, newest first.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := r.s.query(ctx,
		`SELECT id, type, level, message, actor_id, signal_id, created_at FROM events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("list events", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			event           models.Event
			actor, signalID sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &actor, &signalID, &event.CreatedAt); err != nil {
			return nil, classify("scan event", err)
		}
		event.ActorID = stringPtr(actor)
		event.SignalID = stringPtr(signalID)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate events", err)
	}
	return events, nil
}

// DeleteBefore removes events created before cutoff and reports how many.
func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.s.exec(ctx, `DELETE FROM events WHERE created_at < ?`, timestamp(cutoff))
	if err != nil {
		return 0, classify("prune events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("prune events", err)
	}
	return n, nil
}
