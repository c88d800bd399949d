// Package notify fans committed state changes out to connected observers.
//
// Publishing always happens after the originating transaction commits, and a
// failed or slow observer never affects the write that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	AppointmentCreated EventType = "appointment.created"
	AppointmentUpdated EventType = "appointment.updated"
	AppointmentDeleted EventType = "appointment.deleted"
	TreatmentCreated   EventType = "treatment.created"
	TreatmentUpdated   EventType = "treatment.updated"
	TreatmentDeleted   EventType = "treatment.deleted"
	InventoryUpdated   EventType = "inventory.updated"
	InventoryLowStock  EventType = "inventory.low_stock"
)

var knownTypes = map[EventType]bool{
	AppointmentCreated: true,
	AppointmentUpdated: true,
	AppointmentDeleted: true,
	TreatmentCreated:   true,
	TreatmentUpdated:   true,
	TreatmentDeleted:   true,
	InventoryUpdated:   true,
	InventoryLowStock:  true,
}

func (t EventType) Valid() bool { return knownTypes[t] }

// Event is the tuple observers receive.
type Event struct {
	Type       EventType       `json:"type"`
	EntityID   uuid.UUID       `json:"entityId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func NewEvent(t EventType, entityID uuid.UUID, payload any) (Event, error) {
	ev := Event{Type: t, EntityID: entityID, OccurredAt: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		ev.Payload = data
	}
	return ev, nil
}

// Notifier is the publish side consumed by the engine.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Emit builds and publishes an event, logging instead of returning failures.
// Use it only after the transaction that produced the change has committed.
func Emit(ctx context.Context, n Notifier, logger zerolog.Logger, t EventType, entityID uuid.UUID, payload any) {
	if n == nil {
		return
	}
	ev, err := NewEvent(t, entityID, payload)
	if err != nil {
		logger.Error().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	if err := n.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).
			Str("event_type", string(t)).
			Str("entity_id", entityID.String()).
			Msg("failed to publish event")
	}
}
