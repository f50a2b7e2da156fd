// Package events delivers application domain events to downstream consumers.
// Delivery is at-least-once; consumers dedupe on the envelope id.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
)

// Publisher dispatches pending aggregate events.
type Publisher interface {
	Publish(ctx context.Context, events ...models.Event) error
}

// Envelope is the stable wire shape of every event.
type Envelope struct {
	ID            id.EventID       `json:"id"`
	Type          models.EventType `json:"type"`
	ApplicationID id.ApplicationID `json:"application_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
	Payload       json.RawMessage  `json:"payload"`
}

// NewEnvelope wraps e. The payload is the event's exported fields.
func NewEnvelope(e models.Event) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", e.EventType(), err)
	}
	return Envelope{
		ID:            e.EventID(),
		Type:          e.EventType(),
		ApplicationID: e.AggregateID(),
		OccurredAt:    e.OccurredAt().UTC(),
		Payload:       payload,
	}, nil
}
