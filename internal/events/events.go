// Package events publishes desk events (messages sent, actions run, poller
// alerts) to an AMQP topic exchange for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMessageSent   = "inbox.message.sent"
	TypeActionRun     = "desk.action.run"
	TypePollDegraded  = "status.poll.degraded"
	TypePollRecovered = "status.poll.recovered"
)

// Meta identifies an event.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Time          time.Time `json:"time"`
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// NewEnvelope builds an envelope with a fresh ID.
func NewEnvelope(eventType, source string, data any) Envelope {
	id := uuid.NewString()
	return Envelope{
		Meta: Meta{
			ID:            id,
			Type:          eventType,
			Source:        source,
			CorrelationID: id,
			Time:          time.Now().UTC(),
		},
		Data: data,
	}
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
